// Package channel carries one generation session between the client and the
// generation service.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/backend"
	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

var (
	ErrNotConnected   = errors.New("channel: not connected")
	ErrConnectTimeout = errors.New("channel: connect timeout")
	ErrClosed         = errors.New("channel: closed")
	ErrAlreadyOpen    = errors.New("channel: already open")
)

// Channel is a bidirectional event stream for exactly one job.
//
// Open returns immediately; the connection is established in the background
// and reported as a connect event, or as a disconnect carrying the cause.
// Close never waits for the event stream to be drained and closes it.
type Channel interface {
	Open(ctx context.Context) (<-chan protocol.Inbound, error)
	Send(ctx context.Context, out protocol.Outbound) error
	Close() error
}

// Dialer creates a channel tagged with a session identity.
type Dialer interface {
	Dial(sessionID string) Channel
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(sessionID string) Channel

func (f DialerFunc) Dial(sessionID string) Channel { return f(sessionID) }

// NewDialer builds the dialer selected by cfg.Transport. busClient is only
// required for the nats transport.
func NewDialer(cfg config.ChannelConfig, backendCfg config.BackendConfig, busClient *bus.Client, log *slog.Logger) (Dialer, error) {
	timeout := time.Duration(cfg.ConnectTimeout) * time.Millisecond
	logger := log.With(slog.String("component", "channel"), slog.String("transport", cfg.Transport))
	switch cfg.Transport {
	case "mock", "":
		return &MockDialer{Simulator: backend.NewSimulator(backendCfg)}, nil
	case "websocket":
		return &WebsocketDialer{URL: cfg.URL, Timeout: timeout, Logger: logger}, nil
	case "nats":
		if busClient == nil {
			return nil, errors.New("nats transport requires a bus connection")
		}
		return &NATSDialer{Bus: busClient, Prefix: cfg.SubjectPrefix, Timeout: timeout, Logger: logger}, nil
	case "exec":
		return NewExecDialer(cfg.Command, logger)
	}
	return nil, fmt.Errorf("unknown channel transport %q", cfg.Transport)
}

// stream serialises delivery of inbound events. Nothing is delivered after a
// terminal event or after close.
type stream struct {
	events chan protocol.Inbound
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	closed   bool
	finished bool
}

func newStream() *stream {
	return &stream{
		events: make(chan protocol.Inbound, 16),
		done:   make(chan struct{}),
	}
}

func (s *stream) emit(ev protocol.Inbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.finished {
		return false
	}
	if ev.Terminal() {
		s.finished = true
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) connected() bool {
	return s.emit(protocol.Inbound{Kind: protocol.EventConnect})
}

func (s *stream) disconnect(err error) bool {
	return s.emit(protocol.Inbound{Kind: protocol.EventDisconnect, Err: err})
}

func (s *stream) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *stream) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}

// lifecycle holds the bookkeeping every transport shares.
type lifecycle struct {
	st     *stream
	mu     sync.Mutex
	opened bool
	ctx    context.Context
	cancel context.CancelFunc
}

func newLifecycle() lifecycle {
	return lifecycle{st: newStream()}
}

// begin marks the channel open and derives its lifetime context.
func (l *lifecycle) begin(ctx context.Context) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.st.isDone() {
		return nil, ErrClosed
	}
	if l.opened {
		return nil, ErrAlreadyOpen
	}
	l.opened = true
	l.ctx, l.cancel = context.WithCancel(ctx)
	return l.ctx, nil
}

func (l *lifecycle) end() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.st.close()
}

func connectError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}
	return err
}
