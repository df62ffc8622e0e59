// Package session drives a generation job over a channel through the
// idle, connecting, active and terminal states and publishes every
// transition to a Surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-podcast/internal/channel"
	"github.com/loqalabs/loqa-podcast/internal/job"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/loqalabs/loqa-podcast/session"

// Messages are the generic status strings shown for transport events.
type Messages struct {
	Connecting     string
	Connected      string
	ConnectionLost string
	ConnectTimeout string
}

func DefaultMessages() Messages {
	return Messages{
		Connecting:     "Connecting to server...",
		Connected:      "Connected to server",
		ConnectionLost: "Connection to server lost",
		ConnectTimeout: "Timed out connecting to server",
	}
}

type Option func(*Manager)

func WithMessages(msgs Messages) Option { return func(m *Manager) { m.msgs = msgs } }
func WithClock(clock func() time.Time) Option { return func(m *Manager) { m.clock = clock } }
func WithMeter(meter metric.Meter) Option { return func(m *Manager) { m.meter = meter } }
func WithTracer(tracer trace.Tracer) Option { return func(m *Manager) { m.tracer = tracer } }

// WithSendTimeout bounds how long sending the job request may take.
func WithSendTimeout(d time.Duration) Option { return func(m *Manager) { m.sendTimeout = d } }

// Manager owns the single in-flight session of a client.
type Manager struct {
	dialer      channel.Dialer
	surface     *Surface
	logger      *slog.Logger
	msgs        Messages
	clock       func() time.Time
	sendTimeout time.Duration
	meter       metric.Meter
	tracer      trace.Tracer
	metrics     *metrics

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// pub serialises transitions so snapshots are published in order.
	pub sync.Mutex

	mu   sync.Mutex
	cur  *run
	snap Snapshot
}

type run struct {
	id      string
	req     job.Request
	ch      channel.Channel
	started time.Time
	ctx     context.Context
	// stop ends ctx once the run is torn down, releasing a pending send.
	stop    context.CancelFunc
	span    trace.Span
}

func NewManager(parent context.Context, dialer channel.Dialer, surface *Surface, log *slog.Logger, opts ...Option) (*Manager, error) {
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		dialer:      dialer,
		surface:     surface,
		logger:      log.With(slog.String("component", "session-manager")),
		msgs:        DefaultMessages(),
		clock:       time.Now,
		sendTimeout: 10 * time.Second,
		meter:       otel.Meter(instrumentation),
		tracer:      otel.Tracer(instrumentation),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.surface == nil {
		m.surface = NewSurface()
	}
	m.snap = m.surface.Current()

	met, err := newMetrics(m.meter, m.tracer, m.Current)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("session metrics: %w", err)
	}
	m.metrics = met
	return m, nil
}

func (m *Manager) Surface() *Surface { return m.surface }

// Current returns the authoritative snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Open starts a session for req and returns its identity without waiting for
// the transport. An in-flight session is cancelled first. A transport that
// refuses to start moves the new session straight to disconnected and the
// TransportError is returned alongside the identity.
func (m *Manager) Open(req job.Request) (string, error) {
	m.pub.Lock()
	defer m.pub.Unlock()
	if m.ctx.Err() != nil {
		return "", ErrClosed
	}
	m.teardown()

	id := uuid.NewString()
	runCtx, stop := context.WithCancel(m.ctx)
	r := &run{id: id, req: req, ch: m.dialer.Dial(id), started: m.clock(), stop: stop}
	m.metrics.begin(runCtx, r)

	m.mu.Lock()
	m.cur = r
	snap := m.nextLocked(Snapshot{
		SessionID:     id,
		Kind:          req.Kind(),
		Engine:        req.Engine(),
		State:         StateConnecting,
		StatusMessage: m.msgs.Connecting,
	})
	m.mu.Unlock()
	m.surface.Publish(snap)
	m.logger.Info("session opening", slog.String("session_id", id), slog.String("kind", string(req.Kind())), slog.String("engine", string(req.Engine())))

	events, err := r.ch.Open(m.ctx)
	if err != nil {
		terr := &TransportError{Err: err}
		if m.detach(r) {
			m.disconnected(r, terr)
		}
		return id, terr
	}

	m.wg.Add(1)
	go m.pump(id, events)
	return id, nil
}

// Cancel closes the in-flight session and returns to idle. It reports false
// when nothing was in flight.
func (m *Manager) Cancel() bool {
	m.pub.Lock()
	defer m.pub.Unlock()
	return m.teardown()
}

// Close cancels any session and stops event processing.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.pub.Lock()
		m.teardown()
		m.cancel()
		m.pub.Unlock()
		m.wg.Wait()
		m.metrics.close()
	})
}

func (m *Manager) pump(id string, events <-chan protocol.Inbound) {
	defer m.wg.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.dispatch(id, ev)
		case <-m.ctx.Done():
			return
		}
	}
}

// dispatch applies one inbound event. Events whose identity is not the
// current session are dropped. The job request goes out after the
// transition is published and pub is released, so Cancel and Open never
// wait on a slow transport.
func (m *Manager) dispatch(id string, ev protocol.Inbound) {
	m.pub.Lock()
	r := m.apply(id, ev)
	m.pub.Unlock()
	if r != nil {
		m.send(r)
	}
}

// apply performs the transition for ev and returns the run whose job
// request must be sent, if any. Callers hold pub.
func (m *Manager) apply(id string, ev protocol.Inbound) *run {
	m.mu.Lock()
	r := m.cur
	if r == nil || r.id != id {
		m.mu.Unlock()
		m.logger.Debug("dropping stale event", slog.String("session_id", id), slog.String("event", ev.Kind))
		return nil
	}
	state := m.snap.State

	switch ev.Kind {
	case protocol.EventConnect:
		if state != StateConnecting {
			m.mu.Unlock()
			m.ignored(id, ev, state)
			return nil
		}
		s := m.snap
		s.State = StateActive
		s.StatusMessage = m.msgs.Connected
		snap := m.nextLocked(s)
		m.mu.Unlock()
		m.surface.Publish(snap)
		return r

	case protocol.EventProgress, protocol.EventStatus:
		if state != StateActive {
			m.mu.Unlock()
			m.ignored(id, ev, state)
			return nil
		}
		s := m.snap
		if ev.Kind == protocol.EventProgress {
			s.Progress = ev.Progress
		}
		s.StatusMessage = ev.Message
		snap := m.nextLocked(s)
		m.mu.Unlock()
		m.surface.Publish(snap)

	case protocol.EventComplete:
		if state != StateActive {
			m.mu.Unlock()
			m.ignored(id, ev, state)
			return nil
		}
		m.cur = nil
		m.mu.Unlock()
		result := &Result{AudioURL: ev.AudioURL, Transcript: ev.Transcript}
		m.terminate(r, "completed", nil, func(s *Snapshot) {
			s.State = StateCompleted
			s.Result = result
		})

	case protocol.EventError:
		m.cur = nil
		m.mu.Unlock()
		rerr := &RemoteError{Message: ev.Message}
		m.terminate(r, "failed", rerr, func(s *Snapshot) {
			s.State = StateFailed
			s.StatusMessage = ev.Message
			s.Failure = ev.Message
			s.Err = rerr
		})

	case protocol.EventDisconnect:
		m.cur = nil
		m.mu.Unlock()
		m.disconnected(r, &TransportError{Err: ev.Err})

	default:
		m.mu.Unlock()
		m.ignored(id, ev, state)
	}
	return nil
}

// send delivers the job request right after connect. A failed send is a
// transport failure unless the run was superseded meanwhile.
func (m *Manager) send(r *run) {
	ctx, cancel := context.WithTimeout(r.ctx, m.sendTimeout)
	defer cancel()
	err := r.ch.Send(ctx, r.req.Outbound())
	if err == nil {
		return
	}

	m.pub.Lock()
	defer m.pub.Unlock()
	if !m.detach(r) {
		m.logger.Debug("dropping send failure of superseded session", slog.String("session_id", r.id), slogError(err))
		return
	}
	m.logger.Warn("failed to send job request", slog.String("session_id", r.id), slogError(err))
	m.disconnected(r, &TransportError{Err: err})
}

func (m *Manager) disconnected(r *run, terr *TransportError) {
	msg := m.msgs.ConnectionLost
	if errors.Is(terr, channel.ErrConnectTimeout) {
		msg = m.msgs.ConnectTimeout
	}
	m.terminate(r, "disconnected", terr, func(s *Snapshot) {
		s.State = StateDisconnected
		s.StatusMessage = msg
		s.Failure = msg
		s.Err = terr
	})
}

// teardown cancels the current session, if any. Callers hold pub.
func (m *Manager) teardown() bool {
	m.mu.Lock()
	r := m.cur
	if r == nil {
		m.mu.Unlock()
		return false
	}
	m.cur = nil
	m.mu.Unlock()
	m.terminate(r, "cancelled", nil, func(s *Snapshot) {
		*s = Snapshot{SessionID: r.id, Kind: r.req.Kind(), Engine: r.req.Engine(), State: StateIdle}
	})
	return true
}

// detach clears r as the current session. Callers hold pub.
func (m *Manager) detach(r *run) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != r {
		return false
	}
	m.cur = nil
	return true
}

// terminate closes the detached run's channel, then moves to the state set
// by update and publishes it. Callers hold pub.
func (m *Manager) terminate(r *run, outcome string, err error, update func(*Snapshot)) {
	r.stop()
	if cerr := r.ch.Close(); cerr != nil {
		m.logger.Debug("channel close failed", slog.String("session_id", r.id), slogError(cerr))
	}

	m.mu.Lock()
	s := m.snap
	update(&s)
	snap := m.nextLocked(s)
	m.mu.Unlock()
	m.surface.Publish(snap)

	elapsed := m.clock().Sub(r.started)
	m.metrics.end(r, outcome, elapsed, err)
	attrs := []any{slog.String("session_id", r.id), slog.String("outcome", outcome), slog.Duration("elapsed", elapsed)}
	if err != nil {
		attrs = append(attrs, slogError(err))
	}
	m.logger.Info("session ended", attrs...)
}

func (m *Manager) nextLocked(s Snapshot) Snapshot {
	s.Revision = m.snap.Revision + 1
	s.UpdatedAt = m.clock()
	m.snap = s
	return s
}

func (m *Manager) ignored(id string, ev protocol.Inbound, state State) {
	m.logger.Debug("ignoring event not legal in state",
		slog.String("session_id", id), slog.String("event", ev.Kind), slog.String("state", string(state)))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
