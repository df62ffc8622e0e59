package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"github.com/nats-io/nats.go"
)

// NATSDialer exchanges session events over the bus: service events arrive on
// <prefix>.<id>.events and the request is published to <prefix>.<id>.request.
type NATSDialer struct {
	Bus     *bus.Client
	Prefix  string
	Timeout time.Duration
	Logger  *slog.Logger
}

func (d *NATSDialer) Dial(sessionID string) Channel {
	return &natsChannel{
		lifecycle: newLifecycle(),
		bus:       d.Bus,
		prefix:    d.Prefix,
		id:        sessionID,
		timeout:   d.Timeout,
		log:       d.Logger.With(slog.String("session_id", sessionID)),
	}
}

type natsChannel struct {
	lifecycle
	bus     *bus.Client
	prefix  string
	id      string
	timeout time.Duration
	log     *slog.Logger

	sub       *nats.Subscription
	unwatch   func()
	connected bool
}

func (c *natsChannel) Open(ctx context.Context) (<-chan protocol.Inbound, error) {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	go c.run(runCtx)
	return c.st.events, nil
}

func (c *natsChannel) run(ctx context.Context) {
	conn := c.bus.Conn()
	sub, err := conn.Subscribe(protocol.EventsSubject(c.prefix, c.id), c.handle)
	if err != nil {
		c.st.disconnect(fmt.Errorf("subscribe: %w", err))
		return
	}

	if err := conn.FlushTimeout(c.timeout); err != nil {
		_ = sub.Unsubscribe()
		if errors.Is(err, nats.ErrTimeout) {
			err = fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		if ctx.Err() == nil {
			c.st.disconnect(err)
		}
		return
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	c.sub = sub
	c.unwatch = c.bus.OnDisconnect(func(err error) {
		c.st.disconnect(fmt.Errorf("bus disconnected: %w", err))
	})
	c.connected = true
	c.mu.Unlock()

	c.st.connected()
}

func (c *natsChannel) handle(msg *nats.Msg) {
	in, err := protocol.Decode(msg.Data)
	if err != nil {
		c.log.Warn("dropping undecodable event", slog.String("error", err.Error()))
		return
	}
	if in.Kind == protocol.EventConnect {
		return
	}
	c.st.emit(in)
}

func (c *natsChannel) Send(ctx context.Context, out protocol.Outbound) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if c.st.isDone() {
		return ErrClosed
	}
	if !connected {
		return ErrNotConnected
	}
	data, err := protocol.Encode(out)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.bus.Conn().Publish(protocol.RequestSubject(c.prefix, c.id), data); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return nil
}

func (c *natsChannel) Close() error {
	c.end()
	c.mu.Lock()
	sub, unwatch := c.sub, c.unwatch
	c.sub, c.unwatch = nil, nil
	c.connected = false
	c.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	return nil
}
