package channel

import (
	"context"

	"github.com/loqalabs/loqa-podcast/internal/backend"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

// MockDialer runs sessions against the in-process simulator.
type MockDialer struct {
	Simulator *backend.Simulator
}

func (d *MockDialer) Dial(sessionID string) Channel {
	return &mockChannel{lifecycle: newLifecycle(), id: sessionID, sim: d.Simulator}
}

type mockChannel struct {
	lifecycle
	id   string
	sim  *backend.Simulator
	sent bool
}

func (c *mockChannel) Open(ctx context.Context) (<-chan protocol.Inbound, error) {
	if _, err := c.begin(ctx); err != nil {
		return nil, err
	}
	go c.st.connected()
	return c.st.events, nil
}

func (c *mockChannel) Send(_ context.Context, out protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.isDone() {
		return ErrClosed
	}
	if !c.opened {
		return ErrNotConnected
	}
	env, err := protocol.NewEnvelope(out.Event(), out)
	if err != nil {
		return err
	}
	if c.sent {
		return nil
	}
	c.sent = true
	ctx := c.ctx
	go func() {
		_ = c.sim.Run(ctx, env, func(e protocol.Envelope) {
			in, err := protocol.DecodeInbound(e)
			if err != nil {
				return
			}
			c.st.emit(in)
		})
	}()
	return nil
}

func (c *mockChannel) Close() error {
	c.end()
	return nil
}
