// Package channeltest provides scripted channels for tests.
package channeltest

import (
	"context"
	"sync"

	"github.com/loqalabs/loqa-podcast/internal/channel"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
)

// Fake is an in-memory channel. Tests drive it with Emit.
type Fake struct {
	ID string

	// OpenErr is returned by Open when set.
	OpenErr error
	// SendErr is returned by Send when set.
	SendErr error
	// AutoConnect emits a connect event from Open.
	AutoConnect bool
	// BlockSend makes Send wait until its context is done, like a write on
	// a stalled socket.
	BlockSend bool
	// Script is replayed after the first successful Send.
	Script []protocol.Inbound
	// Lingering keeps the event stream deliverable after Close, modelling a
	// transport that already had events in flight.
	Lingering bool

	mu      sync.Mutex
	events  chan protocol.Inbound
	sent    []protocol.Outbound
	opened  bool
	closed  bool
	drained bool
}

func NewFake(id string) *Fake {
	return &Fake{ID: id, events: make(chan protocol.Inbound, 64)}
}

func (f *Fake) Open(context.Context) (<-chan protocol.Inbound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	if f.closed {
		return nil, channel.ErrClosed
	}
	f.opened = true
	if f.AutoConnect {
		f.events <- protocol.Inbound{Kind: protocol.EventConnect}
	}
	return f.events, nil
}

func (f *Fake) Send(ctx context.Context, out protocol.Outbound) error {
	f.mu.Lock()
	block := f.BlockSend && !f.closed
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return channel.ErrClosed
	}
	if f.SendErr != nil {
		return f.SendErr
	}
	f.sent = append(f.sent, out)
	if len(f.sent) == 1 {
		for _, ev := range f.Script {
			f.events <- ev
		}
	}
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if !f.Lingering {
		f.drained = true
		close(f.events)
	}
	return nil
}

// Emit delivers ev to the consumer. It reports false once the stream is gone.
func (f *Fake) Emit(ev protocol.Inbound) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.drained {
		return false
	}
	f.events <- ev
	return true
}

func (f *Fake) Sent() []protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Outbound(nil), f.sent...)
}

func (f *Fake) Opened() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Dialer hands out Fakes and remembers them in dial order.
type Dialer struct {
	// Configure, when set, adjusts every new Fake before it is returned.
	Configure func(*Fake)

	mu    sync.Mutex
	fakes []*Fake
}

func (d *Dialer) Dial(sessionID string) channel.Channel {
	f := NewFake(sessionID)
	if d.Configure != nil {
		d.Configure(f)
	}
	d.mu.Lock()
	d.fakes = append(d.fakes, f)
	d.mu.Unlock()
	return f
}

// Last returns the most recently dialed Fake, or nil.
func (d *Dialer) Last() *Fake {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.fakes) == 0 {
		return nil
	}
	return d.fakes[len(d.fakes)-1]
}

// All returns every dialed Fake in order.
func (d *Dialer) All() []*Fake {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Fake(nil), d.fakes...)
}
