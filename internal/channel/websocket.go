package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"nhooyr.io/websocket"
)

// WebsocketDialer connects each session to URL with a session query
// parameter. Frames are JSON envelopes.
type WebsocketDialer struct {
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger
}

func (d *WebsocketDialer) Dial(sessionID string) Channel {
	return &wsChannel{
		lifecycle: newLifecycle(),
		url:       sessionURL(d.URL, sessionID),
		timeout:   d.Timeout,
		log:       d.Logger.With(slog.String("session_id", sessionID)),
	}
}

func sessionURL(base, sessionID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

type wsChannel struct {
	lifecycle
	url     string
	timeout time.Duration
	log     *slog.Logger
	conn    *websocket.Conn
}

func (c *wsChannel) Open(ctx context.Context) (<-chan protocol.Inbound, error) {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	go c.run(runCtx)
	return c.st.events, nil
}

func (c *wsChannel) run(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		err = connectError(dialCtx, err)
		cancel()
		if ctx.Err() == nil {
			c.st.disconnect(err)
		}
		return
	}
	cancel()

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.CloseNow()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	conn.SetReadLimit(1 << 20)

	c.st.connected()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if status := websocket.CloseStatus(err); status != -1 {
				err = fmt.Errorf("peer closed connection: %w", err)
			}
			c.st.disconnect(err)
			return
		}
		in, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("dropping undecodable frame", slog.String("error", err.Error()))
			continue
		}
		if in.Kind == protocol.EventConnect {
			continue
		}
		c.st.emit(in)
		if in.Terminal() {
			return
		}
	}
}

func (c *wsChannel) Send(ctx context.Context, out protocol.Outbound) error {
	c.mu.Lock()
	conn := c.conn
	done := c.st.isDone()
	c.mu.Unlock()
	if done {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	data, err := protocol.Encode(out)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *wsChannel) Close() error {
	c.end()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.CloseNow()
	}
	return nil
}
