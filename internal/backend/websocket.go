package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"nhooyr.io/websocket"
)

// Handler serves the simulator over websocket, one session per connection.
// The first text frame is the request envelope.
func Handler(sim *Simulator, log *slog.Logger) http.Handler {
	logger := log.With(slog.String("component", "backend-ws"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			logger.Warn("websocket accept failed", slogError(err))
			return
		}
		defer conn.CloseNow()

		sessionID := r.URL.Query().Get("session")
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			logger.Warn("failed to decode request", slogError(err), slog.String("session_id", sessionID))
			return
		}

		// the read side is only watched for the peer going away
		ctx = conn.CloseRead(ctx)

		var mu sync.Mutex
		_ = sim.Run(ctx, env, func(out protocol.Envelope) {
			data, err := json.Marshal(out)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				cancel()
			}
		})
		conn.Close(websocket.StatusNormalClosure, "")
	})
}
