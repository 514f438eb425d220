package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/readq/internal/wire"
)

const (
	eventsBuffer = 64
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// The API listens on localhost and requires the bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents pushes every state change to the client as a camelCase JSON
// text message until either side closes the connection.
func handleEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error.
			slog.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		events, cancel := deps.Service.State().Subscribe(eventsBuffer)
		defer cancel()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				b, err := wire.MarshalCamel(ev)
				if err != nil {
					slog.Error("encoding event", "error", err)
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					slog.Debug("websocket write failed", "error", err)
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
