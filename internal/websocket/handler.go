package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/serene/internal/auth"
)

// Greeter builds the first message sent to a new connection, typically a
// snapshot of the user's session. A nil result sends nothing.
type Greeter func(ctx context.Context, userID string) (any, error)

// HandleWebSocket returns an HTTP handler that upgrades authenticated
// connections and runs them as Hub clients of the requesting user.
func HandleWebSocket(hub *Hub, greet Greeter, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var greeting []byte
		if greet != nil {
			v, err := greet(r.Context(), userID)
			if err != nil {
				logger.Error("websocket greeting", "user_id", userID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if v != nil {
				greeting, err = json.Marshal(v)
				if err != nil {
					logger.Error("marshal greeting", "user_id", userID, "error", err)
				}
			}
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns:     originPatterns,
			InsecureSkipVerify: len(originPatterns) == 0,
		})
		if err != nil {
			logger.Warn("websocket accept", "user_id", userID, "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, userID)
		client.Run(r.Context(), greeting)
	}
}
