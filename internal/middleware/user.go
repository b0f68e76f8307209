package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/dukerupert/serene/internal/auth"
)

// EnsureFunc creates the user row for an authenticated caller if needed.
type EnsureFunc func(ctx context.Context, userID, email string) error

// EnsureUser makes sure every authenticated user has a row before any
// handler writes records that reference it. Users already seen by this
// process are not checked again.
func EnsureUser(ensure EnsureFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	var known sync.Map

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if _, seen := known.Load(ac.UserID); !seen {
				if err := ensure(r.Context(), ac.UserID, ac.Email); err != nil {
					logger.Error("ensure user", "user_id", ac.UserID, "error", err)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"failed to load user"}` + "\n"))
					return
				}
				known.Store(ac.UserID, struct{}{})
			}
			next.ServeHTTP(w, r)
		})
	}
}
