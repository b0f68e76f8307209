package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/store"
)

type AuthHandler struct {
	users  *store.UserStore
	logger *slog.Logger
}

func NewAuthHandler(users *store.UserStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

// Verify handles POST /api/auth/verify. The token has already been checked
// by RequireAuth; this records the user and echoes the stored profile.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	u, err := h.users.EnsureUser(r.Context(), ac.UserID, ac.Email)
	if err != nil {
		h.logger.Error("ensure user", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "token verified",
		"user":    u,
	})
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	u, err := h.users.GetUser(r.Context(), ac.UserID)
	if err == nil && u == nil {
		u, err = h.users.EnsureUser(r.Context(), ac.UserID, ac.Email)
	}
	if err != nil {
		h.logger.Error("get user", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
