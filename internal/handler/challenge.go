package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/session"
)

type ChallengeHandler struct {
	sessions Sessions
	catalog  *challenge.Catalog
	logger   *slog.Logger
}

func NewChallengeHandler(sessions Sessions, catalog *challenge.Catalog, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{sessions: sessions, catalog: catalog, logger: logger}
}

type catalogItem struct {
	challenge.Definition
	DurationMinutes int `json:"duration_minutes"`
}

// Catalog handles GET /api/challenges/catalog
func (h *ChallengeHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	defs := h.catalog.All()
	items := make([]catalogItem, len(defs))
	for i, d := range defs {
		items[i] = catalogItem{Definition: d, DurationMinutes: d.DurationMinutes()}
	}
	writeJSON(w, http.StatusOK, items)
}

// Snapshot handles GET /api/challenges
func (h *ChallengeHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// Start handles POST /api/challenges/{id}/start
func (h *ChallengeHandler) Start(w http.ResponseWriter, r *http.Request) {
	var tm challenge.Timer
	_, err := withSession(r.Context(), h.sessions, auth.UserID(r.Context()), func(s *session.Session) error {
		var err error
		tm, err = s.StartChallenge(r.PathValue("id"))
		return err
	})
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tm)
}

// Cancel handles POST /api/challenges/{id}/cancel
func (h *ChallengeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	_, err := withSession(r.Context(), h.sessions, auth.UserID(r.Context()), func(s *session.Session) error {
		return s.CancelChallenge(r.PathValue("id"))
	})
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChallengeHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID := auth.UserID(r.Context())
	sess, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("load session", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return sess, true
}

func (h *ChallengeHandler) writeChallengeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, challenge.ErrUnknownChallenge):
		writeError(w, http.StatusNotFound, "challenge not found")
	case errors.Is(err, session.ErrNotActive):
		writeError(w, http.StatusConflict, "challenge is not currently offered")
	case errors.Is(err, session.ErrNotRunning):
		writeError(w, http.StatusConflict, "challenge is not running")
	default:
		h.logger.Error("challenge action", "error", err)
		writeError(w, http.StatusInternalServerError, "challenge action failed")
	}
}
