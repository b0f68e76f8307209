package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/model"
	"github.com/dukerupert/serene/internal/mood"
	"github.com/dukerupert/serene/internal/session"
	"github.com/dukerupert/serene/internal/store"
)

type MoodHandler struct {
	moods    *store.MoodStore
	sessions Sessions
	now      func() time.Time
	logger   *slog.Logger
}

func NewMoodHandler(ms *store.MoodStore, sessions Sessions, now func() time.Time, logger *slog.Logger) *MoodHandler {
	if now == nil {
		now = time.Now
	}
	return &MoodHandler{moods: ms, sessions: sessions, now: now, logger: logger}
}

type moodRequest struct {
	Mood *float64 `json:"mood" validate:"required,gte=0,lte=5"`
	Note string   `json:"note" validate:"max=2000"`
}

// Create handles POST /api/moods. The low-mood streak is re-evaluated after
// every entry.
func (h *MoodHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req moodRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	now := h.now()
	entry, err := h.moods.AddMood(r.Context(), model.MoodEntry{
		UserID:    userID,
		Mood:      *req.Mood,
		Note:      req.Note,
		CreatedAt: now,
	})
	if err != nil {
		h.logger.Error("add mood", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save mood")
		return
	}

	recent, err := h.moods.ListMoodsSince(r.Context(), userID, mood.Timeframe(mood.StreakWindow).Since(now))
	if err != nil {
		h.logger.Error("list recent moods", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to evaluate mood streak")
		return
	}

	var streak int
	var due bool
	_, err = withSession(r.Context(), h.sessions, userID, func(s *session.Session) error {
		var err error
		streak, due, err = s.ObserveMood(recent, now)
		return err
	})
	if err != nil {
		h.logger.Error("observe mood", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to evaluate mood streak")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"entry":          entry,
		"streak":         streak,
		"assessment_due": due,
	})
}

// List handles GET /api/moods?timeframe=7|30
func (h *MoodHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	tf, err := mood.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.now()
	entries, err := h.moods.ListMoodsSince(r.Context(), userID, tf.Since(now))
	if err != nil {
		h.logger.Error("list moods", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list moods")
		return
	}
	entries = mood.Window(entries, now, tf)
	if entries == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Summary handles GET /api/moods/summary?timeframe=7|30
func (h *MoodHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	tf, err := mood.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("load session", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	now := h.now()
	entries, err := h.moods.ListMoodsSince(r.Context(), userID, tf.Since(now))
	if err != nil {
		h.logger.Error("list moods", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize moods")
		return
	}
	entries = mood.Window(entries, now, tf)

	writeJSON(w, http.StatusOK, map[string]any{
		"timeframe":      int(tf),
		"summary":        mood.Summarize(entries, now.Location()),
		"streak":         mood.ConsecutiveLowDays(entries, now),
		"assessment_due": sess.Snapshot().AssessmentDue,
	})
}
