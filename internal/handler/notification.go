package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/model"
	"github.com/dukerupert/serene/internal/store"
)

type NotificationHandler struct {
	store  *store.NotificationStore
	now    func() time.Time
	logger *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: ns, now: time.Now, logger: logger}
}

// List handles GET /api/notifications. Seen notifications are included only
// with ?all=true.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var (
		notifs []model.Notification
		err    error
	)
	if r.URL.Query().Get("all") == "true" {
		notifs, err = h.store.ListAll(r.Context(), userID)
	} else {
		notifs, err = h.store.ListActive(r.Context(), userID)
	}
	if err != nil {
		h.logger.Error("list notifications", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, notifs)
}

// Seen handles POST /api/notifications/{id}/seen
func (h *NotificationHandler) Seen(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	ok, err := h.store.MarkSeen(r.Context(), userID, r.PathValue("id"), h.now())
	if err != nil {
		h.logger.Error("mark notification seen", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
