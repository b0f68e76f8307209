package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/model"
	"github.com/dukerupert/serene/internal/store"
)

type CrisisHandler struct {
	store  *store.CrisisEventStore
	logger *slog.Logger
}

func NewCrisisHandler(cs *store.CrisisEventStore, logger *slog.Logger) *CrisisHandler {
	return &CrisisHandler{store: cs, logger: logger}
}

type crisisEventRequest struct {
	Type             string   `json:"type" validate:"required,oneof=emergency_call location_share"`
	CenterName       string   `json:"center_name" validate:"max=200"`
	CenterPhone      string   `json:"center_phone" validate:"max=40"`
	Latitude         *float64 `json:"latitude" validate:"omitnil,gte=-90,lte=90"`
	Longitude        *float64 `json:"longitude" validate:"omitnil,gte=-180,lte=180"`
	EmergencyContact string   `json:"emergency_contact" validate:"max=200"`
	Acknowledged     bool     `json:"acknowledged"`
}

// Create handles POST /api/crisis-events
func (h *CrisisHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req crisisEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == model.CrisisLocationShare && (req.Latitude == nil || req.Longitude == nil) {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required to share a location")
		return
	}

	ev, err := h.store.AddCrisisEvent(r.Context(), model.CrisisEvent{
		UserID:           userID,
		Type:             req.Type,
		CenterName:       req.CenterName,
		CenterPhone:      req.CenterPhone,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		EmergencyContact: req.EmergencyContact,
		Acknowledged:     req.Acknowledged,
	})
	if err != nil {
		h.logger.Error("add crisis event", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record crisis event")
		return
	}

	h.logger.Warn("crisis support used", "user_id", userID, "type", ev.Type)
	writeJSON(w, http.StatusCreated, ev)
}

// List handles GET /api/crisis-events
func (h *CrisisHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	events, err := h.store.ListCrisisEvents(r.Context(), userID)
	if err != nil {
		h.logger.Error("list crisis events", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list crisis events")
		return
	}
	if events == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, events)
}
