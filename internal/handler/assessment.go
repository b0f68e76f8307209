package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/serene/internal/assessment"
	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/model"
	"github.com/dukerupert/serene/internal/session"
	"github.com/dukerupert/serene/internal/store"
)

const (
	defaultAssessmentLimit = 20
	maxAssessmentLimit     = 100
)

type AssessmentHandler struct {
	sessions Sessions
	store    *store.AssessmentStore
	logger   *slog.Logger
}

func NewAssessmentHandler(sessions Sessions, as *store.AssessmentStore, logger *slog.Logger) *AssessmentHandler {
	return &AssessmentHandler{sessions: sessions, store: as, logger: logger}
}

type question struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Questions handles GET /api/assessment/questions
func (h *AssessmentHandler) Questions(w http.ResponseWriter, r *http.Request) {
	qs := make([]question, len(assessment.Questions))
	for i, text := range assessment.Questions {
		qs[i] = question{Number: i + 1, Text: text}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": qs,
		"options":   assessment.AnswerLabels,
	})
}

type submitAssessmentRequest struct {
	Answers []*int `json:"answers" validate:"required,len=9,dive,omitnil,gte=0,lte=3"`
}

// Submit handles POST /api/assessments
func (h *AssessmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req submitAssessmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var rec *model.AssessmentRecord
	sess, err := withSession(r.Context(), h.sessions, userID, func(s *session.Session) error {
		var err error
		rec, err = s.SubmitAssessment(r.Context(), assessment.AnswersFromInts(req.Answers))
		return err
	})
	if errors.Is(err, assessment.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("submit assessment", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to submit assessment")
		return
	}

	sev := assessment.Severity(rec.Severity)
	writeJSON(w, http.StatusCreated, map[string]any{
		"assessment":     rec,
		"label":          sev.Label(),
		"recommendation": assessment.Recommend(sev),
		"high_priority":  rec.Score >= assessment.HighPriorityScore,
		"challenges":     sess.Snapshot().Active,
	})
}

// List handles GET /api/assessments?limit=N
func (h *AssessmentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	limit := defaultAssessmentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAssessmentLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	recs, err := h.store.ListAssessments(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("list assessments", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}
	if recs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
