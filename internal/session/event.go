package session

import (
	"context"

	"github.com/dukerupert/serene/internal/assessment"
	"github.com/dukerupert/serene/internal/challenge"
	"github.com/dukerupert/serene/internal/model"
)

// Event type constants
const (
	EventChallengeStarted   = "challenge_started"
	EventChallengeTick      = "challenge_tick"
	EventChallengeCompleted = "challenge_completed"
	EventChallengeCancelled = "challenge_cancelled"
	EventReplenished        = "challenges_replenished"
	EventPointsAwarded      = "points_awarded"
	EventNotification       = "notification_created"
)

// Event is a state change pushed to the user's live clients.
type Event struct {
	Type         string              `json:"type"`
	ChallengeID  string              `json:"challenge_id,omitempty"`
	Timer        *challenge.Timer    `json:"timer,omitempty"`
	Points       int                 `json:"points,omitempty"`
	Awarded      int                 `json:"awarded,omitempty"`
	Active       []ActiveChallenge   `json:"active,omitempty"`
	Notification *model.Notification `json:"notification,omitempty"`
}

// Publisher delivers events to a user's connected clients. Implementations
// must not block.
type Publisher interface {
	Publish(userID string, ev Event)
}

type PublisherFunc func(userID string, ev Event)

func (f PublisherFunc) Publish(userID string, ev Event) { f(userID, ev) }

// Store is the persistence a session reads from and writes through.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	MergeUser(ctx context.Context, userID string, patch model.UserPatch) error
	IncrementPoints(ctx context.Context, userID string, delta int) error
	AppendNotification(ctx context.Context, n model.Notification) error
	AddAssessment(ctx context.Context, userID string, res assessment.Result) (*model.AssessmentRecord, error)
}

// ActiveChallenge is an offered challenge with its timer state.
type ActiveChallenge struct {
	challenge.Definition
	DurationMinutes int             `json:"duration_minutes"`
	State           challenge.State `json:"state"`
	Remaining       int             `json:"remaining_seconds"`
	EndsAt          *string         `json:"ends_at,omitempty"`
}

// View is a point-in-time snapshot of a session.
type View struct {
	UserID        string              `json:"user_id"`
	Points        int                 `json:"points"`
	Severity      assessment.Severity `json:"severity,omitempty"`
	AssessmentDue bool                `json:"assessment_due"`
	Active        []ActiveChallenge   `json:"active"`
	Completed     []string            `json:"completed"`
}
