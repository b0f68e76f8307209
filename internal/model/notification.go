package model

import "time"

// Notification type constants
const (
	NotifTypeChallengeCompleted = "challenge_completed"
	NotifTypeAssessmentAlert    = "assessment_alert"
	NotifTypeAssessmentDue      = "assessment_due"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	SeenAt    *time.Time `json:"seen_at,omitempty"`
}
