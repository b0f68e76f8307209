package model

import "time"

// AssessmentRecord is a persisted questionnaire submission.
type AssessmentRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Responses []int     `json:"responses"`
	Score     int       `json:"score"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}
