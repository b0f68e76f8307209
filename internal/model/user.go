package model

import "time"

// User is the aggregate root for everything a person records.
type User struct {
	ID                     string          `json:"id"`
	Email                  string          `json:"email"`
	DisplayName            string          `json:"display_name"`
	Points                 int             `json:"points"`
	LastAssessment         *LastAssessment `json:"last_assessment,omitempty"`
	AssessmentDue          bool            `json:"assessment_due"`
	PersonalizedChallenges []string        `json:"personalized_challenges"`
	CompletedChallengeIDs  []string        `json:"completed_challenge_ids"`
	Notifications          []Notification  `json:"notifications"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

type LastAssessment struct {
	Score    int       `json:"score"`
	Severity string    `json:"severity"`
	TakenAt  time.Time `json:"taken_at"`
}

// UserPatch is a shallow merge onto a user. Nil fields are left untouched.
type UserPatch struct {
	Email                  *string
	DisplayName            *string
	LastAssessment         *LastAssessment
	AssessmentDue          *bool
	PersonalizedChallenges []string
	SetChallenges          bool
	AddCompleted           []string
	ResetCompleted         bool
}

// Empty reports whether the patch writes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.DisplayName == nil && p.LastAssessment == nil &&
		p.AssessmentDue == nil && !p.SetChallenges && len(p.AddCompleted) == 0 && !p.ResetCompleted
}
