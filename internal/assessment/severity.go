package assessment

import "fmt"

// Severity is a PHQ-9 depression severity tier.
type Severity string

const (
	SeverityNone             Severity = ""
	SeverityMinimal          Severity = "minimal"
	SeverityMild             Severity = "mild"
	SeverityModerate         Severity = "moderate"
	SeverityModeratelySevere Severity = "moderately_severe"
	SeveritySevere           Severity = "severe"
)

// Classify maps a total score onto its severity tier. Lower bounds are
// inclusive: 5 is mild, 10 moderate, 15 moderately severe, 20 severe.
func Classify(total int) Severity {
	switch {
	case total < 5:
		return SeverityMinimal
	case total < 10:
		return SeverityMild
	case total < 15:
		return SeverityModerate
	case total < 20:
		return SeverityModeratelySevere
	default:
		return SeveritySevere
	}
}

// Rank orders tiers from 1 (minimal) to 5 (severe). SeverityNone is 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinimal:
		return 1
	case SeverityMild:
		return 2
	case SeverityModerate:
		return 3
	case SeverityModeratelySevere:
		return 4
	case SeveritySevere:
		return 5
	}
	return 0
}

// Label is the human-readable tier name.
func (s Severity) Label() string {
	switch s {
	case SeverityMinimal:
		return "Minimal"
	case SeverityMild:
		return "Mild"
	case SeverityModerate:
		return "Moderate"
	case SeverityModeratelySevere:
		return "Moderately Severe"
	case SeveritySevere:
		return "Severe"
	}
	return "Not assessed"
}

// ParseSeverity converts a stored tier name back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if sev == SeverityNone || sev.Rank() > 0 {
		return sev, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

// Action is the recommended response tier for a severity.
type Action string

const (
	ActionSelfCare   Action = "self_care"
	ActionMonitor    Action = "monitor"
	ActionCounseling Action = "counseling"
	ActionTreatment  Action = "treatment"
	ActionUrgent     Action = "urgent"
)

// Recommendation pairs an action tier with a message for the user.
type Recommendation struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
}

// Recommend returns the suggested next step for a severity tier.
func Recommend(s Severity) Recommendation {
	switch s {
	case SeverityMild:
		return Recommendation{ActionMonitor, "Keep tracking your mood and repeat the questionnaire in two weeks."}
	case SeverityModerate:
		return Recommendation{ActionCounseling, "Consider talking to a counselor or your doctor about how you have been feeling."}
	case SeverityModeratelySevere:
		return Recommendation{ActionTreatment, "Please reach out to a mental health professional soon."}
	case SeveritySevere:
		return Recommendation{ActionUrgent, "Please contact a mental health professional or a crisis line today."}
	}
	return Recommendation{ActionSelfCare, "Keep up the routines that help you feel well."}
}
