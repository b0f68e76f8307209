package assessment

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput is returned when a questionnaire response has the wrong
// length, an unanswered item, or an out-of-range value.
var ErrInvalidInput = errors.New("invalid input")

const (
	QuestionCount = 9
	MaxAnswer     = 3
	MaxScore      = QuestionCount * MaxAnswer

	// HighPriorityScore is the lowest total that raises an alert.
	HighPriorityScore = 15
)

// Answer is a single PHQ-9 item response. Valid answers are 0..3;
// Unanswered marks an item the user has not responded to yet.
type Answer int

const Unanswered Answer = -1

// Questions are the nine PHQ-9 items in presentation order.
var Questions = [QuestionCount]string{
	"Little interest or pleasure in doing things",
	"Feeling down, depressed, or hopeless",
	"Trouble falling or staying asleep, or sleeping too much",
	"Feeling tired or having little energy",
	"Poor appetite or overeating",
	"Feeling bad about yourself or that you are a failure or have let yourself or your family down",
	"Trouble concentrating on things, such as reading the newspaper or watching television",
	"Moving or speaking so slowly that other people could have noticed, or being so fidgety or restless that you have been moving around a lot more than usual",
	"Thoughts that you would be better off dead or of hurting yourself in some way",
}

// AnswerLabels are the response options shared by every item.
var AnswerLabels = [MaxAnswer + 1]string{
	"Not at all",
	"Several days",
	"More than half the days",
	"Nearly every day",
}

// Result is a scored questionnaire.
type Result struct {
	Responses []int     `json:"responses"`
	Total     int       `json:"total"`
	Severity  Severity  `json:"severity"`
	TakenAt   time.Time `json:"taken_at"`
}

// HighPriority reports whether the result should raise an alert.
func (r Result) HighPriority() bool {
	return r.Total >= HighPriorityScore
}

// Score validates responses and computes the total and severity tier.
func Score(responses []Answer, at time.Time) (Result, error) {
	if len(responses) != QuestionCount {
		return Result{}, fmt.Errorf("%w: got %d responses, want %d", ErrInvalidInput, len(responses), QuestionCount)
	}

	values := make([]int, QuestionCount)
	total := 0
	for i, a := range responses {
		if a == Unanswered {
			return Result{}, fmt.Errorf("%w: question %d is unanswered", ErrInvalidInput, i+1)
		}
		if a < 0 || a > MaxAnswer {
			return Result{}, fmt.Errorf("%w: question %d has value %d, want 0..%d", ErrInvalidInput, i+1, a, MaxAnswer)
		}
		values[i] = int(a)
		total += int(a)
	}

	return Result{
		Responses: values,
		Total:     total,
		Severity:  Classify(total),
		TakenAt:   at,
	}, nil
}

// AnswersFromInts converts nullable wire values into answers. A nil entry
// becomes Unanswered.
func AnswersFromInts(values []*int) []Answer {
	answers := make([]Answer, len(values))
	for i, v := range values {
		if v == nil {
			answers[i] = Unanswered
			continue
		}
		answers[i] = Answer(*v)
	}
	return answers
}
