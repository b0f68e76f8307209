package mood

import (
	"time"

	"github.com/dukerupert/serene/internal/model"
)

const (
	MinMood = 0.0
	MaxMood = 5.0

	// LowThreshold is the exclusive upper bound of a low-mood value.
	LowThreshold = 2.5

	// StreakWindow is how many calendar days back a streak is searched.
	StreakWindow = 7

	// DueStreak is the streak length that makes an assessment due.
	DueStreak = 3
)

// Clamp bounds a stored mood value to the 0-5 scale.
func Clamp(v float64) float64 {
	if v < MinMood {
		return MinMood
	}
	if v > MaxMood {
		return MaxMood
	}
	return v
}

// ConsecutiveLowDays counts the run of low-mood days ending today. A day with
// no entry or a mood at or above LowThreshold ends the run. When a day has
// several entries the latest one is used.
func ConsecutiveLowDays(entries []model.MoodEntry, today time.Time) int {
	byDay := latestPerDay(entries, today.Location())

	day := startOfDay(today)
	count := 0
	for i := 0; i < StreakWindow; i++ {
		e, ok := byDay[dayKey(day)]
		if !ok || Clamp(e.Mood) >= LowThreshold {
			break
		}
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count
}

// AssessmentDue reports whether a low streak should prompt a questionnaire.
// It never fires once the user has an assessment on record.
func AssessmentDue(streak int, hasAssessment bool) bool {
	return streak >= DueStreak && !hasAssessment
}

func latestPerDay(entries []model.MoodEntry, loc *time.Location) map[string]model.MoodEntry {
	byDay := make(map[string]model.MoodEntry, len(entries))
	for _, e := range entries {
		d := dayKey(e.CreatedAt.In(loc))
		if prev, ok := byDay[d]; ok && !e.CreatedAt.After(prev.CreatedAt) {
			continue
		}
		byDay[d] = e
	}
	return byDay
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
