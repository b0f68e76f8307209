package mood

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/serene/internal/model"
)

// Timeframe is a trailing window of whole days.
type Timeframe int

const (
	Week  Timeframe = 7
	Month Timeframe = 30
)

func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "7", "7d", "week":
		return Week, nil
	case "30", "30d", "month":
		return Month, nil
	}
	return 0, fmt.Errorf("unknown timeframe %q", s)
}

// Since returns the first instant inside the window ending at now. The
// window covers today plus the preceding tf-1 calendar days.
func (tf Timeframe) Since(now time.Time) time.Time {
	return startOfDay(now).AddDate(0, 0, -(int(tf) - 1))
}

// Window keeps the entries created inside the timeframe ending at now.
func Window(entries []model.MoodEntry, now time.Time, tf Timeframe) []model.MoodEntry {
	since := tf.Since(now)
	var out []model.MoodEntry
	for _, e := range entries {
		if e.CreatedAt.Before(since) || e.CreatedAt.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out
}

type DayAverage struct {
	Date    string  `json:"date"`
	Average float64 `json:"average"`
	Entries int     `json:"entries"`
}

type Summary struct {
	Count   int          `json:"count"`
	Average float64      `json:"average"`
	Min     float64      `json:"min"`
	Max     float64      `json:"max"`
	LowDays int          `json:"low_days"`
	Days    []DayAverage `json:"days"`
}

// Summarize aggregates clamped mood values. Days are ordered oldest first and
// a day is low when its average is below LowThreshold.
func Summarize(entries []model.MoodEntry, loc *time.Location) Summary {
	if len(entries) == 0 {
		return Summary{Days: []DayAverage{}}
	}

	type acc struct {
		sum   float64
		count int
	}
	days := make(map[string]*acc)

	s := Summary{Min: MaxMood, Max: MinMood}
	total := 0.0
	for _, e := range entries {
		v := Clamp(e.Mood)
		total += v
		s.Count++
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)

		k := dayKey(e.CreatedAt.In(loc))
		a, ok := days[k]
		if !ok {
			a = &acc{}
			days[k] = a
		}
		a.sum += v
		a.count++
	}
	s.Average = total / float64(s.Count)

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		a := days[k]
		avg := a.sum / float64(a.count)
		if avg < LowThreshold {
			s.LowDays++
		}
		s.Days = append(s.Days, DayAverage{Date: k, Average: avg, Entries: a.count})
	}
	return s
}
