package model

import "time"

type MoodEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Mood      float64   `json:"mood"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
