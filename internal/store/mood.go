package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/serene/internal/model"
)

// NoteCipher seals journal notes at rest.
type NoteCipher interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

type MoodStore struct {
	db     *sql.DB
	cipher NoteCipher
}

// NewMoodStore returns a mood store. A nil cipher stores notes as-is.
func NewMoodStore(db *sql.DB, cipher NoteCipher) *MoodStore {
	return &MoodStore{db: db, cipher: cipher}
}

const moodCols = `id, user_id, mood, note, created_at`

func (s *MoodStore) scanMood(scanner interface{ Scan(...any) error }) (*model.MoodEntry, error) {
	var e model.MoodEntry
	if err := scanner.Scan(&e.ID, &e.UserID, &e.Mood, &e.Note, &e.CreatedAt); err != nil {
		return nil, err
	}
	if s.cipher != nil && e.Note != "" {
		note, err := s.cipher.Open(e.Note)
		if err != nil {
			return nil, fmt.Errorf("open note: %w", err)
		}
		e.Note = note
	}
	return &e, nil
}

// AddMood appends a mood entry.
func (s *MoodStore) AddMood(ctx context.Context, e model.MoodEntry) (*model.MoodEntry, error) {
	note := e.Note
	if s.cipher != nil && note != "" {
		sealed, err := s.cipher.Seal(note)
		if err != nil {
			return nil, fmt.Errorf("seal note: %w", err)
		}
		note = sealed
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO mood_entries (user_id, mood, note, created_at) VALUES (?, ?, ?, ?)`,
		e.UserID, e.Mood, note, e.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert mood entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetMood(ctx, id)
}

func (s *MoodStore) GetMood(ctx context.Context, id int64) (*model.MoodEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+moodCols+` FROM mood_entries WHERE id = ?`, id)
	e, err := s.scanMood(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mood entry: %w", err)
	}
	return e, nil
}

// ListMoodsSince returns the user's entries at or after since, oldest first.
func (s *MoodStore) ListMoodsSince(ctx context.Context, userID string, since time.Time) ([]model.MoodEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+moodCols+` FROM mood_entries WHERE user_id = ? AND created_at >= ? ORDER BY created_at, id`,
		userID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list mood entries: %w", err)
	}
	defer rows.Close()

	entries := []model.MoodEntry{}
	for rows.Next() {
		e, err := s.scanMood(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mood entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
