package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Setting keys
const (
	SettingJournalSalt = "journal_salt"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value for key and whether it was set.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetOrCreate returns the stored value for key, storing and returning
// generate()'s result when the key is unset.
func (s *SettingsStore) GetOrCreate(ctx context.Context, key string, generate func() (string, error)) (string, error) {
	if v, ok, err := s.Get(ctx, key); err != nil || ok {
		return v, err
	}
	v, err := generate()
	if err != nil {
		return "", fmt.Errorf("generate setting %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, v); err != nil {
		return "", fmt.Errorf("set setting %q: %w", key, err)
	}
	v, _, err = s.Get(ctx, key)
	return v, err
}
