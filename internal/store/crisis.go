package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/serene/internal/model"
)

type CrisisEventStore struct {
	db *sql.DB
}

func NewCrisisEventStore(db *sql.DB) *CrisisEventStore {
	return &CrisisEventStore{db: db}
}

const crisisCols = `id, user_id, type, center_name, center_phone, latitude, longitude,
	emergency_contact, acknowledged, created_at`

func scanCrisisEvent(scanner interface{ Scan(...any) error }) (*model.CrisisEvent, error) {
	var (
		e        model.CrisisEvent
		lat, lng sql.NullFloat64
		ack      int
	)
	err := scanner.Scan(&e.ID, &e.UserID, &e.Type, &e.CenterName, &e.CenterPhone, &lat, &lng,
		&e.EmergencyContact, &ack, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		e.Latitude = &lat.Float64
	}
	if lng.Valid {
		e.Longitude = &lng.Float64
	}
	e.Acknowledged = ack != 0
	return &e, nil
}

// AddCrisisEvent appends a crisis-support action taken by the user.
func (s *CrisisEventStore) AddCrisisEvent(ctx context.Context, e model.CrisisEvent) (*model.CrisisEvent, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO crisis_events (user_id, type, center_name, center_phone, latitude, longitude, emergency_contact, acknowledged)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Type, e.CenterName, e.CenterPhone, e.Latitude, e.Longitude, e.EmergencyContact, boolInt(e.Acknowledged),
	)
	if err != nil {
		return nil, fmt.Errorf("insert crisis event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+crisisCols+` FROM crisis_events WHERE id = ?`, id)
	created, err := scanCrisisEvent(row)
	if err != nil {
		return nil, fmt.Errorf("get crisis event: %w", err)
	}
	return created, nil
}

func (s *CrisisEventStore) ListCrisisEvents(ctx context.Context, userID string) ([]model.CrisisEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+crisisCols+` FROM crisis_events WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list crisis events: %w", err)
	}
	defer rows.Close()

	events := []model.CrisisEvent{}
	for rows.Next() {
		e, err := scanCrisisEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crisis event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
