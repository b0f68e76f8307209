package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/serene/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, user_id, type, title, message, timestamp, seen_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var (
		n    model.Notification
		seen sql.NullTime
	)
	if err := scanner.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Timestamp, &seen); err != nil {
		return nil, err
	}
	if seen.Valid {
		n.SeenAt = &seen.Time
	}
	return &n, nil
}

// AppendNotification stores n. Appending the same id twice is a no-op so
// retried writes do not duplicate.
func (s *NotificationStore) AppendNotification(ctx context.Context, n model.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications (id, user_id, type, title, message, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// ListActive returns the user's unseen notifications, newest first.
func (s *NotificationStore) ListActive(ctx context.Context, userID string) ([]model.Notification, error) {
	return listNotifications(ctx, s.db, userID, true)
}

func (s *NotificationStore) ListAll(ctx context.Context, userID string) ([]model.Notification, error) {
	return listNotifications(ctx, s.db, userID, false)
}

func listNotifications(ctx context.Context, q queryer, userID string, unseenOnly bool) ([]model.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE user_id = ?`
	if unseenOnly {
		query += ` AND seen_at IS NULL`
	}
	query += ` ORDER BY timestamp DESC, id`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifs := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifs = append(notifs, *n)
	}
	return notifs, rows.Err()
}

// MarkSeen records that the user has seen a notification. It reports false
// when the notification does not belong to the user.
func (s *NotificationStore) MarkSeen(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET seen_at = COALESCE(seen_at, ?) WHERE id = ? AND user_id = ?`,
		at.UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark notification seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SeenIDs returns the ids of notifications the user has dismissed.
func (s *NotificationStore) SeenIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM notifications WHERE user_id = ? AND seen_at IS NOT NULL ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list seen notifications: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen notification: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
