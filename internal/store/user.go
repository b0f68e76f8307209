package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/serene/internal/model"
)

var ErrInvalidDelta = errors.New("points delta must be positive")

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, email, display_name, points, assessment_score, assessment_severity,
	assessment_taken_at, assessment_due, personalized_challenges, created_at, updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u        model.User
		score    sql.NullInt64
		severity sql.NullString
		takenAt  sql.NullTime
		due      int
		active   string
	)
	err := scanner.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Points, &score, &severity,
		&takenAt, &due, &active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		u.LastAssessment = &model.LastAssessment{
			Score:    int(score.Int64),
			Severity: severity.String,
			TakenAt:  takenAt.Time,
		}
	}
	u.AssessmentDue = due != 0
	if err := json.Unmarshal([]byte(active), &u.PersonalizedChallenges); err != nil {
		return nil, fmt.Errorf("decode personalized challenges: %w", err)
	}
	if u.PersonalizedChallenges == nil {
		u.PersonalizedChallenges = []string{}
	}
	return &u, nil
}

// EnsureUser creates the user row if missing and records a non-empty email.
func (s *UserStore) EnsureUser(ctx context.Context, id, email string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END`,
		id, email,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser loads the user aggregate with its completed set and active
// notifications. It returns nil, nil when the user does not exist.
func (s *UserStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.CompletedChallengeIDs, err = s.completedIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	notifs, err := listNotifications(ctx, s.db, id, true)
	if err != nil {
		return nil, err
	}
	u.Notifications = notifs
	return u, nil
}

func (s *UserStore) completedIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT challenge_id FROM user_completed_challenges WHERE user_id = ? ORDER BY challenge_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list completed challenges: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed challenge: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MergeUser applies patch to the user, creating the row if needed. Fields
// left nil in the patch are not written.
func (s *UserStore) MergeUser(ctx context.Context, id string, patch model.UserPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge user: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, id); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	var (
		sets []string
		args []any
	)
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *patch.DisplayName)
	}
	if la := patch.LastAssessment; la != nil {
		sets = append(sets, "assessment_score = ?", "assessment_severity = ?", "assessment_taken_at = ?")
		args = append(args, la.Score, la.Severity, la.TakenAt.UTC())
	}
	if patch.AssessmentDue != nil {
		sets = append(sets, "assessment_due = ?")
		args = append(args, boolInt(*patch.AssessmentDue))
	}
	if patch.SetChallenges {
		ids := patch.PersonalizedChallenges
		if ids == nil {
			ids = []string{}
		}
		b, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("encode personalized challenges: %w", err)
		}
		sets = append(sets, "personalized_challenges = ?")
		args = append(args, string(b))
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
		args = append(args, id)
		q := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
	}

	if patch.ResetCompleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_completed_challenges WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("reset completed challenges: %w", err)
		}
	}
	for _, cid := range patch.AddCompleted {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_completed_challenges (user_id, challenge_id) VALUES (?, ?)`,
			id, cid,
		); err != nil {
			return fmt.Errorf("add completed challenge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge user: %w", err)
	}
	return nil
}

// IncrementPoints adds delta to the user's points in a single statement.
func (s *UserStore) IncrementPoints(ctx context.Context, id string, delta int) error {
	if delta <= 0 {
		return ErrInvalidDelta
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, points) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET points = points + excluded.points, updated_at = CURRENT_TIMESTAMP`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("increment points: %w", err)
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
