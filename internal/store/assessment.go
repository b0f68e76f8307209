package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/serene/internal/assessment"
	"github.com/dukerupert/serene/internal/model"
)

type AssessmentStore struct {
	db *sql.DB
}

func NewAssessmentStore(db *sql.DB) *AssessmentStore {
	return &AssessmentStore{db: db}
}

const assessmentCols = `id, user_id, responses, score, severity, created_at`

func scanAssessment(scanner interface{ Scan(...any) error }) (*model.AssessmentRecord, error) {
	var (
		r         model.AssessmentRecord
		responses string
	)
	if err := scanner.Scan(&r.ID, &r.UserID, &responses, &r.Score, &r.Severity, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(responses), &r.Responses); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}
	return &r, nil
}

// AddAssessment appends a scored submission.
func (s *AssessmentStore) AddAssessment(ctx context.Context, userID string, res assessment.Result) (*model.AssessmentRecord, error) {
	b, err := json.Marshal(res.Responses)
	if err != nil {
		return nil, fmt.Errorf("encode responses: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (user_id, responses, score, severity, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, string(b), res.Total, string(res.Severity), res.TakenAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert assessment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE id = ?`, id)
	r, err := scanAssessment(row)
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return r, nil
}

// ListAssessments returns the user's submissions, newest first. A limit of
// zero returns all of them.
func (s *AssessmentStore) ListAssessments(ctx context.Context, userID string, limit int) ([]model.AssessmentRecord, error) {
	query := `SELECT ` + assessmentCols + ` FROM assessments WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	records := []model.AssessmentRecord{}
	for rows.Next() {
		r, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}
