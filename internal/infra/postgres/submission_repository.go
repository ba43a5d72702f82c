package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"skillyhead-service/internal/domain"
)

// SubmissionRepository keeps submissions in Postgres, one row per
// (assessment, user) enforced by a unique constraint.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func (r *SubmissionRepository) CreateSubmission(ctx context.Context, s domain.Submission) error {
	s.Version = 1
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO submissions (id, client_id, assessment_id, user_id, submission_date, version, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`,
		s.ID, s.ClientID, s.AssessmentID, s.UserID, s.SubmissionDate, s.Version, data)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.ErrAlreadyExists, "submission for %s by %s", s.AssessmentID, s.UserID)
	}
	return nil
}

func (r *SubmissionRepository) UpdateSubmission(ctx context.Context, s domain.Submission) (domain.Submission, error) {
	expected := s.Version
	s.Version++
	data, err := json.Marshal(s)
	if err != nil {
		return domain.Submission{}, err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE submissions SET submission_date = $2, version = $3, data = $4
		WHERE id = $1 AND version = $5`,
		s.ID, s.SubmissionDate, s.Version, data, expected)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := r.pool.QueryRow(ctx, `SELECT 1 FROM submissions WHERE id = $1`, s.ID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Submission{}, domain.NewError(domain.ErrNotFound, "submission %s", s.ID)
		}
		if err != nil {
			return domain.Submission{}, err
		}
		return domain.Submission{}, domain.ErrVersionConflict
	}
	return s, nil
}

func (r *SubmissionRepository) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	row := r.pool.QueryRow(ctx, `SELECT data, version FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.NewError(domain.ErrNotFound, "submission %s", id)
	}
	return sub, err
}

func (r *SubmissionRepository) FindSubmission(ctx context.Context, assessmentID, userID string) (domain.Submission, error) {
	row := r.pool.QueryRow(ctx, `SELECT data, version FROM submissions WHERE assessment_id = $1 AND user_id = $2`, assessmentID, userID)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.NewError(domain.ErrNotFound, "submission for %s by %s", assessmentID, userID)
	}
	return sub, err
}

func (r *SubmissionRepository) ListSubmissions(ctx context.Context, assessmentID string) ([]domain.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT data, version FROM submissions
		WHERE assessment_id = $1
		ORDER BY submission_date DESC, id DESC`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var out []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (r *SubmissionRepository) CountSubmissions(ctx context.Context, assessmentID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM submissions WHERE assessment_id = $1`, assessmentID).Scan(&n)
	return n, err
}

func scanSubmission(row pgx.Row) (domain.Submission, error) {
	var raw []byte
	var version int64
	if err := row.Scan(&raw, &version); err != nil {
		return domain.Submission{}, err
	}
	var s domain.Submission
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Submission{}, fmt.Errorf("unmarshal submission: %w", err)
	}
	s.Version = version
	if s.Results == nil {
		s.Results = map[string]domain.QuestionResult{}
	}
	return s, nil
}
