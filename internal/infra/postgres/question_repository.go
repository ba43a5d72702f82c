package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

// QuestionRepository keeps catalog questions in Postgres. The full question
// is stored as JSONB; the filterable fields are mirrored into columns.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func (r *QuestionRepository) CreateQuestion(ctx context.Context, q domain.Question) error {
	q.Version = 1
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO questions (id, client_id, type, text, difficulty, tags, deleted, created_at, version, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		q.ID, q.ClientID, string(q.Type), q.Text, string(q.Difficulty()), tagsOf(q), q.Deleted, q.CreatedAt, q.Version, data)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.ErrAlreadyExists, "question %s", q.ID)
	}
	return nil
}

func (r *QuestionRepository) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	expected := q.Version
	q.Version++
	data, err := json.Marshal(q)
	if err != nil {
		return domain.Question{}, err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE questions
		SET type = $2, text = $3, difficulty = $4, tags = $5, deleted = $6, version = $7, data = $8
		WHERE id = $1 AND version = $9`,
		q.ID, string(q.Type), q.Text, string(q.Difficulty()), tagsOf(q), q.Deleted, q.Version, data, expected)
	if err != nil {
		return domain.Question{}, fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Question{}, r.missOrConflict(ctx, q.ID)
	}
	return q, nil
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	var raw []byte
	var version int64
	err := r.pool.QueryRow(ctx, `SELECT data, version FROM questions WHERE id = $1`, id).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.NewError(domain.ErrNotFound, "question %s", id)
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	return decodeQuestion(raw, version)
}

func (r *QuestionRepository) QueryQuestions(ctx context.Context, query app.QuestionQuery) ([]domain.Question, error) {
	f := query.Filter
	var afterAt, afterID any
	if query.After != nil {
		afterAt, afterID = query.After.CreatedAt, query.After.ID
	}
	rows, err := r.pool.Query(ctx, `
		SELECT data, version FROM questions
		WHERE ($1::text = '' OR client_id = $1)
		  AND ($2::boolean OR NOT deleted)
		  AND ($3::text = '' OR type = $3)
		  AND ($4::text = '' OR difficulty = $4)
		  AND ($5::text = '' OR $5 = ANY(tags))
		  AND ($6::text = '' OR strpos(lower(text), $6) > 0
		       OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE strpos(lower(tag), $6) > 0))
		  AND ($7::timestamptz IS NULL OR created_at < $7 OR (created_at = $7 AND id < $8::text))
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($9::int, 0)`,
		f.ClientID, f.IncludeDeleted, string(f.Type), string(f.Difficulty),
		strings.ToLower(f.Tag), strings.ToLower(f.TextContains), afterAt, afterID, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var raw []byte
		var version int64
		if err := rows.Scan(&raw, &version); err != nil {
			return nil, err
		}
		q, err := decodeQuestion(raw, version)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *QuestionRepository) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM questions WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewError(domain.ErrNotFound, "question %s", id)
	}
	if err != nil {
		return err
	}
	return domain.ErrVersionConflict
}

// tagsOf lower-cases tags so the ANY() match is case-insensitive.
func tagsOf(q domain.Question) []string {
	out := make([]string, len(q.Tags))
	for i, t := range q.Tags {
		out[i] = strings.ToLower(t)
	}
	return out
}

func decodeQuestion(raw []byte, version int64) (domain.Question, error) {
	var q domain.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal question: %w", err)
	}
	q.Version = version
	return q, nil
}
