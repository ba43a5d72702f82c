package bolt

import (
	"bytes"
	"context"
	"time"

	"go.etcd.io/bbolt"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

func questionVersion(q *domain.Question) *int64     { return &q.Version }
func assessmentVersion(a *domain.Assessment) *int64 { return &a.Version }
func submissionVersion(s *domain.Submission) *int64 { return &s.Version }

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) error {
	q.Version = 1
	return insert(s, bucketQuestions, q.ID, "question", q)
}

func (s *Store) UpdateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	return replace(s, bucketQuestions, q.ID, "question", q, questionVersion)
}

func (s *Store) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	return load[domain.Question](s, bucketQuestions, id, "question")
}

func (s *Store) QueryQuestions(_ context.Context, query app.QuestionQuery) ([]domain.Question, error) {
	out, err := scan(s, bucketQuestions, "", func(q domain.Question) bool {
		return query.Filter.Matches(q) && query.After.After(q.CreatedAt, q.ID)
	})
	if err != nil {
		return nil, err
	}
	return page(out, func(q domain.Question) (time.Time, string) { return q.CreatedAt, q.ID }, query.Limit), nil
}

func (s *Store) CreateAssessment(_ context.Context, a domain.Assessment) error {
	a.Version = 1
	return insert(s, bucketAssessments, a.ID, "assessment", a)
}

func (s *Store) UpdateAssessment(_ context.Context, a domain.Assessment) (domain.Assessment, error) {
	return replace(s, bucketAssessments, a.ID, "assessment", a, assessmentVersion)
}

func (s *Store) GetAssessment(_ context.Context, id string) (domain.Assessment, error) {
	return load[domain.Assessment](s, bucketAssessments, id, "assessment")
}

func (s *Store) QueryAssessments(_ context.Context, q app.AssessmentQuery) ([]domain.Assessment, error) {
	out, err := scan(s, bucketAssessments, "", func(a domain.Assessment) bool {
		return q.Matches(a) && q.After.After(a.CreatedAt, a.ID)
	})
	if err != nil {
		return nil, err
	}
	return page(out, func(a domain.Assessment) (time.Time, string) { return a.CreatedAt, a.ID }, q.Limit), nil
}

func pairKey(assessmentID, userID string) string { return assessmentID + ":" + userID }

// CreateSubmission writes the record and its (assessment, user) index entry
// in one transaction.
func (s *Store) CreateSubmission(_ context.Context, sub domain.Submission) error {
	pair := pairKey(sub.AssessmentID, sub.UserID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		if exists(tx, bucketPairs, pair) {
			return domain.NewError(domain.ErrAlreadyExists, "submission for %s", pair)
		}
		if exists(tx, bucketSubmissions, sub.ID) {
			return domain.NewError(domain.ErrAlreadyExists, "submission %s", sub.ID)
		}
		sub.Version = 1
		if err := put(tx, bucketSubmissions, sub.ID, sub); err != nil {
			return err
		}
		return tx.Bucket(bucketPairs).Put([]byte(pair), []byte(sub.ID))
	})
}

func (s *Store) UpdateSubmission(_ context.Context, sub domain.Submission) (domain.Submission, error) {
	return replace(s, bucketSubmissions, sub.ID, "submission", sub, submissionVersion)
}

func (s *Store) GetSubmission(_ context.Context, id string) (domain.Submission, error) {
	sub, err := load[domain.Submission](s, bucketSubmissions, id, "submission")
	if err == nil && sub.Results == nil {
		sub.Results = map[string]domain.QuestionResult{}
	}
	return sub, err
}

func (s *Store) FindSubmission(ctx context.Context, assessmentID, userID string) (domain.Submission, error) {
	var id string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		id = string(tx.Bucket(bucketPairs).Get([]byte(pairKey(assessmentID, userID))))
		return nil
	})
	if id == "" {
		return domain.Submission{}, domain.NewError(domain.ErrNotFound, "submission for %s by %s", assessmentID, userID)
	}
	return s.GetSubmission(ctx, id)
}

// submissionsOf resolves the pair index under the assessment prefix.
func (s *Store) submissionsOf(assessmentID string) ([]domain.Submission, error) {
	var out []domain.Submission
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPairs).Cursor()
		prefix := []byte(assessmentID + ":")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			sub, err := get[domain.Submission](tx, bucketSubmissions, string(v))
			if err != nil {
				return err
			}
			out = append(out, sub)
		}
		return nil
	})
	return out, err
}

func (s *Store) ListSubmissions(_ context.Context, assessmentID string) ([]domain.Submission, error) {
	out, err := s.submissionsOf(assessmentID)
	if err != nil {
		return nil, err
	}
	return page(out, func(sub domain.Submission) (time.Time, string) { return sub.SubmissionDate, sub.ID }, 0), nil
}

func (s *Store) CountSubmissions(_ context.Context, assessmentID string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPairs).Cursor()
		prefix := []byte(assessmentID + ":")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}
