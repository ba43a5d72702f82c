package memory

import (
	"context"
	"maps"
	"slices"
	"time"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "question %s", q.ID)
	}
	q.Version = 1
	s.questions[q.ID] = cloneQuestion(q)
	return nil
}

func (s *Store) UpdateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.questions[q.ID]
	if !ok {
		return domain.Question{}, domain.NewError(domain.ErrNotFound, "question %s", q.ID)
	}
	if cur.Version != q.Version {
		return domain.Question{}, domain.ErrVersionConflict
	}
	q.Version++
	s.questions[q.ID] = cloneQuestion(q)
	return cloneQuestion(q), nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.NewError(domain.ErrNotFound, "question %s", id)
	}
	return cloneQuestion(q), nil
}

func (s *Store) QueryQuestions(_ context.Context, query app.QuestionQuery) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Question
	for _, q := range s.questions {
		if query.Filter.Matches(q) && query.After.After(q.CreatedAt, q.ID) {
			out = append(out, cloneQuestion(q))
		}
	}
	return page(out, func(q domain.Question) (time.Time, string) { return q.CreatedAt, q.ID }, query.Limit), nil
}

func (s *Store) CreateAssessment(_ context.Context, a domain.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assessments[a.ID]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "assessment %s", a.ID)
	}
	a.Version = 1
	s.assessments[a.ID] = cloneAssessment(a)
	return nil
}

func (s *Store) UpdateAssessment(_ context.Context, a domain.Assessment) (domain.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.assessments[a.ID]
	if !ok {
		return domain.Assessment{}, domain.NewError(domain.ErrNotFound, "assessment %s", a.ID)
	}
	if cur.Version != a.Version {
		return domain.Assessment{}, domain.ErrVersionConflict
	}
	a.Version++
	s.assessments[a.ID] = cloneAssessment(a)
	return cloneAssessment(a), nil
}

func (s *Store) GetAssessment(_ context.Context, id string) (domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[id]
	if !ok {
		return domain.Assessment{}, domain.NewError(domain.ErrNotFound, "assessment %s", id)
	}
	return cloneAssessment(a), nil
}

func (s *Store) QueryAssessments(_ context.Context, q app.AssessmentQuery) ([]domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Assessment
	for _, a := range s.assessments {
		if q.Matches(a) && q.After.After(a.CreatedAt, a.ID) {
			out = append(out, cloneAssessment(a))
		}
	}
	return page(out, func(a domain.Assessment) (time.Time, string) { return a.CreatedAt, a.ID }, q.Limit), nil
}

func (s *Store) CreateSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair := sub.AssessmentID + ":" + sub.UserID
	if _, ok := s.byPair[pair]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "submission for %s", pair)
	}
	sub.Version = 1
	s.submissions[sub.ID] = cloneSubmission(sub)
	s.byPair[pair] = sub.ID
	return nil
}

func (s *Store) UpdateSubmission(_ context.Context, sub domain.Submission) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.submissions[sub.ID]
	if !ok {
		return domain.Submission{}, domain.NewError(domain.ErrNotFound, "submission %s", sub.ID)
	}
	if cur.Version != sub.Version {
		return domain.Submission{}, domain.ErrVersionConflict
	}
	sub.Version++
	s.submissions[sub.ID] = cloneSubmission(sub)
	return cloneSubmission(sub), nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.Submission{}, domain.NewError(domain.ErrNotFound, "submission %s", id)
	}
	return cloneSubmission(sub), nil
}

func (s *Store) FindSubmission(ctx context.Context, assessmentID, userID string) (domain.Submission, error) {
	s.mu.RLock()
	id, ok := s.byPair[assessmentID+":"+userID]
	s.mu.RUnlock()
	if !ok {
		return domain.Submission{}, domain.NewError(domain.ErrNotFound, "submission for %s by %s", assessmentID, userID)
	}
	return s.GetSubmission(ctx, id)
}

func (s *Store) ListSubmissions(_ context.Context, assessmentID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for _, sub := range s.submissions {
		if sub.AssessmentID == assessmentID {
			out = append(out, cloneSubmission(sub))
		}
	}
	return page(out, func(sub domain.Submission) (time.Time, string) { return sub.SubmissionDate, sub.ID }, 0), nil
}

func (s *Store) CountSubmissions(_ context.Context, assessmentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.submissions {
		if sub.AssessmentID == assessmentID {
			n++
		}
	}
	return n, nil
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Tags = slices.Clone(q.Tags)
	return q
}

func cloneAssessment(a domain.Assessment) domain.Assessment {
	a.QuestionIDs = slices.Clone(a.QuestionIDs)
	a.Tags = slices.Clone(a.Tags)
	return a
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	answers := make(map[string]domain.Answer, len(sub.Answers))
	for k, v := range sub.Answers {
		v.Selected = slices.Clone(v.Selected)
		answers[k] = v
	}
	sub.Answers = answers
	sub.Results = maps.Clone(sub.Results)
	if sub.Results == nil {
		sub.Results = map[string]domain.QuestionResult{}
	}
	return sub
}
