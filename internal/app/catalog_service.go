package app

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skillyhead-service/internal/domain"
)

// QuestionDraft is the payload of CreateQuestion.
type QuestionDraft struct {
	ClientID    string
	Type        domain.QuestionType
	Text        string
	Description string
	Tags        []string
	Config      domain.QuestionConfig
}

// QuestionEdit lists the fields to change. Nil fields are left untouched.
type QuestionEdit struct {
	Text        *string
	Description *string
	Tags        []string
	Config      domain.QuestionConfig
}

// CatalogService owns the question bank.
type CatalogService struct {
	*env
}

func (s *CatalogService) CreateQuestion(ctx context.Context, actor domain.Identity, d QuestionDraft) (domain.Question, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Question{}, err
	}
	if d.ClientID == "" {
		d.ClientID = actor.ClientID
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetQuestion, ClientID: d.ClientID}); err != nil {
		return domain.Question{}, err
	}
	now := s.now().UTC()
	q := domain.Question{
		ID:          uuid.NewString(),
		ClientID:    d.ClientID,
		Type:        d.Type,
		Text:        strings.TrimSpace(d.Text),
		Description: d.Description,
		Tags:        normalizeTags(d.Tags),
		Config:      d.Config,
		Revision:    1,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	if err := s.repos.Questions.CreateQuestion(ctx, q); err != nil {
		return domain.Question{}, err
	}
	s.log.Debug("question created", zap.String("question_id", q.ID), zap.String("type", string(q.Type)))
	return q, nil
}

// GetQuestion returns a question, including soft-deleted ones.
func (s *CatalogService) GetQuestion(ctx context.Context, actor domain.Identity, id string) (domain.Question, error) {
	q, err := s.repos.Questions.GetQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetQuestion, ClientID: q.ClientID}); err != nil {
		return domain.Question{}, err
	}
	return withoutKey(actor, q), nil
}

// EditQuestion mutates a question in place. Once an assessment containing the
// question has received a submission it fails with ErrImmutable; use
// ReviseQuestion instead.
func (s *CatalogService) EditQuestion(ctx context.Context, actor domain.Identity, id string, e QuestionEdit) (domain.Question, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Question{}, err
	}
	unlock := s.locks.lock(questionKey(id))
	defer unlock()

	q, err := s.repos.Questions.GetQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetQuestion, ClientID: q.ClientID}); err != nil {
		return domain.Question{}, err
	}
	if q.Deleted {
		return domain.Question{}, domain.NewError(domain.ErrState, "question %s is deleted", id)
	}
	frozen, err := s.frozen(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if frozen {
		return domain.Question{}, domain.NewError(domain.ErrImmutable, "question %s is used by an assessment with submissions", id)
	}
	applyEdit(&q, e)
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	q.UpdatedAt = s.now().UTC()
	return s.repos.Questions.UpdateQuestion(ctx, q)
}

// ReviseQuestion stores the edited question as a new revision linked to the
// old one. The old question is left as it was so existing submissions keep
// scoring against it.
func (s *CatalogService) ReviseQuestion(ctx context.Context, actor domain.Identity, id string, e QuestionEdit) (domain.Question, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Question{}, err
	}
	old, err := s.repos.Questions.GetQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetQuestion, ClientID: old.ClientID}); err != nil {
		return domain.Question{}, err
	}
	next := old
	next.Tags = slices.Clone(old.Tags)
	applyEdit(&next, e)
	if err := next.Validate(); err != nil {
		return domain.Question{}, err
	}
	now := s.now().UTC()
	next.ID = uuid.NewString()
	next.Revision = old.Revision + 1
	next.PreviousID = old.ID
	next.Deleted = false
	next.CreatedBy = actor.UserID
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Version = 0
	if err := s.repos.Questions.CreateQuestion(ctx, next); err != nil {
		return domain.Question{}, err
	}
	s.log.Info("question revised", zap.String("question_id", next.ID), zap.String("previous_id", old.ID), zap.Int("revision", next.Revision))
	return next, nil
}

// DeleteQuestion hides a question from listings and composition. It stays
// readable so submissions that reference it can still be scored.
func (s *CatalogService) DeleteQuestion(ctx context.Context, actor domain.Identity, id string) error {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return err
	}
	unlock := s.locks.lock(questionKey(id))
	defer unlock()
	q, err := s.repos.Questions.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetQuestion, ClientID: q.ClientID}); err != nil {
		return err
	}
	if q.Deleted {
		return nil
	}
	q.Deleted = true
	q.UpdatedAt = s.now().UTC()
	_, err = s.repos.Questions.UpdateQuestion(ctx, q)
	return err
}

// ListQuestions is a lazy listing of the current client's questions, newest
// first. Every range over the result restarts from the newest question.
func (s *CatalogService) ListQuestions(ctx context.Context, actor domain.Identity, filter QuestionFilter) iter.Seq2[domain.Question, error] {
	if actor.Role != domain.RoleAdmin || filter.ClientID == "" {
		filter.ClientID = actor.ClientID
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetQuestion, ClientID: filter.ClientID}); err != nil {
		return failed[domain.Question](err)
	}
	if actor.Role == domain.RoleStudent {
		filter.IncludeDeleted = false
	}
	seq := paginate(ctx, s.pageSize,
		func(ctx context.Context, after *Cursor, limit int) ([]domain.Question, error) {
			return s.repos.Questions.QueryQuestions(ctx, QuestionQuery{Filter: filter, After: after, Limit: limit})
		},
		questionCursor, nil)
	if actor.Role != domain.RoleStudent {
		return seq
	}
	return func(yield func(domain.Question, error) bool) {
		for q, err := range seq {
			if !yield(withoutKey(actor, q), err) {
				return
			}
		}
	}
}

// withoutKey strips the answer key from MCQ questions read by a student.
// A hidden single answer reads as -1.
func withoutKey(actor domain.Identity, q domain.Question) domain.Question {
	if actor.Role != domain.RoleStudent {
		return q
	}
	switch cfg := q.Config.(type) {
	case domain.MCQSingleConfig:
		cfg.CorrectAnswer = -1
		q.Config = cfg
	case domain.MCQMultipleConfig:
		cfg.CorrectAnswers = nil
		q.Config = cfg
	}
	return q
}

// frozen reports whether any assessment that contains questionID has a submission.
func (s *CatalogService) frozen(ctx context.Context, questionID string) (bool, error) {
	seq := paginate(ctx, s.pageSize,
		func(ctx context.Context, after *Cursor, limit int) ([]domain.Assessment, error) {
			return s.repos.Assessments.QueryAssessments(ctx, AssessmentQuery{QuestionID: questionID, After: after, Limit: limit})
		},
		assessmentCursor, nil)
	for a, err := range seq {
		if err != nil {
			return false, err
		}
		n, err := s.repos.Submissions.CountSubmissions(ctx, a.ID)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func applyEdit(q *domain.Question, e QuestionEdit) {
	if e.Text != nil {
		q.Text = strings.TrimSpace(*e.Text)
	}
	if e.Description != nil {
		q.Description = *e.Description
	}
	if e.Tags != nil {
		q.Tags = normalizeTags(e.Tags)
	}
	if e.Config != nil {
		q.Config = e.Config
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.ContainsFunc(out, func(have string) bool { return strings.EqualFold(have, t) }) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func questionCursor(q domain.Question) Cursor { return Cursor{CreatedAt: q.CreatedAt, ID: q.ID} }
