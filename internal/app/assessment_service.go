package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skillyhead-service/internal/domain"
)

// NewAssessment is the input to ComposeAssessment.
type NewAssessment struct {
	ClientID    string                  `json:"client_id" validate:"required"`
	BatchID     string                  `json:"batch_id" validate:"required"`
	Title       string                  `json:"title"`
	Kind        domain.AssessmentKind   `json:"kind" validate:"omitempty,oneof=assessment assignment mandatory_practice"`
	Tags        []string                `json:"tags"`
	QuestionIDs []string                `json:"questions" validate:"min=1"`
	Config      domain.AssessmentConfig `json:"config"`
	StartDate   time.Time               `json:"start_date" validate:"required"`
	TargetDate  time.Time               `json:"target_date" validate:"required"`
}

// AssessmentFilter narrows ListAssessments. A BatchID takes precedence over ClientID.
type AssessmentFilter struct {
	ClientID string
	BatchID  string
	Status   domain.AssessmentStatus
	Kind     domain.AssessmentKind
	Tag      string
}

// PresentedQuestion is a question as a user sees it during a sitting: options
// are in display order and correct answers are never included.
type PresentedQuestion struct {
	ID          string              `json:"id"`
	Type        domain.QuestionType `json:"type"`
	Text        string              `json:"question_text"`
	Description string              `json:"question_description"`
	Difficulty  domain.Difficulty   `json:"difficulty,omitempty"`
	Options     []string            `json:"options,omitempty"`
	// OptionIndex maps each displayed option back to its catalog index, which
	// is what answers refer to.
	OptionIndex []int  `json:"option_index,omitempty"`
	TimeLimit   int    `json:"time_limit,omitempty"`
	WordLimit   int    `json:"word_limit,omitempty"`
	Language    string `json:"language,omitempty"`
}

// AssessmentService composes assessments and drives their lifecycle.
type AssessmentService struct {
	*env
}

// ComposeAssessment validates every referenced question before storing the
// assessment as a single draft record.
func (s *AssessmentService) ComposeAssessment(ctx context.Context, actor domain.Identity, na NewAssessment) (domain.Assessment, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Assessment{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetAssessment, ClientID: na.ClientID}); err != nil {
		return domain.Assessment{}, err
	}
	if err := domain.ValidateStruct(na); err != nil {
		return domain.Assessment{}, err
	}

	var errs []domain.FieldError
	if na.TargetDate.Before(na.StartDate) {
		errs = append(errs, domain.FieldError{Field: "target_date", Error: "target_date must not be before start_date"})
	}
	batch, err := s.repos.Batches.GetBatch(ctx, na.BatchID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		errs = append(errs, domain.FieldError{Field: "batch_id", Error: "batch does not exist"})
	case err != nil:
		return domain.Assessment{}, err
	case batch.ClientID != na.ClientID:
		errs = append(errs, domain.FieldError{Field: "batch_id", Error: "batch belongs to another client"})
	}
	seen := make(map[string]struct{}, len(na.QuestionIDs))
	for i, qid := range na.QuestionIDs {
		field := fmt.Sprintf("questions[%d]", i)
		if _, dup := seen[qid]; dup {
			errs = append(errs, domain.FieldError{Field: field, Error: "question " + qid + " is listed more than once"})
			continue
		}
		seen[qid] = struct{}{}
		q, err := s.repos.Questions.GetQuestion(ctx, qid)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			errs = append(errs, domain.FieldError{Field: field, Error: "question " + qid + " does not exist"})
		case err != nil:
			return domain.Assessment{}, err
		case q.Deleted:
			errs = append(errs, domain.FieldError{Field: field, Error: "question " + qid + " is deleted"})
		case q.ClientID != na.ClientID:
			errs = append(errs, domain.FieldError{Field: field, Error: "question " + qid + " belongs to another client"})
		}
	}
	if len(errs) > 0 {
		return domain.Assessment{}, domain.NewValidationError(errs...)
	}

	now := s.now().UTC()
	a := domain.Assessment{
		ID:          uuid.NewString(),
		ClientID:    na.ClientID,
		BatchID:     na.BatchID,
		Title:       na.Title,
		Kind:        na.Kind.OrDefault(),
		Tags:        normalizeTags(na.Tags),
		QuestionIDs: append([]string(nil), na.QuestionIDs...),
		Config:      na.Config,
		StartDate:   na.StartDate.UTC(),
		TargetDate:  na.TargetDate.UTC(),
		Status:      domain.AssessmentDraft,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repos.Assessments.CreateAssessment(ctx, a); err != nil {
		return domain.Assessment{}, err
	}
	s.log.Info("assessment composed", zap.String("assessment_id", a.ID), zap.String("kind", string(a.Kind)), zap.Int("questions", len(a.QuestionIDs)))
	return a, nil
}

func (s *AssessmentService) GetAssessment(ctx context.Context, actor domain.Identity, id string) (domain.Assessment, error) {
	a, err := s.repos.Assessments.GetAssessment(ctx, id)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetAssessment, ClientID: a.ClientID}); err != nil {
		return domain.Assessment{}, err
	}
	if actor.Role == domain.RoleStudent && a.Status == domain.AssessmentDraft {
		return domain.Assessment{}, domain.NewError(domain.ErrNotFound, "assessment %s", id)
	}
	return a, nil
}

// Publish moves a draft assessment to active.
func (s *AssessmentService) Publish(ctx context.Context, actor domain.Identity, id string) (domain.Assessment, error) {
	return s.transition(ctx, actor, id, domain.AssessmentDraft, domain.AssessmentActive)
}

// Retire moves an active assessment to inactive.
func (s *AssessmentService) Retire(ctx context.Context, actor domain.Identity, id string) (domain.Assessment, error) {
	return s.transition(ctx, actor, id, domain.AssessmentActive, domain.AssessmentInactive)
}

func (s *AssessmentService) transition(ctx context.Context, actor domain.Identity, id string, from, to domain.AssessmentStatus) (domain.Assessment, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Assessment{}, err
	}
	unlock := s.locks.lock(assessmentKey(id))
	defer unlock()

	a, err := s.repos.Assessments.GetAssessment(ctx, id)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetAssessment, ClientID: a.ClientID}); err != nil {
		return domain.Assessment{}, err
	}
	if a.Status != from {
		return domain.Assessment{}, domain.NewError(domain.ErrState, "assessment %s is %s, expected %s", id, a.Status, from)
	}
	if to == domain.AssessmentActive {
		client, err := s.repos.Clients.GetClient(ctx, a.ClientID)
		if err != nil {
			return domain.Assessment{}, err
		}
		if !client.Status.Usable() {
			return domain.Assessment{}, domain.NewError(domain.ErrState, "client %s is inactive", a.ClientID)
		}
	}
	a.Status = to
	a.UpdatedAt = s.now().UTC()
	updated, err := s.repos.Assessments.UpdateAssessment(ctx, a)
	if err != nil {
		return domain.Assessment{}, err
	}
	s.log.Info("assessment status changed", zap.String("assessment_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return updated, nil
}

// retireAssessment is the unguarded transition used by client deactivation.
func retireAssessment(ctx context.Context, e *env, id string) (domain.Assessment, error) {
	unlock := e.locks.lock(assessmentKey(id))
	defer unlock()
	a, err := e.repos.Assessments.GetAssessment(ctx, id)
	if err != nil {
		return domain.Assessment{}, err
	}
	if a.Status != domain.AssessmentActive {
		return domain.Assessment{}, domain.NewError(domain.ErrState, "assessment %s is %s", id, a.Status)
	}
	a.Status = domain.AssessmentInactive
	a.UpdatedAt = e.now().UTC()
	return e.repos.Assessments.UpdateAssessment(ctx, a)
}

// ListAssessments is a lazy listing, newest first. Students never see drafts.
func (s *AssessmentService) ListAssessments(ctx context.Context, actor domain.Identity, f AssessmentFilter) iter.Seq2[domain.Assessment, error] {
	q := AssessmentQuery{ClientID: f.ClientID, BatchID: f.BatchID, Status: f.Status, Kind: f.Kind, Tag: f.Tag}
	if f.BatchID != "" {
		batch, err := s.repos.Batches.GetBatch(ctx, f.BatchID)
		if err != nil {
			return failed[domain.Assessment](err)
		}
		q.ClientID = batch.ClientID
	}
	if q.ClientID == "" {
		q.ClientID = actor.ClientID
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetAssessment, ClientID: q.ClientID}); err != nil {
		return failed[domain.Assessment](err)
	}
	var keep func(domain.Assessment) bool
	if actor.Role == domain.RoleStudent {
		keep = func(a domain.Assessment) bool { return a.Status != domain.AssessmentDraft }
	}
	return paginate(ctx, s.pageSize,
		func(ctx context.Context, after *Cursor, limit int) ([]domain.Assessment, error) {
			q.After, q.Limit = after, limit
			return s.repos.Assessments.QueryAssessments(ctx, q)
		},
		assessmentCursor, keep)
}

// EffectiveQuestionOrder returns the question ids in the order userID sees
// them. With shuffling on, the order is a fixed function of the assessment
// and the user.
func (s *AssessmentService) EffectiveQuestionOrder(ctx context.Context, actor domain.Identity, assessmentID, userID string) ([]string, error) {
	a, err := s.viewFor(ctx, actor, assessmentID, userID)
	if err != nil {
		return nil, err
	}
	return questionOrder(a, userID), nil
}

// EffectiveOptionOrder returns catalog option indices in the order userID
// sees them for one question. It is nil for questions without options.
func (s *AssessmentService) EffectiveOptionOrder(ctx context.Context, actor domain.Identity, assessmentID, questionID, userID string) ([]int, error) {
	a, err := s.viewFor(ctx, actor, assessmentID, userID)
	if err != nil {
		return nil, err
	}
	if !a.Contains(questionID) {
		return nil, domain.NewError(domain.ErrNotFound, "question %s is not part of assessment %s", questionID, assessmentID)
	}
	q, err := s.repos.Questions.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return optionOrder(a, q, userID), nil
}

// Sheet returns the questions of an assessment as userID is presented them.
func (s *AssessmentService) Sheet(ctx context.Context, actor domain.Identity, assessmentID, userID string) ([]PresentedQuestion, error) {
	a, err := s.viewFor(ctx, actor, assessmentID, userID)
	if err != nil {
		return nil, err
	}
	order := questionOrder(a, userID)
	out := make([]PresentedQuestion, 0, len(order))
	for _, qid := range order {
		q, err := s.repos.Questions.GetQuestion(ctx, qid)
		if err != nil {
			return nil, err
		}
		out = append(out, present(q, optionOrder(a, q, userID)))
	}
	return out, nil
}

func (s *AssessmentService) viewFor(ctx context.Context, actor domain.Identity, assessmentID, userID string) (domain.Assessment, error) {
	a, err := s.GetAssessment(ctx, actor, assessmentID)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetUser, ClientID: a.ClientID, OwnerID: userID}); err != nil {
		return domain.Assessment{}, err
	}
	return a, nil
}

func questionOrder(a domain.Assessment, userID string) []string {
	ids := a.QuestionIDs
	if !a.Config.ShuffleQuestions {
		return append([]string(nil), ids...)
	}
	out := make([]string, len(ids))
	for i, j := range permutation(len(ids), a.ID, userID) {
		out[i] = ids[j]
	}
	return out
}

func optionOrder(a domain.Assessment, q domain.Question, userID string) []int {
	var n int
	switch cfg := q.Config.(type) {
	case domain.MCQSingleConfig:
		n = len(cfg.Options)
	case domain.MCQMultipleConfig:
		n = len(cfg.Options)
	default:
		return nil
	}
	if !a.Config.ShuffleOptions {
		return inOrder(n)
	}
	return permutation(n, a.ID, userID, q.ID)
}

func present(q domain.Question, order []int) PresentedQuestion {
	p := PresentedQuestion{
		ID:          q.ID,
		Type:        q.Type,
		Text:        q.Text,
		Description: q.Description,
		Difficulty:  q.Difficulty(),
	}
	var options []string
	switch cfg := q.Config.(type) {
	case domain.MCQSingleConfig:
		options = cfg.Options
	case domain.MCQMultipleConfig:
		options = cfg.Options
	case domain.ProgrammingConfig:
		p.TimeLimit = cfg.TimeLimit
		p.Language = cfg.Language
	case domain.TheoryConfig:
		p.WordLimit = cfg.WordLimit
	}
	for _, idx := range order {
		p.Options = append(p.Options, options[idx])
		p.OptionIndex = append(p.OptionIndex, idx)
	}
	return p
}

func assessmentCursor(a domain.Assessment) Cursor { return Cursor{CreatedAt: a.CreatedAt, ID: a.ID} }

func failed[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

func isState(err error) bool { return errors.Is(err, domain.ErrState) }
