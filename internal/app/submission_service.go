package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/metrics"
)

const writeAttempts = 3

// GradeInput is one evaluator result for one question of a submission.
type GradeInput struct {
	SubmissionID string  `json:"submission_id" validate:"required"`
	QuestionID   string  `json:"question_id" validate:"required"`
	Completeness float64 `json:"completeness_percentage" validate:"gte=0,lte=100"`
	Quality      float64 `json:"quality_percentage" validate:"gte=0,lte=100"`
	Comments     string  `json:"evaluator_comments"`
}

// ReportRow summarises one user's submission for an assessment.
type ReportRow struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	SubmissionID string    `json:"submission_id"`
	SubmittedAt  time.Time `json:"submission_date"`
	Score        float64   `json:"score"`
	Graded       bool      `json:"graded"`
	Pending      int       `json:"pending"`
}

// Report is the per-user results table of one assessment.
type Report struct {
	Assessment domain.Assessment `json:"assessment"`
	Rows       []ReportRow       `json:"rows"`
}

// SubmissionService records answers and their scores.
type SubmissionService struct {
	*env
}

// Submit records the caller's answers for an assessment. A second call for the
// same assessment updates the existing submission in place.
func (s *SubmissionService) Submit(ctx context.Context, actor domain.Identity, assessmentID string, answers map[string]domain.Answer) (domain.Submission, error) {
	a, err := s.repos.Assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetSubmission, ClientID: a.ClientID, OwnerID: actor.UserID}); err != nil {
		return domain.Submission{}, err
	}
	if actor.Role == domain.RoleStudent {
		user, err := s.repos.Users.GetUser(ctx, actor.UserID)
		if err != nil {
			return domain.Submission{}, err
		}
		if user.BatchID != a.BatchID {
			metrics.AuthzDenials.WithLabelValues(string(TargetSubmission)).Inc()
			return domain.Submission{}, domain.NewError(domain.ErrAuth, "assessment %s is not assigned to your batch", a.ID)
		}
	}
	now := s.now().UTC()
	if !a.Open(now) {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		return domain.Submission{}, domain.NewError(domain.ErrState, "assessment %s is not accepting submissions", a.ID)
	}

	// Question locks are held until the write so an edit cannot slip in
	// between scoring and the first submission.
	keys := make([]string, 0, len(a.QuestionIDs))
	for _, qid := range a.QuestionIDs {
		keys = append(keys, questionKey(qid))
	}
	unlockQuestions := s.locks.lockAll(keys...)
	defer unlockQuestions()

	questions, err := s.checkAnswers(ctx, a, answers)
	if err != nil {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		return domain.Submission{}, err
	}

	unlock := s.locks.lock(submissionKey(a.ID, actor.UserID))
	defer unlock()

	var stored domain.Submission
	outcome := "created"
	for attempt := 0; ; attempt++ {
		existing, err := s.repos.Submissions.FindSubmission(ctx, a.ID, actor.UserID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			sub := domain.Submission{
				ID:             uuid.NewString(),
				ClientID:       a.ClientID,
				AssessmentID:   a.ID,
				UserID:         actor.UserID,
				SubmissionDate: now,
				SchemaVersion:  domain.SubmissionSchemaVersion,
				Answers:        cloneAnswers(answers),
				Results:        score(questions, answers, nil, nil),
			}
			err = s.repos.Submissions.CreateSubmission(ctx, sub)
			stored = sub
		case err != nil:
			return domain.Submission{}, err
		default:
			outcome = "resubmitted"
			existing.Results = score(questions, answers, existing.Answers, existing.Results)
			existing.Answers = cloneAnswers(answers)
			existing.SchemaVersion = domain.SubmissionSchemaVersion
			if now.After(existing.SubmissionDate) {
				existing.SubmissionDate = now
			}
			stored, err = s.repos.Submissions.UpdateSubmission(ctx, existing)
		}
		if err == nil {
			break
		}
		if attempt+1 >= writeAttempts || !(errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrAlreadyExists)) {
			return domain.Submission{}, err
		}
	}

	metrics.Submissions.WithLabelValues(outcome).Inc()
	s.log.Info("submission stored",
		zap.String("submission_id", stored.ID),
		zap.String("assessment_id", a.ID),
		zap.String("outcome", outcome),
		zap.Int("pending", len(stored.PendingQuestions())))
	s.feed.Publish(gradingEvent(stored, "", now))
	return stored, nil
}

// checkAnswers validates answer keys and shapes against the assessment and
// returns every question of the assessment keyed by id.
func (s *SubmissionService) checkAnswers(ctx context.Context, a domain.Assessment, answers map[string]domain.Answer) (map[string]domain.Question, error) {
	var errs []domain.FieldError
	for qid := range answers {
		if !a.Contains(qid) {
			errs = append(errs, domain.FieldError{Field: "answers." + qid, Error: "question is not part of this assessment"})
		}
	}
	questions := make(map[string]domain.Question, len(a.QuestionIDs))
	for _, qid := range a.QuestionIDs {
		q, err := s.repos.Questions.GetQuestion(ctx, qid)
		if err != nil {
			return nil, fmt.Errorf("load question %s: %w", qid, err)
		}
		questions[qid] = q
		ans, ok := answers[qid]
		if !ok {
			if !a.Config.CanSkipQuestions {
				errs = append(errs, domain.FieldError{Field: "answers." + qid, Error: "question must be answered"})
			}
			continue
		}
		errs = append(errs, domain.ValidateAnswer(q, ans)...)
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return nil, domain.NewValidationError(errs...)
	}
	return questions, nil
}

// score builds the result map for answers. Skipped questions score zero. An
// evaluator's grading of a theory or programming answer is kept when the
// answer text is unchanged since the previous attempt.
func score(questions map[string]domain.Question, answers, prevAnswers map[string]domain.Answer, prevResults map[string]domain.QuestionResult) map[string]domain.QuestionResult {
	results := make(map[string]domain.QuestionResult, len(questions))
	for qid, q := range questions {
		ans, answered := answers[qid]
		if !answered {
			zero := 0.0
			results[qid] = domain.QuestionResult{CompletenessPercentage: &zero, QualityPercentage: &zero, Comments: "skipped"}
			continue
		}
		if r, ok := domain.Score(q, ans); ok {
			results[qid] = r
			continue
		}
		if prev, ok := prevAnswers[qid]; ok && prev.Text == ans.Text {
			if r, ok := prevResults[qid]; ok {
				results[qid] = r
				continue
			}
		}
		results[qid] = domain.QuestionResult{}
	}
	return results
}

// GetSubmission returns the submission of userID for an assessment.
func (s *SubmissionService) GetSubmission(ctx context.Context, actor domain.Identity, assessmentID, userID string) (domain.Submission, error) {
	sub, err := s.repos.Submissions.FindSubmission(ctx, assessmentID, userID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetSubmission, ClientID: sub.ClientID, OwnerID: sub.UserID}); err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

func (s *SubmissionService) GetSubmissionByID(ctx context.Context, actor domain.Identity, id string) (domain.Submission, error) {
	sub, err := s.repos.Submissions.GetSubmission(ctx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetSubmission, ClientID: sub.ClientID, OwnerID: sub.UserID}); err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

// RecordGrade posts an evaluator result for one theory or programming question.
func (s *SubmissionService) RecordGrade(ctx context.Context, actor domain.Identity, in GradeInput) (domain.Submission, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Submission{}, err
	}
	if err := domain.ValidateStruct(in); err != nil {
		return domain.Submission{}, err
	}
	sub, err := s.repos.Submissions.GetSubmission(ctx, in.SubmissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetSubmission, ClientID: sub.ClientID, OwnerID: sub.UserID}); err != nil {
		return domain.Submission{}, err
	}
	q, err := s.repos.Questions.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if q.Type.AutoScored() {
		return domain.Submission{}, domain.NewValidationError(domain.FieldError{Field: "question_id", Error: "multiple choice questions are scored automatically"})
	}

	unlock := s.locks.lock(submissionKey(sub.AssessmentID, sub.UserID))
	defer unlock()
	if sub, err = s.repos.Submissions.GetSubmission(ctx, in.SubmissionID); err != nil {
		return domain.Submission{}, err
	}

	now := s.now().UTC()
	for attempt := 0; ; attempt++ {
		if _, ok := sub.Results[in.QuestionID]; !ok {
			return domain.Submission{}, domain.NewValidationError(domain.FieldError{Field: "question_id", Error: "question is not part of this submission"})
		}
		completeness, quality := in.Completeness, in.Quality
		sub.Results[in.QuestionID] = domain.QuestionResult{
			CompletenessPercentage: &completeness,
			QualityPercentage:      &quality,
			Comments:               in.Comments,
			GradedBy:               actor.UserID,
			GradedAt:               &now,
		}
		updated, err := s.repos.Submissions.UpdateSubmission(ctx, sub)
		if err == nil {
			sub = updated
			break
		}
		if attempt+1 >= writeAttempts || !errors.Is(err, domain.ErrVersionConflict) {
			return domain.Submission{}, err
		}
		if sub, err = s.repos.Submissions.GetSubmission(ctx, in.SubmissionID); err != nil {
			return domain.Submission{}, err
		}
	}

	metrics.GradesPosted.Inc()
	s.log.Info("grade recorded",
		zap.String("submission_id", sub.ID),
		zap.String("question_id", in.QuestionID),
		zap.Bool("graded", sub.Graded()))
	s.feed.Publish(gradingEvent(sub, in.QuestionID, now))
	return sub, nil
}

// BulkGrade posts many results with bounded concurrency. Each input is applied
// independently; the returned error joins every failure.
func (s *SubmissionService) BulkGrade(ctx context.Context, actor domain.Identity, inputs []GradeInput) (int, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return 0, err
	}
	errs := make([]error, len(inputs))
	applied := make([]bool, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := s.RecordGrade(ctx, actor, in); err != nil {
				errs[i] = fmt.Errorf("grade %d (%s/%s): %w", i, in.SubmissionID, in.QuestionID, err)
				return nil
			}
			applied[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("bulk grade stopped: %w", err))
	}

	posted := 0
	for _, ok := range applied {
		if ok {
			posted++
		}
	}
	return posted, errors.Join(errs...)
}

// AggregateScore returns the mean quality percentage of a submission.
func (s *SubmissionService) AggregateScore(ctx context.Context, actor domain.Identity, submissionID string, mode domain.AggregateMode) (float64, error) {
	sub, err := s.GetSubmissionByID(ctx, actor, submissionID)
	if err != nil {
		return 0, err
	}
	return domain.Aggregate(sub, mode)
}

// AssessmentReport lists every submission of an assessment with its partial score.
func (s *SubmissionService) AssessmentReport(ctx context.Context, actor domain.Identity, assessmentID string) (Report, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return Report{}, err
	}
	a, err := s.repos.Assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return Report{}, err
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetAssessment, ClientID: a.ClientID}); err != nil {
		return Report{}, err
	}
	subs, err := s.repos.Submissions.ListSubmissions(ctx, assessmentID)
	if err != nil {
		return Report{}, err
	}
	rows := make([]ReportRow, 0, len(subs))
	for _, sub := range subs {
		score, _ := domain.Aggregate(sub, domain.AggregatePartial)
		row := ReportRow{
			UserID:       sub.UserID,
			SubmissionID: sub.ID,
			SubmittedAt:  sub.SubmissionDate,
			Score:        score,
			Graded:       sub.Graded(),
			Pending:      len(sub.PendingQuestions()),
		}
		if u, err := s.repos.Users.GetUser(ctx, sub.UserID); err == nil {
			row.Email = u.Email
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(x, y ReportRow) int {
		switch {
		case x.Email < y.Email:
			return -1
		case x.Email > y.Email:
			return 1
		}
		return 0
	})
	return Report{Assessment: a, Rows: rows}, nil
}

func gradingEvent(sub domain.Submission, questionID string, at time.Time) GradingEvent {
	return GradingEvent{
		ClientID:     sub.ClientID,
		AssessmentID: sub.AssessmentID,
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		QuestionID:   questionID,
		Pending:      len(sub.PendingQuestions()),
		Graded:       sub.Graded(),
		At:           at,
	}
}

func cloneAnswers(in map[string]domain.Answer) map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(in))
	for k, v := range in {
		v.Selected = slices.Clone(v.Selected)
		out[k] = v
	}
	return out
}
