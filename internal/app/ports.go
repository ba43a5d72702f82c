package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"skillyhead-service/internal/domain"
)

// Cursor is a keyset position in a creation-time-descending listing.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// After reports whether an item at (createdAt, id) comes after c in
// creation-time-descending order. A nil cursor starts from the top.
func (c *Cursor) After(createdAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if createdAt.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return createdAt.Before(c.CreatedAt)
}

// NewestFirst orders two records by creation time descending, then id descending.
func NewestFirst(aCreated time.Time, aID string, bCreated time.Time, bID string) bool {
	if aCreated.Equal(bCreated) {
		return aID > bID
	}
	return aCreated.After(bCreated)
}

// UserRepository stores accounts. UpdateUser is conditional on Version.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	UpdateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	// ListUsersByClient returns users whose current client is clientID.
	ListUsersByClient(ctx context.Context, clientID string) ([]domain.User, error)
}

// ClientQuery selects clients. Empty fields match everything.
type ClientQuery struct {
	Status domain.ClientStatus
	Search string
	After  *Cursor
	Limit  int
}

// Matches applies the non-paging predicates.
func (q ClientQuery) Matches(c domain.Client) bool {
	if q.Status != "" && c.Status != q.Status {
		return false
	}
	if q.Search != "" {
		s := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(c.Name), s) && !strings.Contains(strings.ToLower(c.Config.PrimaryEmail), s) {
			return false
		}
	}
	return true
}

// ClientRepository stores tenants. UpdateClient is conditional on Version.
type ClientRepository interface {
	CreateClient(ctx context.Context, client domain.Client) error
	UpdateClient(ctx context.Context, client domain.Client) (domain.Client, error)
	GetClient(ctx context.Context, id string) (domain.Client, error)
	QueryClients(ctx context.Context, q ClientQuery) ([]domain.Client, error)
}

type BatchRepository interface {
	CreateBatch(ctx context.Context, batch domain.Batch) error
	GetBatch(ctx context.Context, id string) (domain.Batch, error)
	ListBatches(ctx context.Context, clientID string) ([]domain.Batch, error)
}

// QuestionFilter combines its predicates with AND. Empty fields match everything.
type QuestionFilter struct {
	ClientID       string
	Type           domain.QuestionType
	Difficulty     domain.Difficulty
	Tag            string
	TextContains   string
	IncludeDeleted bool
}

// Matches applies the filter to q.
func (f QuestionFilter) Matches(q domain.Question) bool {
	if f.ClientID != "" && q.ClientID != f.ClientID {
		return false
	}
	if !f.IncludeDeleted && q.Deleted {
		return false
	}
	if f.Type != "" && q.Type != f.Type {
		return false
	}
	if f.Difficulty != "" && q.Difficulty() != f.Difficulty {
		return false
	}
	if f.Tag != "" && !q.HasTag(f.Tag) {
		return false
	}
	if f.TextContains != "" && !mentions(q, strings.ToLower(f.TextContains)) {
		return false
	}
	return true
}

// mentions reports whether term occurs in the question text or any tag.
func mentions(q domain.Question, term string) bool {
	if strings.Contains(strings.ToLower(q.Text), term) {
		return true
	}
	return slices.ContainsFunc(q.Tags, func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), term)
	})
}

type QuestionQuery struct {
	Filter QuestionFilter
	After  *Cursor
	Limit  int
}

// QuestionRepository stores catalog questions. UpdateQuestion is conditional on Version.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q domain.Question) error
	UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	QueryQuestions(ctx context.Context, q QuestionQuery) ([]domain.Question, error)
}

// AssessmentQuery selects assessments. Empty fields match everything.
type AssessmentQuery struct {
	ClientID   string
	BatchID    string
	Status     domain.AssessmentStatus
	Kind       domain.AssessmentKind
	Tag        string
	QuestionID string
	After      *Cursor
	Limit      int
}

// Matches applies the non-paging predicates.
func (q AssessmentQuery) Matches(a domain.Assessment) bool {
	if q.ClientID != "" && a.ClientID != q.ClientID {
		return false
	}
	if q.BatchID != "" && a.BatchID != q.BatchID {
		return false
	}
	if q.Status != "" && a.Status != q.Status {
		return false
	}
	if q.Kind != "" && a.Kind.OrDefault() != q.Kind.OrDefault() {
		return false
	}
	if q.Tag != "" && !slices.ContainsFunc(a.Tags, func(t string) bool { return strings.EqualFold(t, q.Tag) }) {
		return false
	}
	if q.QuestionID != "" && !a.Contains(q.QuestionID) {
		return false
	}
	return true
}

// AssessmentRepository stores assessments. UpdateAssessment is conditional on Version.
type AssessmentRepository interface {
	CreateAssessment(ctx context.Context, a domain.Assessment) error
	UpdateAssessment(ctx context.Context, a domain.Assessment) (domain.Assessment, error)
	GetAssessment(ctx context.Context, id string) (domain.Assessment, error)
	QueryAssessments(ctx context.Context, q AssessmentQuery) ([]domain.Assessment, error)
}

// SubmissionRepository stores submissions, at most one per (assessment, user).
// CreateSubmission fails with domain.ErrAlreadyExists when the pair is taken;
// UpdateSubmission is conditional on Version.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, s domain.Submission) error
	UpdateSubmission(ctx context.Context, s domain.Submission) (domain.Submission, error)
	GetSubmission(ctx context.Context, id string) (domain.Submission, error)
	FindSubmission(ctx context.Context, assessmentID, userID string) (domain.Submission, error)
	ListSubmissions(ctx context.Context, assessmentID string) ([]domain.Submission, error)
	CountSubmissions(ctx context.Context, assessmentID string) (int, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n domain.TutorNotification) error
	ListNotifications(ctx context.Context, clientID string) ([]domain.TutorNotification, error)
}

// SessionStore keeps live identities keyed by session id.
type SessionStore interface {
	SaveSession(ctx context.Context, id domain.Identity) error
	LoadSession(ctx context.Context, sessionID string) (domain.Identity, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Repositories bundles the storage ports the services depend on.
type Repositories struct {
	Users         UserRepository
	Clients       ClientRepository
	Batches       BatchRepository
	Questions     QuestionRepository
	Assessments   AssessmentRepository
	Submissions   SubmissionRepository
	Notifications NotificationRepository
	Sessions      SessionStore
}
