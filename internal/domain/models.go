package domain

import "time"

// Role is the capability class of a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTutor, RoleAdmin:
		return true
	}
	return false
}

// User is an account. Users are never hard-deleted, only deactivated.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	MobileNumber     string    `json:"mobile_number,omitempty"`
	PasswordHash     []byte    `json:"password_hash,omitempty"`
	Role             Role      `json:"role"`
	DefaultClientID  string    `json:"default_client,omitempty"`
	LastUsedClientID string    `json:"last_used_client,omitempty"`
	CurrentClientID  string    `json:"current_session_client,omitempty"`
	BatchID          string    `json:"batch_id,omitempty"`
	DefaultLanguage  string    `json:"default_language"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int64     `json:"version"`
}

// Identity is an authenticated principal together with its current client context.
type Identity struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ClientID  string    `json:"client_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
	ClientTrial    ClientStatus = "trial"
)

// Usable reports whether users may work inside a client with this status.
func (s ClientStatus) Usable() bool {
	return s == ClientActive || s == ClientTrial
}

type ClientType string

const (
	ClientCollege    ClientType = "college"
	ClientIndividual ClientType = "individual"
	ClientCompany    ClientType = "company"
)

type Plan string

const (
	PlanTrial      Plan = "trial"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// ClientConfig is the licence and contact block of a client.
type ClientConfig struct {
	ClientType        ClientType `json:"client_type" validate:"required,oneof=college individual company"`
	Plan              Plan       `json:"plan" validate:"required,oneof=trial premium enterprise"`
	ContractEndDate   time.Time  `json:"contract_end_date" validate:"required"`
	MaxLicences       int        `json:"max_licences" validate:"gt=0"`
	PrimaryEmail      string     `json:"primary_email" validate:"required,email"`
	AlternativeEmails []string   `json:"alternative_emails" validate:"omitempty,dive,email"`
}

// Client is a tenant: the top-level isolation boundary.
type Client struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Status        ClientStatus `json:"status"`
	Config        ClientConfig `json:"client_config"`
	CreatedAt     time.Time    `json:"created_at"`
	DeactivatedAt *time.Time   `json:"deactivated_at,omitempty"`
	Version       int64        `json:"version"`
}

type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchInactive BatchStatus = "inactive"
)

// Batch is a cohort of students within one client.
type Batch struct {
	ID        string      `json:"id"`
	Name      string      `json:"batch_name"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Status    BatchStatus `json:"status"`
	ClientID  string      `json:"client_id"`
	CreatedAt time.Time   `json:"created_at"`
}

type AssessmentStatus string

const (
	AssessmentDraft    AssessmentStatus = "draft"
	AssessmentActive   AssessmentStatus = "active"
	AssessmentInactive AssessmentStatus = "inactive"
)

// AssessmentKind separates graded assessments from assignments and
// mandatory practice. All kinds share one lifecycle and submission flow.
type AssessmentKind string

const (
	KindAssessment        AssessmentKind = "assessment"
	KindAssignment        AssessmentKind = "assignment"
	KindMandatoryPractice AssessmentKind = "mandatory_practice"
)

// OrDefault maps the empty kind of older records to KindAssessment.
func (k AssessmentKind) OrDefault() AssessmentKind {
	if k == "" {
		return KindAssessment
	}
	return k
}

// AssessmentConfig holds per-assessment presentation rules.
type AssessmentConfig struct {
	CanSkipQuestions bool `json:"can_skip_questions"`
	ShuffleOptions   bool `json:"shuffle_options"`
	ShuffleQuestions bool `json:"shuffle_questions"`
}

// Assessment binds an ordered set of catalog questions to a batch and a time window.
type Assessment struct {
	ID          string           `json:"id"`
	ClientID    string           `json:"client_id"`
	BatchID     string           `json:"batch_id"`
	Title       string           `json:"title"`
	Kind        AssessmentKind   `json:"kind"`
	Tags        []string         `json:"tags,omitempty"`
	QuestionIDs []string         `json:"questions"`
	Config      AssessmentConfig `json:"config"`
	StartDate   time.Time        `json:"start_date"`
	TargetDate  time.Time        `json:"target_date"`
	Status      AssessmentStatus `json:"status"`
	CreatedBy   string           `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Version     int64            `json:"version"`
}

// Contains reports whether questionID is part of the assessment.
func (a Assessment) Contains(questionID string) bool {
	for _, id := range a.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Open reports whether submissions are accepted at now.
func (a Assessment) Open(now time.Time) bool {
	return a.Status == AssessmentActive && !now.Before(a.StartDate) && !now.After(a.TargetDate)
}

// Answer is a user's response to one question. Selected is used by the MCQ
// variants (option indices in catalog order), Text by theory and programming.
type Answer struct {
	Selected []int  `json:"selected,omitempty"`
	Text     string `json:"text,omitempty"`
}

// QuestionResult is the per-question score. Nil percentages mean the question
// is waiting for an external evaluator.
type QuestionResult struct {
	CompletenessPercentage *float64   `json:"completeness_percentage"`
	QualityPercentage      *float64   `json:"quality_percentage"`
	Comments               string     `json:"evaluator_comments"`
	GradedBy               string     `json:"graded_by,omitempty"`
	GradedAt               *time.Time `json:"graded_at,omitempty"`
}

// Graded reports whether both percentages are present.
func (r QuestionResult) Graded() bool {
	return r.CompletenessPercentage != nil && r.QualityPercentage != nil
}

// SubmissionSchemaVersion tags the layout of Submission.Results.
const SubmissionSchemaVersion = "v1"

// Submission is one user's answers and results for one assessment.
type Submission struct {
	ID             string                    `json:"id"`
	ClientID       string                    `json:"client_id"`
	AssessmentID   string                    `json:"assessment_id"`
	UserID         string                    `json:"user_id"`
	SubmissionDate time.Time                 `json:"submission_date"`
	SchemaVersion  string                    `json:"version"`
	Answers        map[string]Answer         `json:"answers"`
	Results        map[string]QuestionResult `json:"results"`
	Version        int64                     `json:"row_version"`
}

// Graded reports whether every result carries a score.
func (s Submission) Graded() bool {
	for _, r := range s.Results {
		if !r.Graded() {
			return false
		}
	}
	return true
}

// PendingQuestions lists question ids still waiting for an evaluator.
func (s Submission) PendingQuestions() []string {
	var out []string
	for id, r := range s.Results {
		if !r.Graded() {
			out = append(out, id)
		}
	}
	return out
}

type NotificationVisibility string

const (
	NotificationVisible NotificationVisibility = "visible"
	NotificationHidden  NotificationVisibility = "hidden"
)

// TutorNotification is a message a tutor leaves for a batch.
type TutorNotification struct {
	ID         string                 `json:"id"`
	ClientID   string                 `json:"client_id"`
	BatchID    string                 `json:"batch_id"`
	Message    string                 `json:"message"`
	Visibility NotificationVisibility `json:"visibility"`
	CreatedBy  string                 `json:"created_by"`
	CreatedAt  time.Time              `json:"created_at"`
}

// DashboardStats summarises a client's activity.
type DashboardStats struct {
	ClientID          string  `json:"client_id"`
	TotalStudents     int     `json:"total_students"`
	TotalTutors       int     `json:"total_tutors"`
	TotalAssessments  int     `json:"total_assessments"`
	ActiveAssessments int     `json:"active_assessments"`
	TotalSubmissions  int     `json:"total_submissions"`
	PendingGrading    int     `json:"pending_grading"`
	AvgScore          float64 `json:"avg_score"`
}
