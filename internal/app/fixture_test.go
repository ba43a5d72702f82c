package app_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/infra/memory"
)

const testPassword = "correct-horse"

type fixture struct {
	t     *testing.T
	ctx   context.Context
	core  *app.Core
	store    *memory.Store
	sessions *memory.SessionStore
	now      time.Time
	admin    domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	sessions := memory.NewSessionStore(0)
	repos.Sessions = sessions
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		sessions: sessions,
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		admin:    domain.Identity{SessionID: "root", UserID: "root", Role: domain.RoleAdmin},
	}
	f.core = app.New(repos, zap.NewNop(),
		app.WithClock(func() time.Time { return f.now }),
		app.WithPageSize(2),
	)
	return f
}

func (f *fixture) client(name string, seats int) domain.Client {
	f.t.Helper()
	c, err := f.core.Tenants.CreateClient(f.ctx, f.admin, app.NewClient{
		Name: name,
		Config: domain.ClientConfig{
			ClientType:      domain.ClientCollege,
			Plan:            domain.PlanPremium,
			ContractEndDate: f.now.AddDate(1, 0, 0),
			MaxLicences:     seats,
			PrimaryEmail:    "ops@" + name + ".example.com",
		},
	})
	if err != nil {
		f.t.Fatalf("create client %s: %v", name, err)
	}
	return c
}

func (f *fixture) user(role domain.Role, email, clientID string) domain.User {
	f.t.Helper()
	u, err := f.core.Identity.ProvisionUser(f.ctx, f.admin, app.NewUser{Email: email, Password: testPassword, Role: role})
	if err != nil {
		f.t.Fatalf("provision %s: %v", email, err)
	}
	if clientID != "" {
		if u, err = f.core.Tenants.AddUserToClient(f.ctx, f.admin, clientID, u.ID); err != nil {
			f.t.Fatalf("add %s to client: %v", email, err)
		}
	}
	return u
}

func (f *fixture) login(email string) domain.Identity {
	f.t.Helper()
	id, err := f.core.Identity.Authenticate(f.ctx, app.Credentials{Email: email, Password: testPassword})
	if err != nil {
		f.t.Fatalf("login %s: %v", email, err)
	}
	return id
}

func (f *fixture) batch(actor domain.Identity, clientID string) domain.Batch {
	f.t.Helper()
	b, err := f.core.Tenants.CreateBatch(f.ctx, actor, app.NewBatch{
		Name:      "Spring",
		ClientID:  clientID,
		StartDate: f.now.AddDate(0, -1, 0),
		EndDate:   f.now.AddDate(0, 3, 0),
	})
	if err != nil {
		f.t.Fatalf("create batch: %v", err)
	}
	return b
}

func (f *fixture) question(actor domain.Identity, cfg domain.QuestionConfig, tags ...string) domain.Question {
	f.t.Helper()
	q, err := f.core.Catalog.CreateQuestion(f.ctx, actor, app.QuestionDraft{
		Type:   cfg.Type(),
		Text:   "Question about " + string(cfg.Type()),
		Tags:   tags,
		Config: cfg,
	})
	if err != nil {
		f.t.Fatalf("create question: %v", err)
	}
	f.now = f.now.Add(time.Second)
	return q
}

// published composes and publishes an assessment open for the next day.
func (f *fixture) published(actor domain.Identity, batch domain.Batch, cfg domain.AssessmentConfig, questions ...domain.Question) domain.Assessment {
	f.t.Helper()
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	a, err := f.core.Assessments.ComposeAssessment(f.ctx, actor, app.NewAssessment{
		ClientID:    batch.ClientID,
		BatchID:     batch.ID,
		Title:       "Midterm",
		QuestionIDs: ids,
		Config:      cfg,
		StartDate:   f.now.Add(-time.Hour),
		TargetDate:  f.now.Add(24 * time.Hour),
	})
	if err != nil {
		f.t.Fatalf("compose: %v", err)
	}
	if a, err = f.core.Assessments.Publish(f.ctx, actor, a.ID); err != nil {
		f.t.Fatalf("publish: %v", err)
	}
	return a
}

// classroom builds a client with one tutor and one student in a batch.
type classroom struct {
	client  domain.Client
	batch   domain.Batch
	tutor   domain.Identity
	student domain.Identity
}

func (f *fixture) classroom(name string) classroom {
	f.t.Helper()
	c := f.client(name, 10)
	f.user(domain.RoleTutor, "tutor@"+name+".example.com", c.ID)
	s := f.user(domain.RoleStudent, "student@"+name+".example.com", c.ID)
	tutor := f.login("tutor@" + name + ".example.com")
	b := f.batch(tutor, c.ID)
	if _, err := f.core.Tenants.AssignUserToBatch(f.ctx, tutor, b.ID, s.ID); err != nil {
		f.t.Fatalf("assign batch: %v", err)
	}
	return classroom{client: c, batch: b, tutor: tutor, student: f.login("student@" + name + ".example.com")}
}

func mcqMultiple() domain.MCQMultipleConfig {
	return domain.MCQMultipleConfig{Options: []string{"A", "B", "C", "D", "E"}, CorrectAnswers: []int{0, 1, 2}}
}

func mcqSingle() domain.MCQSingleConfig {
	return domain.MCQSingleConfig{Options: []string{"yes", "no", "maybe"}, CorrectAnswer: 0}
}

func theory() domain.TheoryConfig {
	return domain.TheoryConfig{Difficulty: domain.DifficultyMedium, WordLimit: 300}
}
