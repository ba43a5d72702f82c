package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpdateClientIsConditionalOnVersion(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	if err := s.CreateClient(ctx, domain.Client{ID: "c1", Name: "Acme", Status: domain.ClientActive}); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, _ := s.GetClient(ctx, "c1")
	stale, _ := s.GetClient(ctx, "c1")

	first.Name = "Acme Ltd"
	updated, err := s.UpdateClient(ctx, first)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	stale.Name = "Lost"
	if _, err := s.UpdateClient(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if _, err := s.GetClient(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserEmailIndex(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	if err := s.CreateUser(ctx, domain.User{ID: "u1", Email: "Tutor@Example.com", PasswordHash: []byte("h")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, domain.User{ID: "u2", Email: "tutor@example.com"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	u, err := s.GetUserByEmail(ctx, "TUTOR@example.com")
	if err != nil || u.ID != "u1" || string(u.PasswordHash) != "h" {
		t.Fatalf("lookup: %+v %v", u, err)
	}
}

func TestQuestionConfigSurvivesStorage(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	q := domain.Question{
		ID: "q1", ClientID: "c1", Type: domain.QuestionMCQMultiple, Text: "Pick primes",
		Config:    domain.MCQMultipleConfig{Options: []string{"2", "3", "4"}, CorrectAnswers: []int{0, 1}},
		Revision:  1,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetQuestion(ctx, "q1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cfg, ok := got.Config.(domain.MCQMultipleConfig)
	if !ok || len(cfg.CorrectAnswers) != 2 {
		t.Fatalf("config lost: %#v", got.Config)
	}
}

func TestQueryQuestionsPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"q1", "q2", "q3"} {
		_ = s.CreateQuestion(ctx, domain.Question{
			ID: id, ClientID: "c1", Type: domain.QuestionTheory, Text: id,
			Config:    domain.TheoryConfig{Difficulty: domain.DifficultyEasy, WordLimit: 10},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	first, err := s.QueryQuestions(ctx, app.QuestionQuery{Filter: app.QuestionFilter{ClientID: "c1"}, Limit: 2})
	if err != nil || len(first) != 2 || first[0].ID != "q3" || first[1].ID != "q2" {
		t.Fatalf("first page: %v %v", ids(first), err)
	}
	last := first[1]
	rest, err := s.QueryQuestions(ctx, app.QuestionQuery{
		Filter: app.QuestionFilter{ClientID: "c1"},
		After:  &app.Cursor{CreatedAt: last.CreatedAt, ID: last.ID},
		Limit:  2,
	})
	if err != nil || len(rest) != 1 || rest[0].ID != "q1" {
		t.Fatalf("second page: %v %v", ids(rest), err)
	}
}

func TestSubmissionPairIndex(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	sub := domain.Submission{ID: "s1", AssessmentID: "a1", UserID: "u1", Answers: map[string]domain.Answer{"q1": {Text: "x"}}}
	if err := s.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	sub.ID = "s2"
	if err := s.CreateSubmission(ctx, sub); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	_ = s.CreateSubmission(ctx, domain.Submission{ID: "s3", AssessmentID: "a10", UserID: "u1"})

	n, err := s.CountSubmissions(ctx, "a1")
	if err != nil || n != 1 {
		t.Fatalf("count: %d %v", n, err)
	}
	found, err := s.FindSubmission(ctx, "a1", "u1")
	if err != nil || found.ID != "s1" || found.Results == nil {
		t.Fatalf("find: %+v %v", found, err)
	}
	list, _ := s.ListSubmissions(ctx, "a1")
	if len(list) != 1 {
		t.Fatalf("expected 1 submission for a1, got %d", len(list))
	}
}

func TestSessionsExpire(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := s.Sessions(time.Hour)
	sessions.clock = func() time.Time { return now }

	id := domain.Identity{SessionID: "sess", UserID: "u1", Role: domain.RoleTutor, ClientID: "c1"}
	if err := sessions.SaveSession(ctx, id); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := sessions.LoadSession(ctx, "sess")
	if err != nil || got.ClientID != "c1" {
		t.Fatalf("load: %+v %v", got, err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := sessions.LoadSession(ctx, "sess"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestCoreRunsOnBolt(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	core := app.New(s.Repositories(), nil, app.WithClock(func() time.Time { return now }))
	admin := domain.Identity{UserID: "root", Role: domain.RoleAdmin}

	client, err := core.Tenants.CreateClient(ctx, admin, app.NewClient{
		Name: "Acme",
		Config: domain.ClientConfig{
			ClientType: domain.ClientCompany, Plan: domain.PlanPremium,
			ContractEndDate: now.AddDate(1, 0, 0), MaxLicences: 1, PrimaryEmail: "ops@acme.test",
		},
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	for _, email := range []string{"one@acme.test", "two@acme.test"} {
		u, err := core.Identity.ProvisionUser(ctx, admin, app.NewUser{Email: email, Password: "correct-horse", Role: domain.RoleStudent})
		if err != nil {
			t.Fatalf("provision %s: %v", email, err)
		}
		_, err = core.Tenants.AddUserToClient(ctx, admin, client.ID, u.ID)
		switch {
		case email == "one@acme.test" && err != nil:
			t.Fatalf("first seat: %v", err)
		case email == "two@acme.test" && !errors.Is(err, domain.ErrCapacity):
			t.Fatalf("expected capacity error for second seat, got %v", err)
		}
	}
}

func ids(qs []domain.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func TestUpdateSubmissionRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	if err := s.CreateSubmission(ctx, domain.Submission{ID: "s1", AssessmentID: "a1", UserID: "u1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	first, _ := s.GetSubmission(ctx, "s1")
	stale, _ := s.GetSubmission(ctx, "s1")

	first.Results["q1"] = domain.QuestionResult{Comments: "kept"}
	updated, err := s.UpdateSubmission(ctx, first)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	stale.Results["q1"] = domain.QuestionResult{Comments: "lost"}
	if _, err := s.UpdateSubmission(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	kept, _ := s.GetSubmission(ctx, "s1")
	if kept.Results["q1"].Comments != "kept" {
		t.Fatalf("stale write landed: %+v", kept.Results["q1"])
	}
}

func TestQueryQuestionsSearchesTags(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.CreateQuestion(ctx, domain.Question{
		ID: "q1", ClientID: "c1", Type: domain.QuestionTheory, Text: "Explain the call stack",
		Tags:      []string{"Recursion"},
		Config:    domain.TheoryConfig{Difficulty: domain.DifficultyEasy, WordLimit: 10},
		CreatedAt: base,
	})
	_ = s.CreateQuestion(ctx, domain.Question{
		ID: "q2", ClientID: "c1", Type: domain.QuestionTheory, Text: "Explain heaps",
		Config:    domain.TheoryConfig{Difficulty: domain.DifficultyEasy, WordLimit: 10},
		CreatedAt: base.Add(time.Minute),
	})
	got, err := s.QueryQuestions(ctx, app.QuestionQuery{Filter: app.QuestionFilter{ClientID: "c1", TextContains: "recurs"}})
	if err != nil || len(got) != 1 || got[0].ID != "q1" {
		t.Fatalf("tag search: %v %v", ids(got), err)
	}
}
