package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

func TestUpdateUserIsConditionalOnVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.CreateUser(ctx, domain.User{ID: "u1", Email: "a@example.com", Role: domain.RoleTutor, Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	first, _ := store.GetUser(ctx, "u1")
	second, _ := store.GetUser(ctx, "u1")

	first.CurrentClientID = "c1"
	if _, err := store.UpdateUser(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	second.CurrentClientID = "c2"
	if _, err := store.UpdateUser(ctx, second); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, _ := store.GetUser(ctx, "u1")
	if got.CurrentClientID != "c1" {
		t.Fatalf("expected c1 to win, got %q", got.CurrentClientID)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateUser(ctx, domain.User{ID: "u1", Email: "a@example.com"})
	err := store.CreateUser(ctx, domain.User{ID: "u2", Email: "A@example.com"})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestOneSubmissionPerPair(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	sub := domain.Submission{ID: "s1", AssessmentID: "a1", UserID: "u1"}
	if err := store.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	sub.ID = "s2"
	if err := store.CreateSubmission(ctx, sub); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	n, _ := store.CountSubmissions(ctx, "a1")
	if n != 1 {
		t.Fatalf("expected 1 submission, got %d", n)
	}
	found, err := store.FindSubmission(ctx, "a1", "u1")
	if err != nil || found.ID != "s1" {
		t.Fatalf("find: %+v %v", found, err)
	}
}

func TestSubmissionCopiesDoNotAlias(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateSubmission(ctx, domain.Submission{
		ID: "s1", AssessmentID: "a1", UserID: "u1",
		Answers: map[string]domain.Answer{"q1": {Selected: []int{1}}},
		Results: map[string]domain.QuestionResult{"q1": {}},
	})
	got, _ := store.GetSubmission(ctx, "s1")
	got.Answers["q1"].Selected[0] = 9
	got.Results["q2"] = domain.QuestionResult{}

	again, _ := store.GetSubmission(ctx, "s1")
	if again.Answers["q1"].Selected[0] != 1 || len(again.Results) != 1 {
		t.Fatalf("stored submission was mutated through a copy: %+v", again)
	}
}

func TestQueryQuestionsPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"q1", "q2", "q3"} {
		_ = store.CreateQuestion(ctx, domain.Question{
			ID: id, ClientID: "c1", Type: domain.QuestionTheory, Text: id,
			Config:    domain.TheoryConfig{Difficulty: domain.DifficultyEasy, WordLimit: 10},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	first, err := store.QueryQuestions(ctx, app.QuestionQuery{Filter: app.QuestionFilter{ClientID: "c1"}, Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(first) != 2 || first[0].ID != "q3" || first[1].ID != "q2" {
		t.Fatalf("unexpected first page: %v", ids(first))
	}
	after := app.Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID}
	second, _ := store.QueryQuestions(ctx, app.QuestionQuery{Filter: app.QuestionFilter{ClientID: "c1"}, After: &after, Limit: 2})
	if len(second) != 1 || second[0].ID != "q1" {
		t.Fatalf("unexpected second page: %v", ids(second))
	}
}

func ids(qs []domain.Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}
