package app_test

import (
	"errors"
	"testing"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

func TestCreateQuestionValidatesVariant(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")

	cases := map[string]app.QuestionDraft{
		"single option": {Type: domain.QuestionMCQSingle, Text: "Pick", Config: domain.MCQSingleConfig{Options: []string{"only"}}},
		"answer out of range": {Type: domain.QuestionMCQSingle, Text: "Pick", Config: domain.MCQSingleConfig{Options: []string{"a", "b"}, CorrectAnswer: 2}},
		"empty correct set": {Type: domain.QuestionMCQMultiple, Text: "Pick", Config: domain.MCQMultipleConfig{Options: []string{"a", "b"}}},
		"negative index": {Type: domain.QuestionMCQMultiple, Text: "Pick", Config: domain.MCQMultipleConfig{Options: []string{"a", "b"}, CorrectAnswers: []int{-1}}},
		"zero time limit": {Type: domain.QuestionProgramming, Text: "Code", Config: domain.ProgrammingConfig{Difficulty: domain.DifficultyEasy, Language: "go"}},
		"zero word limit": {Type: domain.QuestionTheory, Text: "Explain", Config: domain.TheoryConfig{Difficulty: domain.DifficultyEasy}},
		"variant mismatch": {Type: domain.QuestionTheory, Text: "Explain", Config: domain.ProgrammingConfig{Difficulty: domain.DifficultyEasy, TimeLimit: 5, Language: "go"}},
		"missing text": {Type: domain.QuestionTheory, Config: theory()},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.core.Catalog.CreateQuestion(f.ctx, room.tutor, draft); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestStudentsCannotCreateQuestions(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")
	_, err := f.core.Catalog.CreateQuestion(f.ctx, room.student, app.QuestionDraft{Type: domain.QuestionTheory, Text: "x", Config: theory()})
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestListQuestionsCombinesFilters(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")
	hardGo := f.question(room.tutor, domain.ProgrammingConfig{Difficulty: domain.DifficultyHard, TimeLimit: 30, Language: "go"}, "Concurrency")
	f.question(room.tutor, domain.ProgrammingConfig{Difficulty: domain.DifficultyEasy, TimeLimit: 10, Language: "go"}, "concurrency")
	f.question(room.tutor, domain.TheoryConfig{Difficulty: domain.DifficultyHard, WordLimit: 100}, "concurrency")
	f.question(room.tutor, mcqSingle())

	seq := f.core.Catalog.ListQuestions(f.ctx, room.tutor, app.QuestionFilter{
		Type:       domain.QuestionProgramming,
		Difficulty: domain.DifficultyHard,
		Tag:        "concurrency",
	})
	got, err := app.Collect(seq, 0, 0)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 1 || got[0].ID != hardGo.ID {
		t.Fatalf("expected only the hard go question, got %+v", got)
	}

	all, _ := app.Collect(f.core.Catalog.ListQuestions(f.ctx, room.tutor, app.QuestionFilter{}), 0, 0)
	if len(all) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("listing not ordered newest first")
		}
	}
	again, _ := app.Collect(f.core.Catalog.ListQuestions(f.ctx, room.tutor, app.QuestionFilter{TextContains: "THEORY"}), 0, 0)
	if len(again) != 1 || again[0].Type != domain.QuestionTheory {
		t.Fatalf("text filter mismatch: %+v", again)
	}
}

func TestListQuestionsIsLazy(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")
	for range 5 {
		f.question(room.tutor, theory())
	}
	count := 0
	for _, err := range f.core.Catalog.ListQuestions(f.ctx, room.tutor, app.QuestionFilter{}) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Fatalf("expected early stop at 3, got %d", count)
	}
	page, _ := app.Collect(f.core.Catalog.ListQuestions(f.ctx, room.tutor, app.QuestionFilter{}), 2, 2)
	if len(page) != 2 {
		t.Fatalf("expected a page of 2, got %d", len(page))
	}
}

func TestEditQuestionBecomesImmutableAfterSubmission(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")
	q := f.question(room.tutor, mcqSingle())

	text := "Updated before use"
	if _, err := f.core.Catalog.EditQuestion(f.ctx, room.tutor, q.ID, app.QuestionEdit{Text: &text}); err != nil {
		t.Fatalf("edit before submissions: %v", err)
	}

	a := f.published(room.tutor, room.batch, domain.AssessmentConfig{}, q)
	if _, err := f.core.Submissions.Submit(f.ctx, room.student, a.ID, map[string]domain.Answer{q.ID: {Selected: []int{1}}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	text = "Too late"
	_, err := f.core.Catalog.EditQuestion(f.ctx, room.tutor, q.ID, app.QuestionEdit{Text: &text})
	if !errors.Is(err, domain.ErrImmutable) {
		t.Fatalf("expected immutable error, got %v", err)
	}

	revised, err := f.core.Catalog.ReviseQuestion(f.ctx, room.tutor, q.ID, app.QuestionEdit{Text: &text})
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if revised.ID == q.ID || revised.PreviousID != q.ID || revised.Revision != q.Revision+1 {
		t.Fatalf("unexpected revision %+v", revised)
	}
	original, _ := f.core.Catalog.GetQuestion(f.ctx, room.tutor, q.ID)
	if original.Text != "Updated before use" {
		t.Fatalf("original question changed: %q", original.Text)
	}
}

func TestDeletedQuestionsAreHidden(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")
	q := f.question(room.tutor, theory())
	if err := f.core.Catalog.DeleteQuestion(f.ctx, room.tutor, q.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	listed, _ := app.Collect(f.core.Catalog.ListQuestions(f.ctx, room.tutor, app.QuestionFilter{}), 0, 0)
	if len(listed) != 0 {
		t.Fatalf("expected deleted question hidden, got %d", len(listed))
	}
	if _, err := f.core.Catalog.GetQuestion(f.ctx, room.tutor, q.ID); err != nil {
		t.Fatalf("deleted question should stay readable: %v", err)
	}
}

func TestStudentsReadQuestionsWithoutAnswerKey(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")
	single := f.question(room.tutor, mcqSingle())
	multi := f.question(room.tutor, mcqMultiple())

	got, err := f.core.Catalog.GetQuestion(f.ctx, room.student, single.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg := got.Config.(domain.MCQSingleConfig); cfg.CorrectAnswer != -1 || len(cfg.Options) != 3 {
		t.Fatalf("expected hidden answer with options kept, got %+v", cfg)
	}
	listed, err := app.Collect(f.core.Catalog.ListQuestions(f.ctx, room.student, app.QuestionFilter{}), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(listed))
	}
	for _, q := range listed {
		switch cfg := q.Config.(type) {
		case domain.MCQSingleConfig:
			if cfg.CorrectAnswer != -1 {
				t.Fatalf("single answer leaked in listing: %+v", cfg)
			}
		case domain.MCQMultipleConfig:
			if cfg.CorrectAnswers != nil {
				t.Fatalf("multiple answers leaked in listing: %+v", cfg)
			}
		}
	}

	tutorView, err := f.core.Catalog.GetQuestion(f.ctx, room.tutor, multi.ID)
	if err != nil {
		t.Fatalf("tutor get: %v", err)
	}
	if cfg := tutorView.Config.(domain.MCQMultipleConfig); len(cfg.CorrectAnswers) != 3 {
		t.Fatalf("tutor should see the answer key, got %+v", cfg)
	}
	stored, _ := f.store.GetQuestion(f.ctx, single.ID)
	if stored.Config.(domain.MCQSingleConfig).CorrectAnswer != 0 {
		t.Fatalf("redaction must not touch the stored question")
	}
}

func TestTextSearchMatchesTags(t *testing.T) {
	f := newFixture(t)
	room := f.classroom("north")
	tagged := f.question(room.tutor, theory(), "Recursion")
	f.question(room.tutor, theory(), "sorting")

	got, err := app.Collect(f.core.Catalog.ListQuestions(f.ctx, room.tutor, app.QuestionFilter{TextContains: "RECURS"}), 0, 0)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 1 || got[0].ID != tagged.ID {
		t.Fatalf("expected the tagged question, got %+v", got)
	}
}
