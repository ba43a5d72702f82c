package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"skillyhead-service/internal/app"
)

func TestGradingRelayCrossesInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feedA, feedB := app.NewGradingFeed(), app.NewGradingFeed()
	if err := NewGradingRelay(newClient(mr), feedA, nil).Start(ctx); err != nil {
		t.Fatalf("start relay a: %v", err)
	}
	if err := NewGradingRelay(newClient(mr), feedB, nil).Start(ctx); err != nil {
		t.Fatalf("start relay b: %v", err)
	}

	local, cancelA := feedA.Subscribe("a1")
	defer cancelA()
	remote, cancelB := feedB.Subscribe("a1")
	defer cancelB()

	feedA.Publish(app.GradingEvent{AssessmentID: "a1", SubmissionID: "s1", Pending: 1})

	select {
	case ev := <-local:
		if ev.SubmissionID != "s1" {
			t.Fatalf("unexpected local event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("local subscriber got nothing")
	}
	select {
	case ev := <-remote:
		if ev.SubmissionID != "s1" || ev.Pending != 1 {
			t.Fatalf("unexpected relayed event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("remote subscriber got nothing")
	}
	// The origin instance must not see its own event twice.
	select {
	case ev := <-local:
		t.Fatalf("duplicate local delivery %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
