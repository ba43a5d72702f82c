package app

import (
	"sync"
	"time"
)

// GradingEvent announces that a submission changed grading state.
type GradingEvent struct {
	ClientID     string    `json:"clientId"`
	AssessmentID string    `json:"assessmentId"`
	SubmissionID string    `json:"submissionId"`
	UserID       string    `json:"userId"`
	QuestionID   string    `json:"questionId,omitempty"`
	Pending      int       `json:"pending"`
	Graded       bool      `json:"graded"`
	At           time.Time `json:"at"`
}

// GradingFeed fans grading events out to subscribers of an assessment, so
// callers waiting on asynchronous grading can be notified instead of polling.
type GradingFeed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan GradingEvent]struct{}
	relay       func(GradingEvent)
}

func NewGradingFeed() *GradingFeed {
	return &GradingFeed{subscribers: make(map[string]map[chan GradingEvent]struct{})}
}

// Subscribe returns a channel of events for assessmentID. The caller must
// invoke cancel to release it.
func (f *GradingFeed) Subscribe(assessmentID string) (<-chan GradingEvent, func()) {
	ch := make(chan GradingEvent, 8)
	f.mu.Lock()
	subs, ok := f.subscribers[assessmentID]
	if !ok {
		subs = make(map[chan GradingEvent]struct{})
		f.subscribers[assessmentID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[assessmentID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(f.subscribers, assessmentID)
		}
	}
	return ch, cancel
}

// SetRelay installs fn to receive every event published on this instance,
// typically to forward it to other instances.
func (f *GradingFeed) SetRelay(fn func(GradingEvent)) {
	f.mu.Lock()
	f.relay = fn
	f.mu.Unlock()
}

// Publish delivers ev locally and hands it to the relay, if any.
func (f *GradingFeed) Publish(ev GradingEvent) {
	f.Deliver(ev)
	f.mu.Lock()
	relay := f.relay
	f.mu.Unlock()
	if relay != nil {
		relay(ev)
	}
}

// Deliver sends ev to every local subscriber of its assessment without
// blocking. A subscriber whose buffer is full loses its oldest event.
func (f *GradingFeed) Deliver(ev GradingEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[ev.AssessmentID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
