package app

import (
	"slices"
	"sync"
)

// keyedLocker serialises read-modify-write cycles per entity key. Entries are
// reference counted and dropped once nobody holds or waits on them.
type keyedLocker struct {
	mu    sync.Mutex
	byKey map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{byKey: make(map[string]*keyedEntry)}
}

func (l *keyedLocker) lock(key string) func() {
	l.mu.Lock()
	e, ok := l.byKey[key]
	if !ok {
		e = &keyedEntry{}
		l.byKey[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.byKey, key)
		}
		l.mu.Unlock()
	}
}

// lockAll takes every key in sorted order so callers that overlap cannot
// deadlock. Duplicates are locked once.
func (l *keyedLocker) lockAll(keys ...string) func() {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	unlocks := make([]func(), 0, len(keys))
	for _, k := range keys {
		unlocks = append(unlocks, l.lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func clientKey(id string) string     { return "client:" + id }
func assessmentKey(id string) string { return "assessment:" + id }
func userKey(id string) string       { return "user:" + id }
func questionKey(id string) string   { return "question:" + id }

func submissionKey(assessmentID, userID string) string {
	return "submission:" + assessmentID + ":" + userID
}
