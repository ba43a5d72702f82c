package memory

import (
	"context"
	"sync"
	"time"

	"skillyhead-service/internal/domain"
)

// SessionStore keeps identities in memory. Sessions older than ttl are
// treated as missing; a zero ttl never expires them.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]storedSession
}

type storedSession struct {
	identity domain.Identity
	expires  time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[string]storedSession),
	}
}

func (s *SessionStore) SaveSession(_ context.Context, id domain.Identity) error {
	var expires time.Time
	if s.ttl > 0 {
		expires = s.clock().Add(s.ttl)
	}
	s.mu.Lock()
	s.sessions[id.SessionID] = storedSession{identity: id, expires: expires}
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) LoadSession(_ context.Context, sessionID string) (domain.Identity, error) {
	s.mu.RLock()
	stored, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || (!stored.expires.IsZero() && !stored.expires.After(s.clock())) {
		return domain.Identity{}, domain.NewError(domain.ErrNotFound, "session %s", sessionID)
	}
	return stored.identity, nil
}

func (s *SessionStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domain.NewError(domain.ErrNotFound, "session %s", sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}
