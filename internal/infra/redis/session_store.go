package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skillyhead-service/internal/domain"
)

// SessionStore keeps identities in Redis so every instance resolves the same
// session, including the client it is currently scoped to. Keys expire after
// ttl; a zero ttl keeps them until logout.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) SaveSession(ctx context.Context, id domain.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(id.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) LoadSession(ctx context.Context, sessionID string) (domain.Identity, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Identity{}, domain.NewError(domain.ErrNotFound, "session %s", sessionID)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load session: %w", err)
	}
	var id domain.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return domain.Identity{}, fmt.Errorf("decode session: %w", err)
	}
	return id, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "skillyhead:session:" + sessionID
}
