package bolt

import (
	"context"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

func userVersion(u *domain.User) *int64     { return &u.Version }
func clientVersion(c *domain.Client) *int64 { return &c.Version }

func (s *Store) CreateUser(_ context.Context, u domain.User) error {
	email := strings.ToLower(u.Email)
	return s.db.Update(func(tx *bbolt.Tx) error {
		if exists(tx, bucketUsers, u.ID) {
			return domain.NewError(domain.ErrAlreadyExists, "user %s", u.ID)
		}
		if exists(tx, bucketEmails, email) {
			return domain.NewError(domain.ErrAlreadyExists, "email %s", u.Email)
		}
		u.Version = 1
		if err := put(tx, bucketUsers, u.ID, u); err != nil {
			return err
		}
		return tx.Bucket(bucketEmails).Put([]byte(email), []byte(u.ID))
	})
}

func (s *Store) UpdateUser(_ context.Context, u domain.User) (domain.User, error) {
	return replace(s, bucketUsers, u.ID, "user", u, userVersion)
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	return load[domain.User](s, bucketUsers, id, "user")
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var id string
	_ = s.db.View(func(tx *bbolt.Tx) error {
		id = string(tx.Bucket(bucketEmails).Get([]byte(strings.ToLower(email))))
		return nil
	})
	if id == "" {
		return domain.User{}, domain.NewError(domain.ErrNotFound, "user %s", email)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsersByClient(_ context.Context, clientID string) ([]domain.User, error) {
	// keys are user ids, so the scan is already ordered by id
	return scan(s, bucketUsers, "", func(u domain.User) bool { return u.CurrentClientID == clientID })
}

func (s *Store) CreateClient(_ context.Context, c domain.Client) error {
	c.Version = 1
	return insert(s, bucketClients, c.ID, "client", c)
}

func (s *Store) UpdateClient(_ context.Context, c domain.Client) (domain.Client, error) {
	return replace(s, bucketClients, c.ID, "client", c, clientVersion)
}

func (s *Store) GetClient(_ context.Context, id string) (domain.Client, error) {
	return load[domain.Client](s, bucketClients, id, "client")
}

func (s *Store) QueryClients(_ context.Context, q app.ClientQuery) ([]domain.Client, error) {
	out, err := scan(s, bucketClients, "", func(c domain.Client) bool {
		return q.Matches(c) && q.After.After(c.CreatedAt, c.ID)
	})
	if err != nil {
		return nil, err
	}
	return page(out, func(c domain.Client) (time.Time, string) { return c.CreatedAt, c.ID }, q.Limit), nil
}

func (s *Store) CreateBatch(_ context.Context, b domain.Batch) error {
	return insert(s, bucketBatches, b.ID, "batch", b)
}

func (s *Store) GetBatch(_ context.Context, id string) (domain.Batch, error) {
	return load[domain.Batch](s, bucketBatches, id, "batch")
}

func (s *Store) ListBatches(_ context.Context, clientID string) ([]domain.Batch, error) {
	out, err := scan(s, bucketBatches, "", func(b domain.Batch) bool { return b.ClientID == clientID })
	if err != nil {
		return nil, err
	}
	return page(out, func(b domain.Batch) (time.Time, string) { return b.CreatedAt, b.ID }, 0), nil
}

func (s *Store) CreateNotification(_ context.Context, n domain.TutorNotification) error {
	return insert(s, bucketNotifications, n.ClientID+":"+n.ID, "notification", n)
}

func (s *Store) ListNotifications(_ context.Context, clientID string) ([]domain.TutorNotification, error) {
	out, err := scan[domain.TutorNotification](s, bucketNotifications, clientID+":", nil)
	if err != nil {
		return nil, err
	}
	return page(out, func(n domain.TutorNotification) (time.Time, string) { return n.CreatedAt, n.ID }, 0), nil
}

type sessionRecord struct {
	Identity  domain.Identity `json:"identity"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// SessionStore keeps identities in the sessions bucket. A zero ttl never expires.
type SessionStore struct {
	s     *Store
	ttl   time.Duration
	clock func() time.Time
}

func (s *Store) Sessions(ttl time.Duration) *SessionStore {
	return &SessionStore{s: s, ttl: ttl, clock: time.Now}
}

func (ss *SessionStore) SaveSession(_ context.Context, id domain.Identity) error {
	rec := sessionRecord{Identity: id}
	if ss.ttl > 0 {
		at := ss.clock().Add(ss.ttl)
		rec.ExpiresAt = &at
	}
	return ss.s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketSessions, id.SessionID, rec)
	})
}

func (ss *SessionStore) LoadSession(_ context.Context, sessionID string) (domain.Identity, error) {
	rec, err := load[sessionRecord](ss.s, bucketSessions, sessionID, "session")
	if err != nil {
		return domain.Identity{}, err
	}
	if rec.ExpiresAt != nil && ss.clock().After(*rec.ExpiresAt) {
		_ = ss.s.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketSessions).Delete([]byte(sessionID))
		})
		return domain.Identity{}, domain.NewError(domain.ErrNotFound, "session %s", sessionID)
	}
	return rec.Identity, nil
}

func (ss *SessionStore) DeleteSession(_ context.Context, sessionID string) error {
	return ss.s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(sessionID))
	})
}
