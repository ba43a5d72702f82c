package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

// Store keeps every entity in process memory. Records are copied on the way in
// and out, and updates are conditional on the stored version.
type Store struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	emails        map[string]string
	clients       map[string]domain.Client
	batches       map[string]domain.Batch
	questions     map[string]domain.Question
	assessments   map[string]domain.Assessment
	submissions   map[string]domain.Submission
	byPair        map[string]string
	notifications map[string]domain.TutorNotification
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]domain.User),
		emails:        make(map[string]string),
		clients:       make(map[string]domain.Client),
		batches:       make(map[string]domain.Batch),
		questions:     make(map[string]domain.Question),
		assessments:   make(map[string]domain.Assessment),
		submissions:   make(map[string]domain.Submission),
		byPair:        make(map[string]string),
		notifications: make(map[string]domain.TutorNotification),
	}
}

// Repositories exposes the store through the app ports. Sessions is left for
// the caller to fill.
func (s *Store) Repositories() app.Repositories {
	return app.Repositories{
		Users:         s,
		Clients:       s,
		Batches:       s,
		Questions:     s,
		Assessments:   s,
		Submissions:   s,
		Notifications: s,
	}
}

func (s *Store) CreateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "user %s", u.ID)
	}
	email := strings.ToLower(u.Email)
	if _, ok := s.emails[email]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "email %s", u.Email)
	}
	u.Version = 1
	s.users[u.ID] = cloneUser(u)
	s.emails[email] = u.ID
	return nil
}

func (s *Store) UpdateUser(_ context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return domain.User{}, domain.NewError(domain.ErrNotFound, "user %s", u.ID)
	}
	if cur.Version != u.Version {
		return domain.User{}, domain.ErrVersionConflict
	}
	u.Version++
	s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.NewError(domain.ErrNotFound, "user %s", id)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	id, ok := s.emails[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return domain.User{}, domain.NewError(domain.ErrNotFound, "user %s", email)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsersByClient(_ context.Context, clientID string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.User
	for _, u := range s.users {
		if u.CurrentClientID == clientID {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateClient(_ context.Context, c domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "client %s", c.ID)
	}
	c.Version = 1
	s.clients[c.ID] = cloneClient(c)
	return nil
}

func (s *Store) UpdateClient(_ context.Context, c domain.Client) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.clients[c.ID]
	if !ok {
		return domain.Client{}, domain.NewError(domain.ErrNotFound, "client %s", c.ID)
	}
	if cur.Version != c.Version {
		return domain.Client{}, domain.ErrVersionConflict
	}
	c.Version++
	s.clients[c.ID] = cloneClient(c)
	return cloneClient(c), nil
}

func (s *Store) GetClient(_ context.Context, id string) (domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return domain.Client{}, domain.NewError(domain.ErrNotFound, "client %s", id)
	}
	return cloneClient(c), nil
}

func (s *Store) QueryClients(_ context.Context, q app.ClientQuery) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Client
	for _, c := range s.clients {
		if q.Matches(c) && q.After.After(c.CreatedAt, c.ID) {
			out = append(out, cloneClient(c))
		}
	}
	return page(out, func(c domain.Client) (time.Time, string) { return c.CreatedAt, c.ID }, q.Limit), nil
}

func (s *Store) CreateBatch(_ context.Context, b domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "batch %s", b.ID)
	}
	s.batches[b.ID] = b
	return nil
}

func (s *Store) GetBatch(_ context.Context, id string) (domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, domain.NewError(domain.ErrNotFound, "batch %s", id)
	}
	return b, nil
}

func (s *Store) ListBatches(_ context.Context, clientID string) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Batch
	for _, b := range s.batches {
		if b.ClientID == clientID {
			out = append(out, b)
		}
	}
	return page(out, func(b domain.Batch) (time.Time, string) { return b.CreatedAt, b.ID }, 0), nil
}

func (s *Store) CreateNotification(_ context.Context, n domain.TutorNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "notification %s", n.ID)
	}
	s.notifications[n.ID] = n
	return nil
}

func (s *Store) ListNotifications(_ context.Context, clientID string) ([]domain.TutorNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TutorNotification
	for _, n := range s.notifications {
		if n.ClientID == clientID {
			out = append(out, n)
		}
	}
	return page(out, func(n domain.TutorNotification) (time.Time, string) { return n.CreatedAt, n.ID }, 0), nil
}

// page sorts items newest first and truncates to limit (0 means all).
func page[T any](items []T, key func(T) (time.Time, string), limit int) []T {
	sort.Slice(items, func(i, j int) bool {
		ac, aid := key(items[i])
		bc, bid := key(items[j])
		return app.NewestFirst(ac, aid, bc, bid)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func cloneUser(u domain.User) domain.User {
	u.PasswordHash = slices.Clone(u.PasswordHash)
	return u
}

func cloneClient(c domain.Client) domain.Client {
	c.Config.AlternativeEmails = slices.Clone(c.Config.AlternativeEmails)
	if c.DeactivatedAt != nil {
		at := *c.DeactivatedAt
		c.DeactivatedAt = &at
	}
	return c
}
