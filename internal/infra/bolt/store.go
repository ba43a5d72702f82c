package bolt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

var (
	bucketUsers         = []byte("users")
	bucketEmails        = []byte("user_emails")
	bucketClients       = []byte("clients")
	bucketBatches       = []byte("batches")
	bucketQuestions     = []byte("questions")
	bucketAssessments   = []byte("assessments")
	bucketSubmissions   = []byte("submissions")
	bucketPairs         = []byte("submission_pairs")
	bucketNotifications = []byte("notifications")
	bucketSessions      = []byte("sessions")
)

var allBuckets = [][]byte{
	bucketUsers, bucketEmails, bucketClients, bucketBatches, bucketQuestions,
	bucketAssessments, bucketSubmissions, bucketPairs, bucketNotifications, bucketSessions,
}

// Store persists every entity as JSON in a single bbolt file. Each write is
// one bbolt transaction, so version checks and index updates commit together.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path and ensures its buckets.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Repositories exposes the store through the app ports, sessions included.
func (s *Store) Repositories() app.Repositories {
	return app.Repositories{
		Users:         s,
		Clients:       s,
		Batches:       s,
		Questions:     s,
		Assessments:   s,
		Submissions:   s,
		Notifications: s,
		Sessions:      s.Sessions(0),
	}
}

var errMissing = errors.New("missing")

func get[T any](tx *bbolt.Tx, bucket []byte, key string) (T, error) {
	var out T
	v := tx.Bucket(bucket).Get([]byte(key))
	if v == nil {
		return out, errMissing
	}
	if err := json.Unmarshal(v, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return out, nil
}

func put[T any](tx *bbolt.Tx, bucket []byte, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func exists(tx *bbolt.Tx, bucket []byte, key string) bool {
	return tx.Bucket(bucket).Get([]byte(key)) != nil
}

// load reads one record, mapping a missing key to domain.ErrNotFound.
func load[T any](s *Store, bucket []byte, key, what string) (T, error) {
	var out T
	err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := get[T](tx, bucket, key)
		if errors.Is(err, errMissing) {
			return domain.NewError(domain.ErrNotFound, "%s %s", what, key)
		}
		out = v
		return err
	})
	return out, err
}

// insert stores value under key and fails when the key is taken.
func insert[T any](s *Store, bucket []byte, key, what string, value T) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if exists(tx, bucket, key) {
			return domain.NewError(domain.ErrAlreadyExists, "%s %s", what, key)
		}
		return put(tx, bucket, key, value)
	})
}

// replace overwrites key when the stored version equals the caller's, and
// bumps the version of the written record.
func replace[T any](s *Store, bucket []byte, key, what string, value T, version func(*T) *int64) (T, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		cur, err := get[T](tx, bucket, key)
		if errors.Is(err, errMissing) {
			return domain.NewError(domain.ErrNotFound, "%s %s", what, key)
		}
		if err != nil {
			return err
		}
		if *version(&cur) != *version(&value) {
			return domain.ErrVersionConflict
		}
		*version(&value)++
		return put(tx, bucket, key, value)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// scan decodes every record in bucket that keep accepts.
func scan[T any](s *Store, bucket []byte, prefix string, keep func(T) bool) ([]T, error) {
	var out []T
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
			}
			if keep == nil || keep(item) {
				out = append(out, item)
			}
		}
		return nil
	})
	return out, err
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
