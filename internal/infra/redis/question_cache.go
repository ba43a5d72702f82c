package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/metrics"
)

// QuestionCache caches questions of another QuestionRepository in Redis and
// falls back to it on a miss. Each question is stored as JSON at
// question:{id}. Writes go through and drop the cached key.
type QuestionCache struct {
	app.QuestionRepository
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, next app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionRepository: next,
		client:             client,
		ttl:                ttl,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionCache) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	if q, ok := r.cached(ctx, id); ok {
		metrics.CacheLookups.WithLabelValues("redis", "hit").Inc()
		return q, nil
	}
	metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if q, ok := r.cached(ctx, id); ok {
			return q, nil
		}
		q, err := r.QuestionRepository.GetQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		if data, err := json.Marshal(q); err == nil {
			_ = r.client.Set(ctx, r.key(id), data, r.ttlWithJitter()).Err()
		}
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	updated, err := r.QuestionRepository.UpdateQuestion(ctx, q)
	if delErr := r.Invalidate(ctx, q.ID); delErr != nil && err == nil {
		return updated, delErr
	}
	return updated, err
}

// Invalidate drops the cached copy of id.
func (r *QuestionCache) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *QuestionCache) cached(ctx context.Context, id string) (domain.Question, bool) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheLookups.WithLabelValues("redis", "error").Inc()
		}
		return domain.Question{}, false
	}
	var q domain.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Question{}, false
	}
	return q, true
}

func (r *QuestionCache) key(id string) string {
	return "question:" + id
}

func (r *QuestionCache) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
