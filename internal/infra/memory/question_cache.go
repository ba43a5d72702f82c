package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/metrics"
)

// QuestionCache caches GetQuestion lookups of another QuestionRepository with
// a TTL. Writes go straight through and drop the cached entry.
type QuestionCache struct {
	app.QuestionRepository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCache(next app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionRepository: next,
		ttl:                ttl,
		clock:              time.Now,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:              make(map[string]cachedQuestion),
	}
}

func (c *QuestionCache) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	if q, ok := c.lookup(id); ok {
		metrics.CacheLookups.WithLabelValues("memory", "hit").Inc()
		return q, nil
	}
	metrics.CacheLookups.WithLabelValues("memory", "miss").Inc()

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if q, ok := c.lookup(id); ok {
			return q, nil
		}
		q, err := c.QuestionRepository.GetQuestion(ctx, id)
		if err != nil {
			return domain.Question{}, err
		}
		c.mu.Lock()
		// rnd is guarded by mu
		c.cache[id] = cachedQuestion{question: q, expiresAt: c.clock().Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return cloneQuestion(result.(domain.Question)), nil
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	c.Invalidate(q.ID)
	updated, err := c.QuestionRepository.UpdateQuestion(ctx, q)
	c.Invalidate(q.ID)
	return updated, err
}

// Invalidate drops the cached copy of id.
func (c *QuestionCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

func (c *QuestionCache) lookup(id string) (domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Question{}, false
	}
	return cloneQuestion(entry.question), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
