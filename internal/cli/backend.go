package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/config"
	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/infra/bolt"
	"skillyhead-service/internal/infra/memory"
	"skillyhead-service/internal/infra/postgres"
	redisinfra "skillyhead-service/internal/infra/redis"
)

// backend is the storage assembled from config: a primary store for tenant
// records, optionally Postgres for the catalog and submissions, and Redis for
// sessions, the question cache and the grading relay.
type backend struct {
	repos   app.Repositories
	redis   *redis.Client
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}
	sessionTTL := config.TTLDuration(cfg.Redis.SessionTTL, 12*time.Hour)
	fail := func(err error) (*backend, error) {
		b.Close()
		return nil, err
	}

	switch cfg.Storage.Driver {
	case config.DriverBolt:
		store, err := bolt.Open(cfg.Bolt.Path)
		if err != nil {
			return fail(fmt.Errorf("open bolt store: %w", err))
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.repos = store.Repositories()
		b.repos.Sessions = store.Sessions(sessionTTL)
		log.Info("using bolt storage", zap.String("path", cfg.Bolt.Path))
	default:
		b.repos = memory.NewStore().Repositories()
		b.repos.Sessions = memory.NewSessionStore(sessionTTL)
		log.Warn("using in-memory storage; data is lost on restart")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		b.closers = append(b.closers, pool.Close)
		b.repos.Questions = postgres.NewQuestionRepository(pool)
		b.repos.Submissions = postgres.NewSubmissionRepository(pool)
		log.Info("catalog and submissions on postgres")
	}

	cacheTTL := config.TTLDuration(cfg.Catalog.CacheTTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		b.repos.Questions = redisinfra.NewQuestionCache(b.redis, b.repos.Questions, cacheTTL)
		b.repos.Sessions = redisinfra.NewSessionStore(b.redis, sessionTTL)
		log.Info("sessions and question cache on redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		b.repos.Questions = memory.NewQuestionCache(b.repos.Questions, cacheTTL)
	}
	return b, nil
}

// systemIdentity is the principal used by operator commands and jobs.
var systemIdentity = domain.Identity{SessionID: "system", UserID: "system", Role: domain.RoleAdmin}
