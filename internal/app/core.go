package app

import (
	"time"

	"go.uber.org/zap"
)

const defaultPageSize = 50

// env is the state shared by every service.
type env struct {
	repos    Repositories
	log      *zap.Logger
	now      func() time.Time
	locks    *keyedLocker
	feed     *GradingFeed
	pageSize int
	workers  int
}

// Option customises the core at construction.
type Option func(*env)

// WithClock replaces time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *env) { e.now = now }
}

// WithPageSize sets how many records a lazy listing fetches per round trip.
func WithPageSize(n int) Option {
	return func(e *env) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithGradingWorkers bounds the concurrency of BulkGrade.
func WithGradingWorkers(n int) Option {
	return func(e *env) {
		if n > 0 {
			e.workers = n
		}
	}
}

// Core exposes the command and query surface consumed by the presentation layer.
type Core struct {
	Identity      *IdentityService
	Tenants       *TenantService
	Catalog       *CatalogService
	Assessments   *AssessmentService
	Submissions   *SubmissionService
	Notifications *NotificationService
	Stats         *StatsService
	Feed          *GradingFeed
}

// New wires the services over repos.
func New(repos Repositories, log *zap.Logger, opts ...Option) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	e := &env{
		repos:    repos,
		log:      log,
		now:      time.Now,
		locks:    newKeyedLocker(),
		feed:     NewGradingFeed(),
		pageSize: defaultPageSize,
		workers:  4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return &Core{
		Identity:      &IdentityService{env: e},
		Tenants:       &TenantService{env: e},
		Catalog:       &CatalogService{env: e},
		Assessments:   &AssessmentService{env: e},
		Submissions:   &SubmissionService{env: e},
		Notifications: &NotificationService{env: e},
		Stats:         &StatsService{env: e},
		Feed:          e.feed,
	}
}
