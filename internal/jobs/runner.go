package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"skillyhead-service/internal/observability"
)

type Job func(ctx context.Context) error

// Runner schedules periodic jobs until its context is cancelled.
type Runner struct {
	ctx context.Context
	log *zap.Logger
	wg  sync.WaitGroup
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctx: ctx, log: log}
}

// Every runs fn on each tick of interval. A non-positive interval disables the job.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	if interval <= 0 {
		r.log.Info("job disabled", zap.String("job", name))
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				_ = r.Run(name, fn)
			}
		}
	}()
}

// Run executes fn once and records its outcome.
func (r *Runner) Run(name string, fn Job) error {
	start := time.Now()
	err := fn(r.ctx)
	if err != nil {
		jobErrors.WithLabelValues(name).Inc()
		r.log.Error("job failed", zap.String("job", name), zap.Error(err))
		observability.CaptureWithTags(err, map[string]string{"job": name})
	}
	jobRuns.WithLabelValues(name).Inc()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// Wait blocks until every scheduled job has observed cancellation.
func (r *Runner) Wait() { r.wg.Wait() }
