package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultInterval = 24 * time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronMetrics
	Interval time.Duration
}

// Service runs the registered jobs once per interval while holding the
// cluster-wide lock, so only one worker sweeps at a time.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("cron: logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("cron: lock required")
	case params.Registry == nil:
		return nil, fmt.Errorf("cron: registry required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run executes a cycle immediately and then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.cycle(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopping")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// RunOnce executes the named jobs, or every job when names is empty, under the
// lock. It returns the combined job errors. A held lock is not an error.
func (s *Service) RunOnce(ctx context.Context, names ...string) error {
	jobs, err := s.selectJobs(names)
	if err != nil {
		return err
	}
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron.cycle.skipped_lock_held")
		s.metrics.IncLockSkipped()
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "cron.lock.release_failed", relErr)
		}
	}()

	var errs error
	for _, job := range jobs {
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(jobs)), "cron.cycle.done")
	return errs
}

func (s *Service) cycle(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "cron.cycle.failed", err)
	}
}

func (s *Service) selectJobs(names []string) ([]Job, error) {
	if len(names) == 0 {
		return s.registry.Jobs(), nil
	}
	jobs := make([]Job, 0, len(names))
	for _, name := range names {
		job, ok := s.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	start := time.Now()
	err := job.Run(jobCtx)
	s.metrics.ObserveRun(name, start, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logg.Info(jobCtx, "cron.job.done")
	return nil
}
