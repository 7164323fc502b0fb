package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// AutoCollectJobParams configure the daily collection sweep.
type AutoCollectJobParams struct {
	Logger  *logger.Logger
	Buckets autoCollector
	Now     func() time.Time
}

type autoCollector interface {
	ListAutoCollectCandidates(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	AutoCollect(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// NewAutoCollectJob builds the sweep that closes completed virtual-only buckets
// once their target date has passed.
func NewAutoCollectJob(params AutoCollectJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Buckets == nil {
		return nil, fmt.Errorf("bucket service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &autoCollectJob{
		logg:    params.Logger,
		buckets: params.Buckets,
		now:     now,
	}, nil
}

type autoCollectJob struct {
	logg    *logger.Logger
	buckets autoCollector
	now     func() time.Time
}

func (j *autoCollectJob) Name() string { return "bucket-auto-collect" }

// Run visits every candidate even when some fail; failures are combined into
// the returned error.
func (j *autoCollectJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	ids, err := j.buckets.ListAutoCollectCandidates(ctx, now)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}

	var (
		errs      error
		collected int
		skipped   int
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		bucketCtx := j.logg.WithBucketID(ctx, id.String())
		ok, err := j.buckets.AutoCollect(bucketCtx, id, now)
		if err != nil {
			j.logg.Error(bucketCtx, "auto-collect failed", err)
			errs = multierr.Append(errs, fmt.Errorf("bucket %s: %w", id, err))
			continue
		}
		if !ok {
			skipped++
			continue
		}
		collected++
		j.logg.Info(bucketCtx, "bucket auto-collected")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(ids),
		"collected":  collected,
		"skipped":    skipped,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "auto-collect sweep complete")
	return errs
}
