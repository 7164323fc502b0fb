package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

const (
	defaultRetentionDays  = 90
	defaultPurgeBatchSize = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type deadLetterPurger interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

type DeadLetterRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository deadLetterPurger
	// Retention is in days; BatchSize caps the rows removed per transaction.
	Retention int
	BatchSize int
}

// NewDeadLetterRetentionJob purges settlement dead letters once operators have
// had the retention window to look at them.
func NewDeadLetterRetentionJob(params DeadLetterRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("dead letter repository required")
	}
	job := &deadLetterRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultRetentionDays
	}
	if job.batch <= 0 {
		job.batch = defaultPurgeBatchSize
	}
	return job, nil
}

type deadLetterRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      deadLetterPurger
	retention int
	batch     int
	now       func() time.Time
}

func (j *deadLetterRetentionJob) Name() string { return "settlement-dead-letter-retention" }

// Run deletes in short transactions so a large backlog never holds one long lock.
func (j *deadLetterRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dead letter retention interrupted after %d rows: %w", total, err)
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.PurgeBefore(ctx, tx, cutoff, j.batch)
			deleted = n
			return err
		})
		if err != nil {
			return fmt.Errorf("dead letter retention batch %d: %w", batches+1, err)
		}
		total += deleted
		batches++
		if deleted < int64(j.batch) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   total,
		"batches":        batches,
	}), "dead letter retention complete")
	return nil
}
