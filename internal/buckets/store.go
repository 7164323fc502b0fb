package buckets

import (
	"context"
	"errors"
	"fmt"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultMaxAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MutateFunc applies a state-machine operation to a freshly loaded bucket.
// It reports whether the bucket changed and must be written back.
type MutateFunc func(bucket *ledger.Bucket) (bool, error)

// Store serializes read-modify-write cycles on a single bucket using the
// version column. Conflicting writers reload and retry.
type Store struct {
	tx          txRunner
	repo        Repository
	maxAttempts int
	metrics     *metrics.LedgerMetrics
}

type StoreParams struct {
	Tx          txRunner
	Repo        Repository
	MaxAttempts int
	Metrics     *metrics.LedgerMetrics
}

func NewStore(params StoreParams) (*Store, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("bucket repository required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Store{
		tx:          params.Tx,
		repo:        params.Repo,
		maxAttempts: attempts,
		metrics:     params.Metrics,
	}, nil
}

// Mutate loads the bucket, applies fn and saves it atomically. fn may run more
// than once, so it must not call external services.
func (s *Store) Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*ledger.Bucket, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		var result *ledger.Bucket
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			bucket, err := repo.FindByID(ctx, id)
			if err != nil {
				return mapLoadError(err)
			}
			changed, err := fn(bucket)
			if err != nil {
				return err
			}
			if changed {
				if err := repo.Save(ctx, bucket); err != nil {
					return err
				}
			}
			result = bucket
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, asDependency(err, "save bucket")
		}
		s.metrics.IncVersionConflict()
		lastErr = err
		if err := ctx.Err(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bucket mutation cancelled")
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "bucket was modified concurrently, please retry")
}

// Load reads a bucket outside any transaction.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*ledger.Bucket, error) {
	bucket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return bucket, nil
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "bucket not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bucket")
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
