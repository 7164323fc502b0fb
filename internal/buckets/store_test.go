package buckets

import (
	"context"
	"testing"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/pkg/db"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type ledgerBucket = ledger.Bucket

func ledgerMember(uid string) ledger.Member {
	return ledger.Member{UID: uid, Email: uid + "@example.com", DisplayName: uid, Role: enums.MemberRoleMember}
}

func detailMap(t *testing.T, typed *pkgerrors.Error) map[string]any {
	t.Helper()
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok, "expected map details, got %T", typed.Details())
	return details
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

// conflictingRepo reports a version conflict for the first n saves.
type conflictingRepo struct {
	Repository
	remaining *int
}

func (r conflictingRepo) WithTx(tx *gorm.DB) Repository {
	return conflictingRepo{Repository: r.Repository.WithTx(tx), remaining: r.remaining}
}

func (r conflictingRepo) Save(ctx context.Context, bucket *ledger.Bucket) error {
	if *r.remaining > 0 {
		*r.remaining--
		return ErrVersionConflict
	}
	return r.Repository.Save(ctx, bucket)
}

func seedBucket(t *testing.T, repo Repository) *ledger.Bucket {
	t.Helper()
	bucket, err := ledger.NewBucket(ledger.NewBucketParams{
		Owner:      ledgerMember("uid-owner"),
		Name:       "Trip",
		GoalAmount: decimal.RequireFromString("100"),
		Now:        testNow,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), bucket))
	return bucket
}

func TestRepositorySaveDetectsStaleVersion(t *testing.T) {
	conn := setupBucketsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	bucket := seedBucket(t, repo)
	assert.Equal(t, int64(1), bucket.Version)

	first, err := repo.FindByID(ctx, bucket.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, bucket.ID)
	require.NoError(t, err)

	_, err = first.AddVirtualContribution(ledger.Allocation{ContributorUID: "uid-owner", Amount: decimal.RequireFromString("10"), Now: testNow})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	_, err = second.AddVirtualContribution(ledger.Allocation{ContributorUID: "uid-owner", Amount: decimal.RequireFromString("20"), Now: testNow})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, second), ErrVersionConflict)

	stored, err := repo.FindByID(ctx, bucket.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.Equal(decimal.RequireFromString("10")))
	assert.Len(t, stored.Contributions, 1)
}

func TestStoreMutateRetriesOnConflict(t *testing.T) {
	conn := setupBucketsTestDB(t)
	base := NewRepository(conn)
	bucket := seedBucket(t, base)

	remaining := 2
	reg := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(reg)
	store, err := NewStore(StoreParams{
		Tx:      db.NewFromConn(conn),
		Repo:    conflictingRepo{Repository: base, remaining: &remaining},
		Metrics: ledgerMetrics,
	})
	require.NoError(t, err)

	calls := 0
	updated, err := store.Mutate(context.Background(), bucket.ID, func(b *ledger.Bucket) (bool, error) {
		calls++
		_, err := b.AddVirtualContribution(ledger.Allocation{ContributorUID: "uid-owner", Amount: decimal.RequireFromString("5"), Now: testNow})
		return true, err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, updated.Contributions, 1)
	assert.Equal(t, 2.0, counterValue(t, reg, "bucket_version_conflicts_total"))
}

func TestStoreMutateGivesUpAfterMaxAttempts(t *testing.T) {
	conn := setupBucketsTestDB(t)
	base := NewRepository(conn)
	bucket := seedBucket(t, base)

	remaining := 10
	store, err := NewStore(StoreParams{
		Tx:          db.NewFromConn(conn),
		Repo:        conflictingRepo{Repository: base, remaining: &remaining},
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	_, err = store.Mutate(context.Background(), bucket.ID, func(b *ledger.Bucket) (bool, error) {
		return true, nil
	})
	requireCode(t, err, pkgerrors.CodeConflict)
	assert.Equal(t, 7, remaining)
}

func TestStoreMutateSkipsSaveWhenUnchanged(t *testing.T) {
	conn := setupBucketsTestDB(t)
	base := NewRepository(conn)
	bucket := seedBucket(t, base)

	store, err := NewStore(StoreParams{Tx: db.NewFromConn(conn), Repo: base})
	require.NoError(t, err)

	got, err := store.Mutate(context.Background(), bucket.ID, func(b *ledger.Bucket) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	_, err = store.Mutate(context.Background(), uuid.New(), func(b *ledger.Bucket) (bool, error) {
		return true, nil
	})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestRepositoryPaymentRefIndex(t *testing.T) {
	conn := setupBucketsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	bucket := seedBucket(t, repo)

	_, err := bucket.AddPendingContribution(ledger.Allocation{ContributorUID: "uid-owner", Amount: decimal.RequireFromString("12.50"), Now: testNow}, "pi_abc")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, bucket))

	id, err := repo.FindBucketIDByPaymentRef(ctx, "pi_abc")
	require.NoError(t, err)
	assert.Equal(t, bucket.ID, id)

	_, err = repo.FindBucketIDByPaymentRef(ctx, "pi_missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	stored, err := repo.FindByID(ctx, bucket.ID)
	require.NoError(t, err)
	c, ok := stored.FindContribution("pi_abc")
	require.True(t, ok)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, stored.PendingAmount.Equal(decimal.RequireFromString("12.50")))
}
