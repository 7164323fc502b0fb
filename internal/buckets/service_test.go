package buckets

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bucketshare/bucketshare-backend/internal/notifications"
	"github.com/bucketshare/bucketshare-backend/internal/payments"
	"github.com/bucketshare/bucketshare-backend/internal/users"
	"github.com/bucketshare/bucketshare-backend/pkg/db"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeProcessor struct {
	mu          sync.Mutex
	debitStatus enums.PaymentStatus
	debits      []payments.DebitRequest
	cancelled   []string
	payouts     []payments.PayoutRequest
	payoutErr   error
	onDebit     func()
	onPayout    func()
	seq         int
}

func (f *fakeProcessor) Debit(ctx context.Context, req payments.DebitRequest) (*payments.DebitResult, error) {
	f.mu.Lock()
	f.seq++
	ref := fmt.Sprintf("pi_%d", f.seq)
	f.debits = append(f.debits, req)
	status := f.debitStatus
	hook := f.onDebit
	f.mu.Unlock()
	if status == "" {
		status = enums.PaymentStatusPending
	}
	if hook != nil {
		hook()
	}
	return &payments.DebitResult{Ref: ref, Status: status}, nil
}

func (f *fakeProcessor) CancelDebit(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, ref)
	return nil
}

func (f *fakeProcessor) Payout(ctx context.Context, req payments.PayoutRequest) (string, error) {
	f.mu.Lock()
	f.payouts = append(f.payouts, req)
	hook, err := f.onPayout, f.payoutErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return "tr_" + req.BucketID.String()[:8], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) types() []notifications.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.Type, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

type testEnv struct {
	svc       Service
	repo      Repository
	store     *Store
	users     *users.Repository
	processor *fakeProcessor
	notifier  *recordingNotifier
}

func setupBucketsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func newTestEnv(t *testing.T, allowACH bool) *testEnv {
	t.Helper()

	conn := setupBucketsTestDB(t)
	client := db.NewFromConn(conn)
	repo := NewRepository(conn)
	store, err := NewStore(StoreParams{Tx: client, Repo: repo})
	require.NoError(t, err)

	usersRepo := users.NewRepository(conn)
	usersSvc, err := users.NewService(users.ServiceParams{Repo: usersRepo})
	require.NoError(t, err)

	processor := &fakeProcessor{}
	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{
		Tx:        client,
		Repo:      repo,
		Store:     store,
		Users:     usersSvc,
		Processor: processor,
		Notifier:  notifier,
		AllowACH:  allowACH,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)

	return &testEnv{
		svc:       svc,
		repo:      repo,
		store:     store,
		users:     usersRepo,
		processor: processor,
		notifier:  notifier,
	}
}

func (e *testEnv) createBucket(t *testing.T, owner Actor, goal string) *BucketDTO {
	t.Helper()
	dto, err := e.svc.Create(context.Background(), owner, CreateInput{
		Name:       "Trip",
		GoalAmount: decimal.RequireFromString(goal),
	})
	require.NoError(t, err)
	return dto
}

func (e *testEnv) linkFunding(t *testing.T, uid string) {
	t.Helper()
	require.NoError(t, e.users.Update(context.Background(), uid, map[string]any{
		"stripe_customer_id":    "cus_" + uid,
		"ach_payment_method_id": "pm_" + uid,
	}))
}

func (e *testEnv) enablePayouts(t *testing.T, uid string) {
	t.Helper()
	require.NoError(t, e.users.Update(context.Background(), uid, map[string]any{
		"connect_account_id":      "acct_" + uid,
		"connect_payouts_enabled": true,
	}))
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
	return typed
}

var (
	ana = Actor{UID: "uid-ana", Email: "ana@example.com"}
	ben = Actor{UID: "uid-ben", Email: "ben@example.com"}
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error creating service without dependencies")
	}
}

func TestCreateEnforcesTierGate(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.createBucket(t, ana, "100")

	_, err := env.svc.Create(ctx, ana, CreateInput{Name: "Second", GoalAmount: decimal.RequireFromString("50")})
	typed := requireCode(t, err, pkgerrors.CodeTierLimitReached)
	assert.Equal(t, 1, detailMap(t, typed)["limit"])

	require.NoError(t, env.users.Update(ctx, ana.UID, map[string]any{"tier": enums.TierPlus}))
	_, err = env.svc.Create(ctx, ana, CreateInput{Name: "Second", GoalAmount: decimal.RequireFromString("50")})
	require.NoError(t, err)
}

func TestCreateGateIgnoresCollectedBuckets(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	bucket := env.createBucket(t, ana, "10")
	_, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("10")})
	require.NoError(t, err)
	_, err = env.svc.Collect(ctx, ana, bucket.ID)
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, ana, CreateInput{Name: "Next", GoalAmount: decimal.RequireFromString("20")})
	require.NoError(t, err)
}

func TestGetRequiresMembership(t *testing.T) {
	env := newTestEnv(t, false)
	bucket := env.createBucket(t, ana, "100")

	_, err := env.svc.Get(context.Background(), ben, bucket.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = env.svc.Get(context.Background(), ana, uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestListIncludesMemberBuckets(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	bucket := env.createBucket(t, ana, "100")
	_, err := env.store.Mutate(ctx, bucket.ID, func(b *ledgerBucket) (bool, error) {
		return true, b.AddMember(ledgerMember(ben.UID), testNow)
	})
	require.NoError(t, err)

	list, err := env.svc.List(ctx, ben)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bucket.ID, list[0].ID)
	assert.ElementsMatch(t, []string{ana.UID, ben.UID}, list[0].MemberUIDs)
}

func TestAllocateVirtualCompletesBucket(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "40")

	res, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("40")})
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCompleted, res.Bucket.Status)
	assert.True(t, res.Bucket.CurrentAmount.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, enums.ContributionMethodVirtual, res.Contribution.Method)
	assert.Equal(t, []notifications.Type{notifications.TypeBucketCompleted}, env.notifier.types())
	assert.Empty(t, env.processor.debits)
}

func TestAllocateRejectsACHWhenDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	bucket := env.createBucket(t, ana, "40")

	_, err := env.svc.Allocate(context.Background(), ana, bucket.ID, AllocateInput{
		Amount: decimal.RequireFromString("5"),
		Method: enums.ContributionMethodACH,
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAllocateEnforcesTransactionLimit(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "400")
	require.NoError(t, env.users.Update(ctx, ana.UID, map[string]any{"transaction_limit": decimal.RequireFromString("25")}))

	_, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("25.01")})
	typed := requireCode(t, err, pkgerrors.CodeLimitExceeded)
	assert.Equal(t, "25.00", detailMap(t, typed)["limit"])
}

func TestAllocateACHRequiresFunding(t *testing.T) {
	env := newTestEnv(t, true)
	bucket := env.createBucket(t, ana, "40")

	_, err := env.svc.Allocate(context.Background(), ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("5")})
	requireCode(t, err, pkgerrors.CodeFundingNotConfigured)
	assert.Empty(t, env.processor.debits)
}

func TestAllocateACHRecordsPendingAndBlocksCollect(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "40")
	env.linkFunding(t, ana.UID)

	res, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("40")})
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusActive, res.Bucket.Status)
	assert.True(t, res.Bucket.PendingAmount.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, enums.PaymentStatusPending, res.Contribution.PaymentStatus)

	require.Len(t, env.processor.debits, 1)
	debit := env.processor.debits[0]
	assert.Equal(t, "contribution-"+res.Contribution.ID.String(), debit.IdempotencyKey)
	assert.Equal(t, "cus_"+ana.UID, debit.CustomerID)

	refBucket, err := env.repo.FindBucketIDByPaymentRef(ctx, res.Contribution.PaymentRef)
	require.NoError(t, err)
	assert.Equal(t, bucket.ID, refBucket)

	_, err = env.svc.Collect(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodeNotYetComplete)
}

func TestCollectBlockedWhileSettling(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "50")
	env.linkFunding(t, ana.UID)

	pending, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("30"), Method: enums.ContributionMethodACH})
	require.NoError(t, err)
	res, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("50"), Method: enums.ContributionMethodVirtual})
	require.NoError(t, err)
	require.Equal(t, enums.BucketStatusCompleted, res.Bucket.Status)

	_, err = env.svc.Collect(ctx, ana, bucket.ID)
	typed := requireCode(t, err, pkgerrors.CodeSettlementPending)
	assert.Equal(t, 1, detailMap(t, typed)["pending_count"])
	assert.Equal(t, "30.00", detailMap(t, typed)["pending_amount"])
	assert.Empty(t, env.processor.payouts)

	_, err = env.store.Mutate(ctx, bucket.ID, func(b *ledgerBucket) (bool, error) {
		outcome, err := b.SettleFailed(pending.Contribution.PaymentRef, "", testNow)
		return outcome.Changed(), err
	})
	require.NoError(t, err)

	collected, err := env.svc.Collect(ctx, ana, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCollected, collected.Status)
	assert.Empty(t, env.processor.payouts, "failed debits leave only virtual funds")
}

func TestCollectPaysOutSettledTotal(t *testing.T) {
	env := newTestEnv(t, true)
	env.processor.debitStatus = enums.PaymentStatusSucceeded
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "40")
	env.linkFunding(t, ana.UID)

	res, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("40")})
	require.NoError(t, err)
	require.Equal(t, enums.BucketStatusCompleted, res.Bucket.Status)

	_, err = env.svc.Collect(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodePayoutNotConfigured)
	assert.Empty(t, env.processor.payouts)

	env.enablePayouts(t, ana.UID)
	collected, err := env.svc.Collect(ctx, ana, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCollected, collected.Status)
	require.NotNil(t, collected.CollectedAt)

	require.Len(t, env.processor.payouts, 1)
	payout := env.processor.payouts[0]
	assert.True(t, payout.Amount.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, "acct_"+ana.UID, payout.DestinationID)

	_, err = env.svc.Collect(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodeBucketAlreadyComplete)
	assert.Contains(t, env.notifier.types(), notifications.TypeBucketCollected)
}

func TestCollectVirtualOnlySkipsPayout(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "15")

	_, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("15")})
	require.NoError(t, err)

	collected, err := env.svc.Collect(ctx, ana, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCollected, collected.Status)
	assert.False(t, collected.AutoCollected)
	assert.Empty(t, env.processor.payouts)
}

func TestCollectRequiresCollector(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "15")

	_, err := env.svc.Collect(ctx, ben, bucket.ID)
	requireCode(t, err, pkgerrors.CodeNotCollector)
}

func TestAllocateCancelsDebitWhenWriteFails(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "40")
	env.linkFunding(t, ana.UID)

	env.processor.onDebit = func() {
		_, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{
			Amount: decimal.RequireFromString("40"),
			Method: enums.ContributionMethodVirtual,
		})
		require.NoError(t, err)
	}

	_, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("10"), Method: enums.ContributionMethodACH})
	requireCode(t, err, pkgerrors.CodeBucketAlreadyComplete)
	assert.Equal(t, []string{"pi_1"}, env.processor.cancelled)

	loaded, err := env.store.Load(ctx, bucket.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Contributions, 1)
}

func TestDeleteRules(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "40")
	env.linkFunding(t, ana.UID)

	requireCode(t, env.svc.Delete(ctx, ben, bucket.ID), pkgerrors.CodeForbidden)

	res, err := env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("10")})
	require.NoError(t, err)
	typed := requireCode(t, env.svc.Delete(ctx, ana, bucket.ID), pkgerrors.CodeSettlementPending)
	assert.Equal(t, 1, detailMap(t, typed)["pending_count"])

	_, err = env.store.Mutate(ctx, bucket.ID, func(b *ledgerBucket) (bool, error) {
		outcome, err := b.SettleFailed(res.Contribution.PaymentRef, "insufficient_funds", testNow)
		return outcome.Changed(), err
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, ana, bucket.ID))
	_, err = env.svc.Get(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestSetCollector(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "40")

	_, err := env.svc.SetCollector(ctx, ana, bucket.ID, ben.UID)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = env.store.Mutate(ctx, bucket.ID, func(b *ledgerBucket) (bool, error) {
		return true, b.AddMember(ledgerMember(ben.UID), testNow)
	})
	require.NoError(t, err)

	_, err = env.svc.SetCollector(ctx, ben, bucket.ID, ben.UID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	updated, err := env.svc.SetCollector(ctx, ana, bucket.ID, ben.UID)
	require.NoError(t, err)
	assert.Equal(t, ben.UID, updated.CollectorUID)
}

func TestAutoCollectSweepsVirtualBuckets(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	past := testNow.Add(-24 * time.Hour)
	bucket, err := env.svc.Create(ctx, ana, CreateInput{Name: "Gift", GoalAmount: decimal.RequireFromString("20"), TargetDate: &past})
	require.NoError(t, err)

	ids, err := env.svc.ListAutoCollectCandidates(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("20")})
	require.NoError(t, err)

	ids, err = env.svc.ListAutoCollectCandidates(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bucket.ID}, ids)

	ok, err := env.svc.AutoCollect(ctx, bucket.ID, testNow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.AutoCollect(ctx, bucket.ID, testNow)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := env.store.Load(ctx, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCollected, loaded.Status)
	assert.True(t, loaded.AutoCollected)
	assert.Nil(t, loaded.PayoutRef)
}

func TestAutoCollectSkipsPaymentBackedBuckets(t *testing.T) {
	env := newTestEnv(t, true)
	env.processor.debitStatus = enums.PaymentStatusSucceeded
	ctx := context.Background()
	past := testNow.Add(-time.Hour)
	bucket, err := env.svc.Create(ctx, ana, CreateInput{Name: "Rent", GoalAmount: decimal.RequireFromString("20"), TargetDate: &past})
	require.NoError(t, err)
	env.linkFunding(t, ana.UID)

	_, err = env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("20")})
	require.NoError(t, err)

	ids, err := env.svc.ListAutoCollectCandidates(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ok, err := env.svc.AutoCollect(ctx, bucket.ID, testNow)
	require.NoError(t, err)
	assert.False(t, ok)
}

func fundedBucket(t *testing.T, env *testEnv, goal string, amounts ...string) (*BucketDTO, []string) {
	t.Helper()
	env.processor.debitStatus = enums.PaymentStatusSucceeded
	bucket := env.createBucket(t, ana, goal)
	env.linkFunding(t, ana.UID)
	env.enablePayouts(t, ana.UID)
	refs := make([]string, 0, len(amounts))
	for _, amount := range amounts {
		res, err := env.svc.Allocate(context.Background(), ana, bucket.ID, AllocateInput{
			Amount: decimal.RequireFromString(amount),
			Method: enums.ContributionMethodACH,
		})
		require.NoError(t, err)
		refs = append(refs, res.Contribution.PaymentRef)
	}
	return bucket, refs
}

func TestCollectDisputeDuringPayoutCannotReopenBucket(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	bucket, refs := fundedBucket(t, env, "500", "300", "200")

	env.processor.onPayout = func() {
		_, err := env.store.Mutate(ctx, bucket.ID, func(b *ledgerBucket) (bool, error) {
			outcome, err := b.Reverse(refs[1], testNow)
			return outcome.Changed(), err
		})
		require.NoError(t, err)
	}

	collected, err := env.svc.Collect(ctx, ana, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCollected, collected.Status)
	assert.True(t, collected.HasReversal, "dispute after the claim goes to manual review")
	require.NotNil(t, collected.PayoutRef)

	env.processor.onPayout = nil
	_, err = env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{
		Amount: decimal.RequireFromString("250"),
		Method: enums.ContributionMethodVirtual,
	})
	requireCode(t, err, pkgerrors.CodeBucketAlreadyComplete)
	_, err = env.svc.Collect(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodeBucketAlreadyComplete)

	require.Len(t, env.processor.payouts, 1)
	assert.True(t, env.processor.payouts[0].Amount.Equal(decimal.RequireFromString("500")))
}

func TestCollectRefusedPayoutReleasesClaim(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	bucket, _ := fundedBucket(t, env, "40", "40")

	env.processor.payoutErr = pkgerrors.New(pkgerrors.CodeProcessor, "destination account restricted")
	_, err := env.svc.Collect(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodeProcessor)

	loaded, err := env.store.Load(ctx, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCompleted, loaded.Status)
	assert.Nil(t, loaded.CollectedAt)

	env.processor.payoutErr = nil
	collected, err := env.svc.Collect(ctx, ana, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCollected, collected.Status)
	require.Len(t, env.processor.payouts, 2)
	assert.NotEqual(t, env.processor.payouts[0].IdempotencyKey, env.processor.payouts[1].IdempotencyKey,
		"a released claim gets a fresh transfer key")
}

func TestCollectUnknownPayoutOutcomeKeepsBucketCollected(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	bucket, _ := fundedBucket(t, env, "40", "40")

	env.processor.payoutErr = pkgerrors.New(pkgerrors.CodeDependency, "processor outcome unknown")
	_, err := env.svc.Collect(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodeDependency)

	loaded, err := env.store.Load(ctx, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCollected, loaded.Status)
	assert.Nil(t, loaded.PayoutRef)

	env.processor.payoutErr = nil
	_, err = env.svc.Collect(ctx, ana, bucket.ID)
	requireCode(t, err, pkgerrors.CodeBucketAlreadyComplete)
	assert.Len(t, env.processor.payouts, 1)
}

func TestConcurrentAllocationsCrossGoalOnce(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	bucket := env.createBucket(t, ana, "100")
	_, err := env.store.Mutate(ctx, bucket.ID, func(b *ledgerBucket) (bool, error) {
		return true, b.AddMember(ledgerMember(ben.UID), testNow)
	})
	require.NoError(t, err)
	_, err = env.svc.Allocate(ctx, ana, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("60")})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i, actor := range []Actor{ana, ben} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = env.svc.Allocate(ctx, actor, bucket.ID, AllocateInput{Amount: decimal.RequireFromString("50")})
		}()
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, pkgerrors.CodeBucketAlreadyComplete)
	}
	assert.Equal(t, 1, succeeded)

	loaded, err := env.store.Load(ctx, bucket.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BucketStatusCompleted, loaded.Status)
	assert.Len(t, loaded.Contributions, 2)
	assert.True(t, loaded.CurrentAmount.Equal(decimal.RequireFromString("110")))
	assert.True(t, loaded.SettledTotal().Equal(loaded.CurrentAmount))
}
