package buckets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/internal/notifications"
	"github.com/bucketshare/bucketshare-backend/internal/payments"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type profileProvider interface {
	EnsureProfile(ctx context.Context, uid, email string) (*models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, n notifications.Notification)
}

// Service exposes bucket lifecycle operations.
type Service interface {
	Create(ctx context.Context, actor Actor, input CreateInput) (*BucketDTO, error)
	Get(ctx context.Context, actor Actor, id uuid.UUID) (*BucketDTO, error)
	List(ctx context.Context, actor Actor) ([]BucketDTO, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
	SetCollector(ctx context.Context, actor Actor, id uuid.UUID, collectorUID string) (*BucketDTO, error)
	Allocate(ctx context.Context, actor Actor, id uuid.UUID, input AllocateInput) (*AllocationResult, error)
	Collect(ctx context.Context, actor Actor, id uuid.UUID) (*BucketDTO, error)
	ListAutoCollectCandidates(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	AutoCollect(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type ServiceParams struct {
	Tx        txRunner
	Repo      Repository
	Store     *Store
	Users     profileProvider
	Processor payments.Processor
	Notifier  notifier
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	AllowACH  bool
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	repo      Repository
	store     *Store
	users     profileProvider
	processor payments.Processor
	notifier  notifier
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	allowACH  bool
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bucket repository required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bucket store required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users service required")
	}
	if params.AllowACH && params.Processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment processor required when ach is enabled")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		store:     params.Store,
		users:     params.Users,
		processor: params.Processor,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		logg:      params.Logger,
		allowACH:  params.AllowACH,
		now:       now,
	}, nil
}

// Create enforces the tier gate and persists a new bucket owned by the caller.
func (s *service) Create(ctx context.Context, actor Actor, input CreateInput) (*BucketDTO, error) {
	owner, err := s.users.EnsureProfile(ctx, actor.UID, actor.Email)
	if err != nil {
		return nil, err
	}
	if input.TargetDate != nil {
		utc := input.TargetDate.UTC()
		input.TargetDate = &utc
	}

	bucket, err := ledger.NewBucket(ledger.NewBucketParams{
		Owner: ledger.Member{
			UID:         owner.UID,
			Email:       owner.Email,
			DisplayName: owner.DisplayName,
		},
		Name:        input.Name,
		Description: input.Description,
		GoalAmount:  input.GoalAmount,
		TargetDate:  input.TargetDate,
		Now:         s.now(),
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockOwner(ctx, owner.UID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock owner profile")
		}
		if limit := locked.Tier.OpenBucketLimit(); limit > 0 {
			open, err := repo.CountOpenByOwner(ctx, owner.UID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open buckets")
			}
			if open >= int64(limit) {
				return pkgerrors.New(pkgerrors.CodeTierLimitReached, "upgrade to create more buckets").
					WithDetails(map[string]any{"tier": locked.Tier, "limit": limit})
			}
		}
		if err := repo.Create(ctx, bucket); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create bucket")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewBucketDTO(bucket), nil
}

func (s *service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*BucketDTO, error) {
	bucket, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !bucket.IsMember(actor.UID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
	}
	return NewBucketDTO(bucket), nil
}

func (s *service) List(ctx context.Context, actor Actor) ([]BucketDTO, error) {
	if actor.UID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListForUser(ctx, actor.UID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buckets")
	}
	out := make([]BucketDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewBucketDTO(&rows[i]))
	}
	return out, nil
}

// Delete removes a bucket. Buckets holding in-flight or uncollected processor funds cannot be deleted.
func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bucket, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLoadError(err)
		}
		if actor.UID != bucket.OwnerUID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner can delete a bucket")
		}
		if err := checkDeletable(bucket); err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return asDependency(err, "delete bucket")
		}
		return nil
	})
}

func (s *service) SetCollector(ctx context.Context, actor Actor, id uuid.UUID, collectorUID string) (*BucketDTO, error) {
	bucket, err := s.store.Mutate(ctx, id, func(b *ledger.Bucket) (bool, error) {
		if err := b.SetCollector(actor.UID, collectorUID, s.now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return NewBucketDTO(bucket), nil
}

// Allocate records a contribution. Virtual contributions settle immediately;
// ACH contributions are debited first and recorded as pending.
func (s *service) Allocate(ctx context.Context, actor Actor, id uuid.UUID, input AllocateInput) (*AllocationResult, error) {
	method := input.Method
	if method == "" {
		method = enums.ContributionMethodVirtual
		if s.allowACH {
			method = enums.ContributionMethodACH
		}
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid contribution method").
			WithDetails(map[string]any{"method": method})
	}
	if method == enums.ContributionMethodACH && !s.allowACH {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ach contributions are disabled")
	}

	contributor, err := s.users.EnsureProfile(ctx, actor.UID, actor.Email)
	if err != nil {
		return nil, err
	}
	bucket, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bucket.CheckAllocatable(actor.UID, input.Amount, contributor.TransactionLimit); err != nil {
		return nil, err
	}

	allocation := ledger.Allocation{
		ID:             uuid.New(),
		ContributorUID: actor.UID,
		Amount:         input.Amount,
		Limit:          contributor.TransactionLimit,
	}
	if method == enums.ContributionMethodVirtual {
		return s.allocateVirtual(ctx, id, allocation)
	}

	if !contributor.HasFunding() {
		return nil, pkgerrors.New(pkgerrors.CodeFundingNotConfigured, "link a bank account before contributing")
	}
	return s.allocateACH(ctx, id, contributor, allocation)
}

func (s *service) allocateVirtual(ctx context.Context, id uuid.UUID, allocation ledger.Allocation) (*AllocationResult, error) {
	var (
		contribution *ledger.Contribution
		completed    bool
	)
	bucket, err := s.store.Mutate(ctx, id, func(b *ledger.Bucket) (bool, error) {
		before := b.Status
		allocation.Now = s.now()
		c, err := b.AddVirtualContribution(allocation)
		if err != nil {
			return false, err
		}
		contribution = c
		completed = before != enums.BucketStatusCompleted && b.Status == enums.BucketStatusCompleted
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if completed {
		s.notifyMembers(ctx, bucket, notifications.TypeBucketCompleted, nil)
	}
	return &AllocationResult{Bucket: NewBucketDTO(bucket), Contribution: NewContributionDTO(contribution)}, nil
}

func (s *service) allocateACH(ctx context.Context, id uuid.UUID, contributor *models.User, allocation ledger.Allocation) (*AllocationResult, error) {
	debit, err := s.processor.Debit(ctx, payments.DebitRequest{
		IdempotencyKey:  "contribution-" + allocation.ID.String(),
		Amount:          allocation.Amount,
		CustomerID:      *contributor.StripeCustomerID,
		PaymentMethodID: *contributor.ACHPaymentMethodID,
		BucketID:        id,
		ContributionID:  allocation.ID,
		ContributorUID:  contributor.UID,
	})
	if err != nil {
		return nil, err
	}

	var (
		contribution *ledger.Contribution
		completed    bool
	)
	bucket, err := s.store.Mutate(ctx, id, func(b *ledger.Bucket) (bool, error) {
		before := b.Status
		now := s.now()
		allocation.Now = now
		c, err := b.AddPendingContribution(allocation, debit.Ref)
		if err != nil {
			return false, err
		}
		if debit.Status == enums.PaymentStatusSucceeded {
			if _, err := b.SettleSucceeded(debit.Ref, now); err != nil {
				return false, err
			}
		}
		contribution = c
		completed = before != enums.BucketStatusCompleted && b.Status == enums.BucketStatusCompleted
		return true, nil
	})
	if err != nil {
		s.cancelDebit(ctx, id, debit.Ref, err)
		return nil, err
	}
	if completed {
		s.notifyMembers(ctx, bucket, notifications.TypeBucketCompleted, nil)
	}
	return &AllocationResult{Bucket: NewBucketDTO(bucket), Contribution: NewContributionDTO(contribution)}, nil
}

// cancelDebit voids a debit whose contribution could not be recorded.
func (s *service) cancelDebit(ctx context.Context, bucketID uuid.UUID, ref string, cause error) {
	cancelErr := s.processor.CancelDebit(context.WithoutCancel(ctx), ref)
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithBucketID(ctx, bucketID.String())
	logCtx = s.logg.WithPaymentRef(logCtx, ref)
	if cancelErr != nil {
		s.logg.Error(logCtx, "debit accepted but contribution not recorded; cancel failed", errors.Join(cause, cancelErr))
		return
	}
	s.logg.Warn(logCtx, "debit cancelled after contribution write failed: "+cause.Error())
}

// Collect claims the bucket as collected, then pays the settled total to the
// collector. Settlement events that arrive after the claim see a collected
// bucket, so the paid amount can never be reopened and paid again.
func (s *service) Collect(ctx context.Context, actor Actor, id uuid.UUID) (*BucketDTO, error) {
	bucket, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bucket.CheckCollectable(actor.UID); err != nil {
		return nil, err
	}
	var destination string
	if bucket.SettledPaymentBacked() {
		if destination, err = s.payoutDestination(ctx, actor); err != nil {
			return nil, err
		}
	}

	var (
		amount      decimal.Decimal
		needsPayout bool
	)
	claimed, err := s.store.Mutate(ctx, id, func(b *ledger.Bucket) (bool, error) {
		if err := b.CheckCollectable(actor.UID); err != nil {
			return false, err
		}
		amount = b.SettledTotal()
		needsPayout = b.SettledPaymentBacked()
		if err := b.MarkCollected(nil, false, s.now()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if needsPayout {
		if destination == "" {
			s.releaseClaim(ctx, id)
			return nil, pkgerrors.New(pkgerrors.CodePayoutNotConfigured, "set up payouts before collecting")
		}
		if claimed, err = s.payOut(ctx, claimed, amount, destination); err != nil {
			return nil, err
		}
	}

	s.metrics.IncCollection("manual")
	s.notifyMembers(ctx, claimed, notifications.TypeBucketCollected, map[string]any{"amount": amount.StringFixed(2)})
	return NewBucketDTO(claimed), nil
}

func (s *service) payoutDestination(ctx context.Context, actor Actor) (string, error) {
	collector, err := s.users.EnsureProfile(ctx, actor.UID, actor.Email)
	if err != nil {
		return "", err
	}
	if !collector.HasPayoutDestination() {
		return "", pkgerrors.New(pkgerrors.CodePayoutNotConfigured, "set up payouts before collecting")
	}
	if s.processor == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured")
	}
	return *collector.ConnectAccountID, nil
}

// payOut transfers amount for a claimed bucket. The idempotency key is tied to
// the claim's version so retries of one claim reuse the same transfer. Only a
// refusal from the processor releases the claim; when the outcome is unknown
// the bucket stays collected for manual review.
func (s *service) payOut(ctx context.Context, claimed *ledger.Bucket, amount decimal.Decimal, destination string) (*ledger.Bucket, error) {
	id := claimed.ID
	logCtx := s.logg.WithBucketID(ctx, id.String())

	ref, err := s.processor.Payout(ctx, payments.PayoutRequest{
		IdempotencyKey: fmt.Sprintf("collect-%s-v%d", id, claimed.Version),
		Amount:         amount,
		DestinationID:  destination,
		BucketID:       id,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeProcessor) {
			s.releaseClaim(ctx, id)
			return nil, err
		}
		s.logg.Error(logCtx, "payout outcome unknown; bucket left collected for review", err)
		return nil, err
	}

	recorded, err := s.store.Mutate(context.WithoutCancel(ctx), id, func(b *ledger.Bucket) (bool, error) {
		return true, b.RecordPayout(ref, s.now())
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "payout_ref", ref), "payout sent but reference not recorded", err)
		claimed.PayoutRef = &ref
		return claimed, nil
	}
	return recorded, nil
}

func (s *service) releaseClaim(ctx context.Context, id uuid.UUID) {
	_, err := s.store.Mutate(context.WithoutCancel(ctx), id, func(b *ledger.Bucket) (bool, error) {
		return true, b.ReleaseCollection(s.now())
	})
	if err != nil {
		s.logg.Error(s.logg.WithBucketID(ctx, id.String()), "collection claim not released", err)
	}
}

func (s *service) ListAutoCollectCandidates(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.repo.ListAutoCollectCandidates(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list auto-collect candidates")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, b := range rows {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// AutoCollect closes a virtual-only completed bucket whose target date has passed.
// It reports whether the bucket was collected.
func (s *service) AutoCollect(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	collected := false
	bucket, err := s.store.Mutate(ctx, id, func(b *ledger.Bucket) (bool, error) {
		if !b.AutoCollectEligible(now) {
			return false, nil
		}
		if err := b.MarkCollected(nil, true, now); err != nil {
			return false, err
		}
		collected = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if collected {
		s.metrics.IncCollection("auto")
		s.notifyMembers(ctx, bucket, notifications.TypeBucketCollected, map[string]any{
			"amount": bucket.SettledTotal().StringFixed(2),
			"auto":   true,
		})
	}
	return collected, nil
}

func (s *service) notifyMembers(ctx context.Context, bucket *ledger.Bucket, kind notifications.Type, data map[string]any) {
	if s.notifier == nil || bucket == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["bucket_name"] = bucket.Name
	id := bucket.ID
	s.notifier.Notify(ctx, notifications.Notification{
		Type:       kind,
		Recipients: bucket.MemberUIDs(),
		BucketID:   &id,
		Data:       data,
	})
}
