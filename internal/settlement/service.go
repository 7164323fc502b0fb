package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bucketshare/bucketshare-backend/internal/buckets"
	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/internal/notifications"
	"github.com/bucketshare/bucketshare-backend/internal/payments"
	"github.com/bucketshare/bucketshare-backend/internal/users"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/bucketshare/bucketshare-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const outcomeDeadLetter = "dead_letter"

// PaymentEvent is a processor notification about a single debit.
type PaymentEvent struct {
	ID            string
	Kind          enums.SettlementEventKind
	PaymentRef    string
	BucketHint    uuid.UUID
	FailureReason string
	Payload       json.RawMessage
}

type bucketStore interface {
	Mutate(ctx context.Context, id uuid.UUID, fn buckets.MutateFunc) (*ledger.Bucket, error)
}

type refIndex interface {
	FindBucketIDByPaymentRef(ctx context.Context, paymentRef string) (uuid.UUID, error)
}

type usersRepository interface {
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	FindByConnectAccountID(ctx context.Context, accountID string) (*models.User, error)
	Update(ctx context.Context, uid string, updates map[string]any) error
}

type deadLetterWriter interface {
	Insert(ctx context.Context, entry models.SettlementDeadLetter) error
}

type notifier interface {
	Notify(ctx context.Context, n notifications.Notification)
}

type ServiceParams struct {
	Store       bucketStore
	Refs        refIndex
	Users       usersRepository
	DeadLetters deadLetterWriter
	Notifier    notifier
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// Service reconciles processor events against bucket and profile state.
// Every operation is safe to replay.
type Service struct {
	store       bucketStore
	refs        refIndex
	users       usersRepository
	deadLetters deadLetterWriter
	notifier    notifier
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bucket store required")
	}
	if params.Refs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment ref index required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	if params.DeadLetters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dead letter repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:       params.Store,
		refs:        params.Refs,
		users:       params.Users,
		deadLetters: params.DeadLetters,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// ApplyPayment applies a debit succeeded, debit failed or dispute event.
// An event whose bucket hint resolves but whose contribution is not stored
// yet fails with a conflict so the processor redelivers it. Other events that
// cannot be matched are dead-lettered and reported as ignored.
func (s *Service) ApplyPayment(ctx context.Context, ev PaymentEvent) (ledger.Outcome, error) {
	switch ev.Kind {
	case enums.SettlementEventKindDebitSucceeded,
		enums.SettlementEventKindDebitFailed,
		enums.SettlementEventKindDisputeCreated:
	default:
		return ledger.OutcomeIgnored, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment event").
			WithDetails(map[string]any{"kind": ev.Kind})
	}
	ev.PaymentRef = strings.TrimSpace(ev.PaymentRef)
	if ev.PaymentRef == "" {
		return ledger.OutcomeIgnored, s.RecordDeadLetter(ctx, ev, enums.DeadLetterReasonUnknownPaymentRef, nil, errors.New("payment reference missing"))
	}
	if s.logg != nil {
		ctx = s.logg.WithPaymentRef(ctx, ev.PaymentRef)
	}

	candidates, err := s.candidateBuckets(ctx, ev)
	if err != nil {
		return ledger.OutcomeIgnored, err
	}
	if len(candidates) == 0 {
		return ledger.OutcomeIgnored, s.RecordDeadLetter(ctx, ev, enums.DeadLetterReasonUnknownPaymentRef, nil, nil)
	}

	reason := enums.DeadLetterReasonBucketNotFound
	var (
		lastErr     error
		hintedEarly bool
	)
	for _, bucketID := range candidates {
		outcome, loaded, err := s.apply(ctx, bucketID, ev)
		if err == nil {
			return outcome, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return ledger.OutcomeIgnored, err
		}
		if loaded {
			reason = enums.DeadLetterReasonContributionNotFound
			hintedEarly = hintedEarly || bucketID == ev.BucketHint
		}
		lastErr = err
	}
	if hintedEarly {
		// The event named an existing bucket that has not recorded the payment
		// yet; the pending write may still be in flight.
		if s.logg != nil {
			s.logg.Warn(s.logg.WithBucketID(ctx, ev.BucketHint.String()), "payment event arrived before its contribution; asking for redelivery")
		}
		return ledger.OutcomeIgnored, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "payment not recorded on bucket yet").
			WithDetails(map[string]any{"bucket_id": ev.BucketHint.String(), "payment_ref": ev.PaymentRef})
	}
	id := candidates[len(candidates)-1]
	return ledger.OutcomeIgnored, s.RecordDeadLetter(ctx, ev, reason, &id, lastErr)
}

// candidateBuckets lists the buckets that may hold the payment: the metadata
// hint first, then the payment reference index.
func (s *Service) candidateBuckets(ctx context.Context, ev PaymentEvent) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, 2)
	if ev.BucketHint != uuid.Nil {
		out = append(out, ev.BucketHint)
	}
	indexed, err := s.refs.FindBucketIDByPaymentRef(ctx, ev.PaymentRef)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment reference")
	case indexed != ev.BucketHint:
		out = append(out, indexed)
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, bucketID uuid.UUID, ev PaymentEvent) (ledger.Outcome, bool, error) {
	var (
		outcome = ledger.OutcomeIgnored
		before  enums.BucketStatus
		loaded  bool
	)
	bucket, err := s.store.Mutate(ctx, bucketID, func(b *ledger.Bucket) (bool, error) {
		loaded = true
		before = b.Status
		now := s.now()
		var err error
		switch ev.Kind {
		case enums.SettlementEventKindDebitSucceeded:
			outcome, err = b.SettleSucceeded(ev.PaymentRef, now)
		case enums.SettlementEventKindDebitFailed:
			outcome, err = b.SettleFailed(ev.PaymentRef, ev.FailureReason, now)
		case enums.SettlementEventKindDisputeCreated:
			outcome, err = b.Reverse(ev.PaymentRef, now)
		}
		if err != nil {
			return false, err
		}
		return outcome.Changed(), nil
	})
	if err != nil {
		return ledger.OutcomeIgnored, loaded, err
	}

	s.metrics.IncSettlement(string(ev.Kind), string(outcome))
	if s.logg != nil {
		logCtx := s.logg.WithBucketID(ctx, bucketID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"event_id": ev.ID, "kind": ev.Kind, "outcome": outcome})
		s.logg.Info(logCtx, "settlement event reconciled")
	}
	if outcome != ledger.OutcomeApplied {
		return outcome, true, nil
	}

	switch {
	case ev.Kind == enums.SettlementEventKindDebitSucceeded &&
		before != enums.BucketStatusCompleted && bucket.Status == enums.BucketStatusCompleted:
		s.notify(ctx, bucket, notifications.TypeBucketCompleted, nil)
	case ev.Kind == enums.SettlementEventKindDisputeCreated && bucket.Status == enums.BucketStatusCollected:
		if s.logg != nil {
			s.logg.Warn(s.logg.WithBucketID(ctx, bucketID.String()), "dispute on collected bucket requires manual review")
		}
		s.notify(ctx, bucket, notifications.TypeReversalReview, map[string]any{"payment_ref": ev.PaymentRef})
	}
	return outcome, true, nil
}

// LinkFunding caches the bank account attached to a processor customer.
func (s *Service) LinkFunding(ctx context.Context, eventID, customerID string, bank *payments.BankAccount) error {
	if bank == nil || bank.PaymentMethodID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "bank account is required")
	}
	user, err := s.users.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		return s.unknownUser(ctx, eventID, enums.SettlementEventKindFundingLinked, err)
	}
	if err := s.users.Update(ctx, user.UID, users.FundingUpdates(bank)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store funding instrument")
	}
	s.metrics.IncSettlement(string(enums.SettlementEventKindFundingLinked), string(ledger.OutcomeApplied))
	return nil
}

// UpdatePayoutAccount mirrors the payouts-enabled flag of a connected account.
func (s *Service) UpdatePayoutAccount(ctx context.Context, eventID, accountID string, payoutsEnabled bool) error {
	user, err := s.users.FindByConnectAccountID(ctx, accountID)
	if err != nil {
		return s.unknownUser(ctx, eventID, enums.SettlementEventKindPayoutAccountUpdated, err)
	}
	if user.ConnectPayoutsEnabled == payoutsEnabled {
		s.metrics.IncSettlement(string(enums.SettlementEventKindPayoutAccountUpdated), string(ledger.OutcomeDuplicate))
		return nil
	}
	if err := s.users.Update(ctx, user.UID, map[string]any{"connect_payouts_enabled": payoutsEnabled}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout account")
	}
	s.metrics.IncSettlement(string(enums.SettlementEventKindPayoutAccountUpdated), string(ledger.OutcomeApplied))
	return nil
}

// SetTier records a subscription change for the customer.
func (s *Service) SetTier(ctx context.Context, eventID, customerID string, tier enums.Tier, subscriptionID *string) error {
	if !tier.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid tier").WithDetails(map[string]any{"tier": tier})
	}
	user, err := s.users.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		return s.unknownUser(ctx, eventID, enums.SettlementEventKindTierChanged, err)
	}
	updates := map[string]any{"tier": tier}
	if subscriptionID != nil {
		updates["stripe_subscription_id"] = *subscriptionID
	} else if tier == enums.TierFree {
		updates["stripe_subscription_id"] = nil
	}
	if err := s.users.Update(ctx, user.UID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tier")
	}
	s.metrics.IncSettlement(string(enums.SettlementEventKindTierChanged), string(ledger.OutcomeApplied))
	return nil
}

// RecordDeadLetter stores an event that could not be applied. It only fails
// when the dead letter itself cannot be written.
func (s *Service) RecordDeadLetter(ctx context.Context, ev PaymentEvent, reason enums.DeadLetterReason, bucketID *uuid.UUID, cause error) error {
	entry := models.SettlementDeadLetter{
		EventID:  ev.ID,
		Kind:     ev.Kind,
		BucketID: bucketID,
		Reason:   reason,
		Payload:  ev.Payload,
	}
	if ev.PaymentRef != "" {
		ref := ev.PaymentRef
		entry.PaymentRef = &ref
	}
	if cause != nil {
		msg := cause.Error()
		entry.ErrorMessage = &msg
	}

	s.metrics.IncSettlement(string(ev.Kind), outcomeDeadLetter)
	s.metrics.IncDeadLetter(string(reason))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"event_id": ev.ID, "kind": ev.Kind, "reason": reason})
		s.logg.Error(logCtx, "settlement event dead-lettered", cause)
	}

	if err := s.deadLetters.Insert(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store dead letter")
	}
	return nil
}

func (s *Service) unknownUser(ctx context.Context, eventID string, kind enums.SettlementEventKind, err error) error {
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user profile")
	}
	return s.RecordDeadLetter(ctx, PaymentEvent{ID: eventID, Kind: kind}, enums.DeadLetterReasonUnknownCustomer, nil,
		fmt.Errorf("no profile linked to processor account"))
}

func (s *Service) notify(ctx context.Context, bucket *ledger.Bucket, kind notifications.Type, data map[string]any) {
	if s.notifier == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["bucket_name"] = bucket.Name
	recipients := bucket.MemberUIDs()
	if kind == notifications.TypeReversalReview {
		recipients = []string{bucket.OwnerUID}
		if bucket.CollectorUID != bucket.OwnerUID {
			recipients = append(recipients, bucket.CollectorUID)
		}
		data["current_amount"] = bucket.CurrentAmount.StringFixed(2)
	}
	id := bucket.ID
	s.notifier.Notify(ctx, notifications.Notification{
		Type:       kind,
		Recipients: recipients,
		BucketID:   &id,
		Data:       data,
	})
}
