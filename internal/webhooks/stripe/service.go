package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/internal/payments"
	"github.com/bucketshare/bucketshare-backend/internal/settlement"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

type settlementService interface {
	ApplyPayment(ctx context.Context, ev settlement.PaymentEvent) (ledger.Outcome, error)
	LinkFunding(ctx context.Context, eventID, customerID string, bank *payments.BankAccount) error
	UpdatePayoutAccount(ctx context.Context, eventID, accountID string, payoutsEnabled bool) error
	SetTier(ctx context.Context, eventID, customerID string, tier enums.Tier, subscriptionID *string) error
	RecordDeadLetter(ctx context.Context, ev settlement.PaymentEvent, reason enums.DeadLetterReason, bucketID *uuid.UUID, cause error) error
}

type bankAccountReader interface {
	GetBankAccount(ctx context.Context, paymentMethodID string) (*payments.BankAccount, error)
}

type ServiceParams struct {
	Settlement settlementService
	Accounts   bankAccountReader
}

// Service translates Stripe events into settlement operations.
type Service struct {
	settlement settlementService
	accounts   bankAccountReader
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	return &Service{
		settlement: params.Settlement,
		accounts:   params.Accounts,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return s.undecodable(ctx, event, enums.SettlementEventKindDebitSucceeded, err)
		}
		return s.applyPayment(ctx, event, enums.SettlementEventKindDebitSucceeded, &pi, "")
	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return s.undecodable(ctx, event, enums.SettlementEventKindDebitFailed, err)
		}
		return s.applyPayment(ctx, event, enums.SettlementEventKindDebitFailed, &pi, payments.FailureReason(pi.LastPaymentError))
	case stripe.EventTypeChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return s.undecodable(ctx, event, enums.SettlementEventKindDisputeCreated, err)
		}
		return s.applyPayment(ctx, event, enums.SettlementEventKindDisputeCreated, disputedIntent(&dispute), "")
	case stripe.EventTypeSetupIntentSucceeded:
		var si stripe.SetupIntent
		if err := json.Unmarshal(event.Data.Raw, &si); err != nil {
			return s.undecodable(ctx, event, enums.SettlementEventKindFundingLinked, err)
		}
		return s.linkFunding(ctx, event, &si)
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return s.undecodable(ctx, event, enums.SettlementEventKindPayoutAccountUpdated, err)
		}
		return s.settlement.UpdatePayoutAccount(ctx, event.ID, account.ID, account.PayoutsEnabled)
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return s.undecodable(ctx, event, enums.SettlementEventKindTierChanged, err)
		}
		if session.Mode != stripe.CheckoutSessionModeSubscription || session.Customer == nil {
			return nil
		}
		var subscriptionID *string
		if session.Subscription != nil && session.Subscription.ID != "" {
			id := session.Subscription.ID
			subscriptionID = &id
		}
		return s.settlement.SetTier(ctx, event.ID, session.Customer.ID, enums.TierPlus, subscriptionID)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return s.undecodable(ctx, event, enums.SettlementEventKindTierChanged, err)
		}
		if sub.Customer == nil {
			return nil
		}
		return s.settlement.SetTier(ctx, event.ID, sub.Customer.ID, enums.TierFree, nil)
	default:
		return nil
	}
}

func (s *Service) applyPayment(ctx context.Context, event *stripe.Event, kind enums.SettlementEventKind, pi *stripe.PaymentIntent, reason string) error {
	ev := settlement.PaymentEvent{
		ID:            event.ID,
		Kind:          kind,
		FailureReason: reason,
		Payload:       event.Data.Raw,
	}
	if pi != nil {
		ev.PaymentRef = pi.ID
		ev.BucketHint = bucketHint(pi.Metadata)
	}
	_, err := s.settlement.ApplyPayment(ctx, ev)
	return err
}

func (s *Service) linkFunding(ctx context.Context, event *stripe.Event, si *stripe.SetupIntent) error {
	if si.Customer == nil || si.PaymentMethod == nil || si.PaymentMethod.ID == "" {
		return nil
	}
	bank := &payments.BankAccount{PaymentMethodID: si.PaymentMethod.ID}
	if us := si.PaymentMethod.USBankAccount; us != nil {
		bank.Last4 = us.Last4
		bank.BankName = us.BankName
	} else if s.accounts != nil {
		fetched, err := s.accounts.GetBankAccount(ctx, si.PaymentMethod.ID)
		if err != nil {
			return err
		}
		bank = fetched
	}
	return s.settlement.LinkFunding(ctx, event.ID, si.Customer.ID, bank)
}

func (s *Service) undecodable(ctx context.Context, event *stripe.Event, kind enums.SettlementEventKind, err error) error {
	return s.settlement.RecordDeadLetter(ctx, settlement.PaymentEvent{
		ID:      event.ID,
		Kind:    kind,
		Payload: event.Data.Raw,
	}, enums.DeadLetterReasonDecodeFailed, nil, fmt.Errorf("decode %s: %w", event.Type, err))
}

// disputedIntent returns the payment intent behind a dispute, looking through
// the charge when the dispute does not reference it directly.
func disputedIntent(d *stripe.Dispute) *stripe.PaymentIntent {
	if d.PaymentIntent != nil && d.PaymentIntent.ID != "" {
		return d.PaymentIntent
	}
	if d.Charge != nil && d.Charge.PaymentIntent != nil {
		return d.Charge.PaymentIntent
	}
	return nil
}

func bucketHint(metadata map[string]string) uuid.UUID {
	raw, ok := metadata[payments.MetadataBucketID]
	if !ok {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
