package stripewebhook

import (
	"context"
	"testing"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/internal/payments"
	"github.com/bucketshare/bucketshare-backend/internal/settlement"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

type tierCall struct {
	customerID     string
	tier           enums.Tier
	subscriptionID *string
}

type deadLetterCall struct {
	ev     settlement.PaymentEvent
	reason enums.DeadLetterReason
}

type fakeSettlement struct {
	payments    []settlement.PaymentEvent
	funding     map[string]*payments.BankAccount
	payouts     map[string]bool
	tiers       []tierCall
	deadLetters []deadLetterCall
}

func newFakeSettlement() *fakeSettlement {
	return &fakeSettlement{
		funding: map[string]*payments.BankAccount{},
		payouts: map[string]bool{},
	}
}

func (f *fakeSettlement) ApplyPayment(ctx context.Context, ev settlement.PaymentEvent) (ledger.Outcome, error) {
	f.payments = append(f.payments, ev)
	return ledger.OutcomeApplied, nil
}

func (f *fakeSettlement) LinkFunding(ctx context.Context, eventID, customerID string, bank *payments.BankAccount) error {
	f.funding[customerID] = bank
	return nil
}

func (f *fakeSettlement) UpdatePayoutAccount(ctx context.Context, eventID, accountID string, payoutsEnabled bool) error {
	f.payouts[accountID] = payoutsEnabled
	return nil
}

func (f *fakeSettlement) SetTier(ctx context.Context, eventID, customerID string, tier enums.Tier, subscriptionID *string) error {
	f.tiers = append(f.tiers, tierCall{customerID: customerID, tier: tier, subscriptionID: subscriptionID})
	return nil
}

func (f *fakeSettlement) RecordDeadLetter(ctx context.Context, ev settlement.PaymentEvent, reason enums.DeadLetterReason, bucketID *uuid.UUID, cause error) error {
	f.deadLetters = append(f.deadLetters, deadLetterCall{ev: ev, reason: reason})
	return nil
}

type stubAccounts struct {
	bank *payments.BankAccount
}

func (s stubAccounts) GetBankAccount(ctx context.Context, paymentMethodID string) (*payments.BankAccount, error) {
	return s.bank, nil
}

func newTestService(t *testing.T, accounts bankAccountReader) (*Service, *fakeSettlement) {
	t.Helper()
	fake := newFakeSettlement()
	svc, err := NewService(ServiceParams{Settlement: fake, Accounts: accounts})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc, fake
}

func event(id string, kind stripe.EventType, raw string) *stripe.Event {
	return &stripe.Event{ID: id, Type: kind, Data: &stripe.EventData{Raw: []byte(raw)}}
}

func TestNewServiceRequiresSettlement(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error without settlement service")
	}
}

func TestService_PaymentSucceededRoutesWithBucketHint(t *testing.T) {
	svc, fake := newTestService(t, nil)
	bucketID := uuid.New()
	raw := `{"id":"pi_123","object":"payment_intent","status":"succeeded","metadata":{"bucket_id":"` + bucketID.String() + `"}}`

	if err := svc.HandleEvent(context.Background(), event("evt_1", stripe.EventTypePaymentIntentSucceeded, raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(fake.payments) != 1 {
		t.Fatalf("expected one payment event, got %d", len(fake.payments))
	}
	got := fake.payments[0]
	if got.ID != "evt_1" || got.PaymentRef != "pi_123" || got.Kind != enums.SettlementEventKindDebitSucceeded {
		t.Fatalf("unexpected payment event: %+v", got)
	}
	if got.BucketHint != bucketID {
		t.Fatalf("expected bucket hint %s, got %s", bucketID, got.BucketHint)
	}
}

func TestService_PaymentFailedCarriesReason(t *testing.T) {
	svc, fake := newTestService(t, nil)
	raw := `{"id":"pi_9","object":"payment_intent","metadata":{"bucket_id":"not-a-uuid"},"last_payment_error":{"code":"payment_method_provider_decline","decline_code":"insufficient_funds"}}`

	if err := svc.HandleEvent(context.Background(), event("evt_2", stripe.EventTypePaymentIntentPaymentFailed, raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	got := fake.payments[0]
	if got.Kind != enums.SettlementEventKindDebitFailed {
		t.Fatalf("expected debit_failed, got %s", got.Kind)
	}
	if got.FailureReason != "insufficient_funds" {
		t.Fatalf("expected decline code as reason, got %q", got.FailureReason)
	}
	if got.BucketHint != uuid.Nil {
		t.Fatalf("expected malformed hint to be ignored")
	}
}

func TestService_DisputeUsesPaymentIntent(t *testing.T) {
	svc, fake := newTestService(t, nil)
	raw := `{"id":"dp_1","object":"dispute","payment_intent":"pi_disputed","charge":"ch_1"}`

	if err := svc.HandleEvent(context.Background(), event("evt_3", stripe.EventTypeChargeDisputeCreated, raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	got := fake.payments[0]
	if got.Kind != enums.SettlementEventKindDisputeCreated || got.PaymentRef != "pi_disputed" {
		t.Fatalf("unexpected dispute routing: %+v", got)
	}
}

func TestService_SetupIntentLinksFunding(t *testing.T) {
	bank := &payments.BankAccount{PaymentMethodID: "pm_1", Last4: "6789", BankName: "STRIPE TEST BANK"}
	svc, fake := newTestService(t, stubAccounts{bank: bank})
	raw := `{"id":"seti_1","object":"setup_intent","status":"succeeded","customer":"cus_1","payment_method":"pm_1"}`

	if err := svc.HandleEvent(context.Background(), event("evt_4", stripe.EventTypeSetupIntentSucceeded, raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	linked, ok := fake.funding["cus_1"]
	if !ok {
		t.Fatalf("expected funding linked for cus_1")
	}
	if linked.Last4 != "6789" || linked.PaymentMethodID != "pm_1" {
		t.Fatalf("unexpected bank account: %+v", linked)
	}
}

func TestService_AccountUpdated(t *testing.T) {
	svc, fake := newTestService(t, nil)
	raw := `{"id":"acct_1","object":"account","payouts_enabled":true}`

	if err := svc.HandleEvent(context.Background(), event("evt_5", stripe.EventTypeAccountUpdated, raw)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if !fake.payouts["acct_1"] {
		t.Fatalf("expected payouts enabled for acct_1")
	}
}

func TestService_SubscriptionLifecycleSetsTier(t *testing.T) {
	svc, fake := newTestService(t, nil)
	ctx := context.Background()

	checkout := `{"id":"cs_1","object":"checkout.session","mode":"subscription","customer":"cus_7","subscription":"sub_7"}`
	if err := svc.HandleEvent(ctx, event("evt_6", stripe.EventTypeCheckoutSessionCompleted, checkout)); err != nil {
		t.Fatalf("checkout event: %v", err)
	}
	payment := `{"id":"cs_2","object":"checkout.session","mode":"payment","customer":"cus_7"}`
	if err := svc.HandleEvent(ctx, event("evt_7", stripe.EventTypeCheckoutSessionCompleted, payment)); err != nil {
		t.Fatalf("payment checkout event: %v", err)
	}
	deleted := `{"id":"sub_7","object":"subscription","customer":"cus_7","status":"canceled"}`
	if err := svc.HandleEvent(ctx, event("evt_8", stripe.EventTypeCustomerSubscriptionDeleted, deleted)); err != nil {
		t.Fatalf("subscription deleted event: %v", err)
	}

	if len(fake.tiers) != 2 {
		t.Fatalf("expected two tier changes, got %d", len(fake.tiers))
	}
	if fake.tiers[0].tier != enums.TierPlus || fake.tiers[0].subscriptionID == nil || *fake.tiers[0].subscriptionID != "sub_7" {
		t.Fatalf("unexpected upgrade: %+v", fake.tiers[0])
	}
	if fake.tiers[1].tier != enums.TierFree || fake.tiers[1].subscriptionID != nil {
		t.Fatalf("unexpected downgrade: %+v", fake.tiers[1])
	}
}

func TestService_UndecodablePayloadIsDeadLettered(t *testing.T) {
	svc, fake := newTestService(t, nil)

	if err := svc.HandleEvent(context.Background(), event("evt_9", stripe.EventTypePaymentIntentSucceeded, `{"id":`)); err != nil {
		t.Fatalf("expected decode failure to be acknowledged, got %v", err)
	}
	if len(fake.payments) != 0 {
		t.Fatalf("expected no payment applied")
	}
	if len(fake.deadLetters) != 1 || fake.deadLetters[0].reason != enums.DeadLetterReasonDecodeFailed {
		t.Fatalf("expected decode_failed dead letter, got %+v", fake.deadLetters)
	}
	if fake.deadLetters[0].ev.ID != "evt_9" {
		t.Fatalf("expected event id on dead letter")
	}
}

func TestService_IgnoresUnhandledEvents(t *testing.T) {
	svc, fake := newTestService(t, nil)
	if err := svc.HandleEvent(context.Background(), event("evt_10", stripe.EventTypeInvoicePaid, `{}`)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(fake.payments)+len(fake.tiers)+len(fake.deadLetters) != 0 {
		t.Fatalf("expected no side effects")
	}
}
