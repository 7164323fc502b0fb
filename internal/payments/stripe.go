package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	pkgstripe "github.com/bucketshare/bucketshare-backend/pkg/stripe"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"
	"github.com/stripe/stripe-go/v84/setupintent"
	"github.com/stripe/stripe-go/v84/transfer"
)

const (
	currencyUSD         = "usd"
	methodUSBankAccount = "us_bank_account"
)

// StripeGateway implements Processor and Accounts on top of Stripe.
type StripeGateway struct {
	returnURL  string
	refreshURL string
}

// NewStripeGateway wraps the configured Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	returnURL, refreshURL := client.ConnectURLs()
	return &StripeGateway{returnURL: returnURL, refreshURL: refreshURL}, nil
}

func (g *StripeGateway) Debit(ctx context.Context, req DebitRequest) (*DebitResult, error) {
	if req.CustomerID == "" || req.PaymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeFundingNotConfigured, "funding instrument missing")
	}
	cents, err := toCents(req.Amount)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(cents),
		Currency:           stripe.String(currencyUSD),
		Customer:           stripe.String(req.CustomerID),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		PaymentMethodTypes: stripe.StringSlice([]string{methodUSBankAccount}),
		Confirm:            stripe.Bool(true),
		OffSession:         stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata(MetadataBucketID, req.BucketID.String())
	params.AddMetadata(MetadataContributorUID, req.ContributorUID)
	params.AddMetadata(MetadataContributionID, req.ContributionID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, processorError(err, "create debit")
	}

	status, err := debitStatus(pi.Status)
	if err != nil {
		return nil, err
	}
	return &DebitResult{Ref: pi.ID, Status: status}, nil
}

func (g *StripeGateway) CancelDebit(ctx context.Context, ref string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := paymentintent.Cancel(ref, params); err != nil {
		return processorError(err, "cancel debit")
	}
	return nil
}

func (g *StripeGateway) Payout(ctx context.Context, req PayoutRequest) (string, error) {
	if req.DestinationID == "" {
		return "", pkgerrors.New(pkgerrors.CodePayoutNotConfigured, "payout destination missing")
	}
	cents, err := toCents(req.Amount)
	if err != nil {
		return "", err
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(cents),
		Currency:      stripe.String(currencyUSD),
		Destination:   stripe.String(req.DestinationID),
		TransferGroup: stripe.String("bucket_" + req.BucketID.String()),
	}
	params.Context = ctx
	params.AddMetadata(MetadataBucketID, req.BucketID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	tr, err := transfer.New(params)
	if err != nil {
		return "", processorError(err, "create payout transfer")
	}
	return tr.ID, nil
}

func (g *StripeGateway) EnsureCustomer(ctx context.Context, uid, email string, existing *string) (string, error) {
	if existing != nil && strings.TrimSpace(*existing) != "" {
		return *existing, nil
	}
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata(MetadataUID, uid)
	params.SetIdempotencyKey("customer-" + uid)

	c, err := customer.New(params)
	if err != nil {
		return "", processorError(err, "create customer")
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateSetupSession(ctx context.Context, customerID string) (*SetupSession, error) {
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{methodUSBankAccount}),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
	}
	params.Context = ctx

	si, err := setupintent.New(params)
	if err != nil {
		return nil, processorError(err, "create setup intent")
	}
	return &SetupSession{SetupIntentID: si.ID, ClientSecret: si.ClientSecret, CustomerID: customerID}, nil
}

func (g *StripeGateway) FinalizeSetup(ctx context.Context, setupIntentID string) (string, *BankAccount, error) {
	params := &stripe.SetupIntentParams{}
	params.Context = ctx

	si, err := setupintent.Get(setupIntentID, params)
	if err != nil {
		return "", nil, processorError(err, "load setup intent")
	}
	if si.Status != stripe.SetupIntentStatusSucceeded {
		return "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bank account setup is not complete").
			WithDetails(map[string]any{"status": string(si.Status)})
	}
	if si.Customer == nil || si.PaymentMethod == nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeProcessor, "setup intent missing customer or payment method")
	}

	bank, err := g.GetBankAccount(ctx, si.PaymentMethod.ID)
	if err != nil {
		return "", nil, err
	}
	return si.Customer.ID, bank, nil
}

func (g *StripeGateway) GetBankAccount(ctx context.Context, paymentMethodID string) (*BankAccount, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := paymentmethod.Get(paymentMethodID, params)
	if err != nil {
		return nil, processorError(err, "load payment method")
	}
	bank := &BankAccount{PaymentMethodID: pm.ID}
	if pm.USBankAccount != nil {
		bank.Last4 = pm.USBankAccount.Last4
		bank.BankName = pm.USBankAccount.BankName
	}
	return bank, nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	if _, err := paymentmethod.Detach(paymentMethodID, params); err != nil {
		return processorError(err, "detach payment method")
	}
	return nil
}

func (g *StripeGateway) CreatePayoutAccount(ctx context.Context, uid, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataUID, uid)
	params.SetIdempotencyKey("connect-" + uid)

	acct, err := account.New(params)
	if err != nil {
		return "", processorError(err, "create payout account")
	}
	return acct.ID, nil
}

func (g *StripeGateway) OnboardingLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(g.refreshURL),
		ReturnURL:  stripe.String(g.returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", processorError(err, "create onboarding link")
	}
	return link.URL, nil
}

func toCents(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than 0")
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

func debitStatus(status stripe.PaymentIntentStatus) (enums.PaymentStatus, error) {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentStatusSucceeded, nil
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction:
		return enums.PaymentStatusPending, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeProcessor, "debit was not accepted").
			WithDetails(map[string]any{"status": string(status)})
	}
}

// FailureReason extracts the most specific decline reason from a Stripe error.
func FailureReason(err *stripe.Error) string {
	if err == nil {
		return "unknown"
	}
	if err.DeclineCode != "" {
		return string(err.DeclineCode)
	}
	if err.Code != "" {
		return string(err.Code)
	}
	return "unknown"
}

// processorError maps SDK failures. A Stripe API error below 500 is a
// refusal: nothing was created. Anything else leaves the outcome unknown.
func processorError(err error, msg string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < 500 {
		return pkgerrors.Wrap(pkgerrors.CodeProcessor, err, fmt.Sprintf("%s: %s", msg, FailureReason(stripeErr))).
			WithDetails(map[string]any{"reason": FailureReason(stripeErr)})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg+": processor outcome unknown")
}
