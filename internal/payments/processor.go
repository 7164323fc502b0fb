package payments

import (
	"context"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metadata keys attached to debits so settlement events can be routed back to a bucket.
const (
	MetadataBucketID       = "bucket_id"
	MetadataContributorUID = "contributor_uid"
	MetadataContributionID = "contribution_id"
	MetadataUID            = "uid"
)

// DebitRequest asks the processor to pull funds from a contributor's bank account.
type DebitRequest struct {
	IdempotencyKey  string
	Amount          decimal.Decimal
	CustomerID      string
	PaymentMethodID string
	BucketID        uuid.UUID
	ContributionID  uuid.UUID
	ContributorUID  string
}

// DebitResult is the processor's acknowledgement of a debit.
type DebitResult struct {
	Ref    string
	Status enums.PaymentStatus
}

// PayoutRequest moves settled funds to a collector's payout destination.
type PayoutRequest struct {
	IdempotencyKey string
	Amount         decimal.Decimal
	DestinationID  string
	BucketID       uuid.UUID
}

// BankAccount is the display metadata cached for a linked funding instrument.
type BankAccount struct {
	PaymentMethodID string
	Last4           string
	BankName        string
}

// SetupSession is returned to the client to complete bank linking.
type SetupSession struct {
	SetupIntentID string
	ClientSecret  string
	CustomerID    string
}

// Processor is the money-movement side of the payment processor.
type Processor interface {
	Debit(ctx context.Context, req DebitRequest) (*DebitResult, error)
	CancelDebit(ctx context.Context, ref string) error
	Payout(ctx context.Context, req PayoutRequest) (string, error)
}

// Accounts manages processor-side customer, funding and payout accounts.
type Accounts interface {
	EnsureCustomer(ctx context.Context, uid, email string, existing *string) (string, error)
	CreateSetupSession(ctx context.Context, customerID string) (*SetupSession, error)
	FinalizeSetup(ctx context.Context, setupIntentID string) (customerID string, account *BankAccount, err error)
	GetBankAccount(ctx context.Context, paymentMethodID string) (*BankAccount, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
	CreatePayoutAccount(ctx context.Context, uid, email string) (string, error)
	OnboardingLink(ctx context.Context, accountID string) (string, error)
}
