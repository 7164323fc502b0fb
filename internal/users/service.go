package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bucketshare/bucketshare-backend/internal/payments"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	pkgerrors "github.com/bucketshare/bucketshare-backend/pkg/errors"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxDisplayNameLength = 80

type usersRepository interface {
	Ensure(ctx context.Context, user *models.User) (*models.User, error)
	FindByUID(ctx context.Context, uid string) (*models.User, error)
	Update(ctx context.Context, uid string, updates map[string]any) error
	WithTx(tx *gorm.DB) *Repository
}

// Holdings reports on the buckets a user takes part in.
type Holdings interface {
	PendingDebitsFrom(ctx context.Context, uid string) (int, error)
	DeleteOwned(ctx context.Context, tx *gorm.DB, uid string) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes profile, funding and payout setup operations.
type Service interface {
	EnsureProfile(ctx context.Context, uid, email string) (*models.User, error)
	GetProfile(ctx context.Context, uid, email string) (*ProfileDTO, error)
	UpdateProfile(ctx context.Context, uid, email string, input UpdateProfileInput) (*ProfileDTO, error)
	StartFundingSetup(ctx context.Context, uid, email string) (*SetupDTO, error)
	FinalizeFundingSetup(ctx context.Context, uid, email, setupIntentID string) (*ProfileDTO, error)
	RemoveFunding(ctx context.Context, uid, email string) (*ProfileDTO, error)
	StartPayoutOnboarding(ctx context.Context, uid, email string) (*OnboardingDTO, error)
	DeleteAccount(ctx context.Context, uid string) error
}

// UpdateProfileInput captures the mutable profile fields.
type UpdateProfileInput struct {
	DisplayName           *string
	TransactionLimit      *decimal.Decimal
	ClearTransactionLimit bool
}

type ServiceParams struct {
	Repo     usersRepository
	Tx       txRunner
	Holdings Holdings
	Accounts payments.Accounts
	Logger   *logger.Logger
}

type service struct {
	repo     usersRepository
	tx       txRunner
	holdings Holdings
	accounts payments.Accounts
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		holdings: params.Holdings,
		accounts: params.Accounts,
		logg:     params.Logger,
	}, nil
}

// EnsureProfile returns the caller's profile, creating a free-tier profile on first use.
func (s *service) EnsureProfile(ctx context.Context, uid, email string) (*models.User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	user, err := s.repo.FindByUID(ctx, uid)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user profile")
	}

	user, err = s.repo.Ensure(ctx, &models.User{
		UID:         uid,
		Email:       strings.TrimSpace(email),
		DisplayName: defaultDisplayName(email),
		Tier:        enums.TierFree,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user profile")
	}
	return user, nil
}

func (s *service) GetProfile(ctx context.Context, uid, email string) (*ProfileDTO, error) {
	user, err := s.EnsureProfile(ctx, uid, email)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, uid, email string, input UpdateProfileInput) (*ProfileDTO, error) {
	if _, err := s.EnsureProfile(ctx, uid, email); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name cannot be empty")
		}
		if len(name) > maxDisplayNameLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is too long").
				WithDetails(map[string]any{"max_length": maxDisplayNameLength})
		}
		updates["display_name"] = name
	}
	switch {
	case input.ClearTransactionLimit:
		updates["transaction_limit"] = nil
	case input.TransactionLimit != nil:
		limit := *input.TransactionLimit
		if !limit.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction limit must be greater than 0")
		}
		updates["transaction_limit"] = limit.Round(2)
	}

	if err := s.repo.Update(ctx, uid, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user profile")
	}
	return s.reload(ctx, uid)
}

// StartFundingSetup creates the processor customer if needed and opens a bank-linking session.
func (s *service) StartFundingSetup(ctx context.Context, uid, email string) (*SetupDTO, error) {
	if s.accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured")
	}
	user, err := s.EnsureProfile(ctx, uid, email)
	if err != nil {
		return nil, err
	}

	customerID, err := s.accounts.EnsureCustomer(ctx, user.UID, user.Email, user.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID != customerID {
		if err := s.repo.Update(ctx, uid, map[string]any{"stripe_customer_id": customerID}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store processor customer")
		}
	}

	session, err := s.accounts.CreateSetupSession(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &SetupDTO{SetupIntentID: session.SetupIntentID, ClientSecret: session.ClientSecret}, nil
}

// FinalizeFundingSetup caches the linked bank account once the client finished linking.
// The same update also arrives asynchronously through the processor webhook.
func (s *service) FinalizeFundingSetup(ctx context.Context, uid, email, setupIntentID string) (*ProfileDTO, error) {
	if s.accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured")
	}
	if strings.TrimSpace(setupIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "setup intent id is required")
	}
	user, err := s.EnsureProfile(ctx, uid, email)
	if err != nil {
		return nil, err
	}

	customerID, bank, err := s.accounts.FinalizeSetup(ctx, setupIntentID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "setup intent belongs to another customer")
	}

	if err := s.repo.Update(ctx, uid, FundingUpdates(bank)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store funding instrument")
	}
	return s.reload(ctx, uid)
}

// RemoveFunding detaches the linked bank account. It is refused while any
// debit from that account is still settling.
func (s *service) RemoveFunding(ctx context.Context, uid, email string) (*ProfileDTO, error) {
	user, err := s.EnsureProfile(ctx, uid, email)
	if err != nil {
		return nil, err
	}
	if user.ACHPaymentMethodID == nil {
		return FromModel(user), nil
	}
	if s.holdings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bucket holdings not configured")
	}
	pending, err := s.holdings.PendingDebitsFrom(ctx, user.UID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bank account has debits still settling").
			WithDetails(map[string]any{"pending_count": pending})
	}
	if s.accounts != nil {
		if err := s.accounts.DetachPaymentMethod(ctx, *user.ACHPaymentMethodID); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "detach payment method failed: "+err.Error())
		}
	}
	if err := s.repo.Update(ctx, uid, map[string]any{
		"ach_payment_method_id": nil,
		"ach_last4":             nil,
		"ach_bank_name":         nil,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove funding instrument")
	}
	return s.reload(ctx, uid)
}

// StartPayoutOnboarding creates the collector's payout account if needed and returns an onboarding link.
func (s *service) StartPayoutOnboarding(ctx context.Context, uid, email string) (*OnboardingDTO, error) {
	if s.accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured")
	}
	user, err := s.EnsureProfile(ctx, uid, email)
	if err != nil {
		return nil, err
	}

	accountID := ""
	if user.ConnectAccountID != nil {
		accountID = *user.ConnectAccountID
	}
	if accountID == "" {
		accountID, err = s.accounts.CreatePayoutAccount(ctx, user.UID, user.Email)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Update(ctx, uid, map[string]any{
			"connect_account_id":      accountID,
			"connect_payouts_enabled": false,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payout account")
		}
	}

	url, err := s.accounts.OnboardingLink(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &OnboardingDTO{URL: url}, nil
}

// DeleteAccount removes the profile and every bucket it owns in one
// transaction. Owned buckets holding unsettled or uncollected processor funds
// block the deletion.
func (s *service) DeleteAccount(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if s.tx == nil || s.holdings == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "account deletion not configured")
	}
	user, err := s.repo.FindByUID(ctx, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user profile")
	}

	var removed int
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err = s.holdings.DeleteOwned(ctx, tx, uid)
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Delete(ctx, uid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user profile")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.accounts != nil && user.ACHPaymentMethodID != nil {
		if err := s.accounts.DetachPaymentMethod(ctx, *user.ACHPaymentMethodID); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "detach payment method failed: "+err.Error())
		}
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "buckets_removed", removed), "account deleted")
	}
	return nil
}

func (s *service) reload(ctx context.Context, uid string) (*ProfileDTO, error) {
	user, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user profile")
	}
	return FromModel(user), nil
}

// FundingUpdates maps a linked bank account onto profile columns.
func FundingUpdates(bank *payments.BankAccount) map[string]any {
	return map[string]any{
		"ach_payment_method_id": bank.PaymentMethodID,
		"ach_last4":             bank.Last4,
		"ach_bank_name":         bank.BankName,
	}
}

func defaultDisplayName(email string) string {
	email = strings.TrimSpace(email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	if email != "" {
		return email
	}
	return "Member"
}
