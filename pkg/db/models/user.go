package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

// User is the local profile for an identity-provider subject.
type User struct {
	UID                   string           `gorm:"column:uid;primaryKey"`
	Email                 string           `gorm:"column:email;not null;index"`
	DisplayName           string           `gorm:"column:display_name;not null;default:''"`
	Tier                  enums.Tier       `gorm:"column:tier;type:text;not null;default:'free'"`
	TransactionLimit      *decimal.Decimal `gorm:"column:transaction_limit;type:numeric(14,2)"`
	StripeCustomerID      *string          `gorm:"column:stripe_customer_id;uniqueIndex"`
	StripeSubscriptionID  *string          `gorm:"column:stripe_subscription_id"`
	ACHPaymentMethodID    *string          `gorm:"column:ach_payment_method_id"`
	ACHLast4              *string          `gorm:"column:ach_last4"`
	ACHBankName           *string          `gorm:"column:ach_bank_name"`
	ConnectAccountID      *string          `gorm:"column:connect_account_id;uniqueIndex"`
	ConnectPayoutsEnabled bool             `gorm:"column:connect_payouts_enabled;not null;default:false"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// HasFunding reports whether an ACH funding instrument is on file.
func (u *User) HasFunding() bool {
	return u != nil && u.StripeCustomerID != nil && u.ACHPaymentMethodID != nil && *u.ACHPaymentMethodID != ""
}

// HasPayoutDestination reports whether the user can receive payouts.
func (u *User) HasPayoutDestination() bool {
	return u != nil && u.ConnectAccountID != nil && *u.ConnectAccountID != "" && u.ConnectPayoutsEnabled
}
