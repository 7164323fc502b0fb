package users

import (
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// ProfileDTO is the transport shape of a user profile. Processor identifiers are never exposed.
type ProfileDTO struct {
	UID              string           `json:"uid"`
	Email            string           `json:"email"`
	DisplayName      string           `json:"display_name"`
	Tier             enums.Tier       `json:"tier"`
	TransactionLimit *decimal.Decimal `json:"transaction_limit"`
	Funding          *FundingDTO      `json:"funding,omitempty"`
	PayoutReady      bool             `json:"payout_ready"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// FundingDTO is the display metadata of a linked bank account.
type FundingDTO struct {
	Last4    string `json:"last4"`
	BankName string `json:"bank_name"`
}

// SetupDTO carries the client secret used to finish bank linking on the client.
type SetupDTO struct {
	SetupIntentID string `json:"setup_intent_id"`
	ClientSecret  string `json:"client_secret"`
}

// OnboardingDTO carries the hosted onboarding URL for payouts.
type OnboardingDTO struct {
	URL string `json:"url"`
}

func FromModel(u *models.User) *ProfileDTO {
	if u == nil {
		return nil
	}
	dto := &ProfileDTO{
		UID:              u.UID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		Tier:             u.Tier,
		TransactionLimit: u.TransactionLimit,
		PayoutReady:      u.HasPayoutDestination(),
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if u.HasFunding() {
		dto.Funding = &FundingDTO{
			Last4:    deref(u.ACHLast4),
			BankName: deref(u.ACHBankName),
		}
	}
	return dto
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
