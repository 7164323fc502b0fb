package buckets

import (
	"time"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller as supplied by the identity provider.
type Actor struct {
	UID   string
	Email string
}

// CreateInput captures the fields accepted when creating a bucket.
type CreateInput struct {
	Name        string
	Description *string
	GoalAmount  decimal.Decimal
	TargetDate  *time.Time
}

// AllocateInput captures a contribution request.
type AllocateInput struct {
	Amount decimal.Decimal
	Method enums.ContributionMethod
}

type MemberDTO struct {
	UID         string           `json:"uid"`
	Email       string           `json:"email"`
	DisplayName string           `json:"display_name"`
	Role        enums.MemberRole `json:"role"`
	JoinedAt    time.Time        `json:"joined_at"`
}

type ContributionDTO struct {
	ID             uuid.UUID                `json:"id"`
	Amount         decimal.Decimal          `json:"amount"`
	ContributorUID string                   `json:"contributor_uid"`
	Method         enums.ContributionMethod `json:"method"`
	PaymentRef     string                   `json:"payment_ref,omitempty"`
	PaymentStatus  enums.PaymentStatus      `json:"payment_status,omitempty"`
	FailureReason  *string                  `json:"failure_reason,omitempty"`
	SettledAt      *time.Time               `json:"settled_at,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

type BucketDTO struct {
	ID            uuid.UUID          `json:"id"`
	OwnerUID      string             `json:"owner_uid"`
	CollectorUID  string             `json:"collector_uid"`
	Name          string             `json:"name"`
	Description   *string            `json:"description,omitempty"`
	GoalAmount    decimal.Decimal    `json:"goal_amount"`
	TargetDate    *time.Time         `json:"target_date,omitempty"`
	CurrentAmount decimal.Decimal    `json:"current_amount"`
	PendingAmount decimal.Decimal    `json:"pending_amount"`
	Status        enums.BucketStatus `json:"status"`
	Members       []MemberDTO        `json:"members"`
	MemberUIDs    []string           `json:"member_uids"`
	Contributions []ContributionDTO  `json:"contributions"`
	HasReversal   bool               `json:"has_reversal"`
	AutoCollected bool               `json:"auto_collected"`
	CollectedAt   *time.Time         `json:"collected_at,omitempty"`
	PayoutRef     *string            `json:"payout_ref,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// AllocationResult is returned after a contribution was recorded.
type AllocationResult struct {
	Bucket       *BucketDTO       `json:"bucket"`
	Contribution *ContributionDTO `json:"contribution"`
}

func NewBucketDTO(b *ledger.Bucket) *BucketDTO {
	if b == nil {
		return nil
	}
	members := make([]MemberDTO, 0, len(b.Members))
	for _, m := range b.Members {
		members = append(members, MemberDTO{
			UID:         m.UID,
			Email:       m.Email,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt,
		})
	}
	contributions := make([]ContributionDTO, 0, len(b.Contributions))
	for i := range b.Contributions {
		contributions = append(contributions, *NewContributionDTO(&b.Contributions[i]))
	}
	return &BucketDTO{
		ID:            b.ID,
		OwnerUID:      b.OwnerUID,
		CollectorUID:  b.CollectorUID,
		Name:          b.Name,
		Description:   b.Description,
		GoalAmount:    b.GoalAmount,
		TargetDate:    b.TargetDate,
		CurrentAmount: b.CurrentAmount,
		PendingAmount: b.PendingAmount,
		Status:        b.Status,
		Members:       members,
		MemberUIDs:    b.MemberUIDs(),
		Contributions: contributions,
		HasReversal:   b.HasReversal,
		AutoCollected: b.AutoCollected,
		CollectedAt:   b.CollectedAt,
		PayoutRef:     b.PayoutRef,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func NewContributionDTO(c *ledger.Contribution) *ContributionDTO {
	if c == nil {
		return nil
	}
	dto := &ContributionDTO{
		ID:             c.ID,
		Amount:         c.Amount,
		ContributorUID: c.ContributorUID,
		Method:         c.Funding.Method(),
		PaymentRef:     c.PaymentRef(),
		FailureReason:  c.FailureReason,
		SettledAt:      c.SettledAt,
		CreatedAt:      c.CreatedAt,
	}
	if status, ok := c.PaymentStatus(); ok {
		dto.PaymentStatus = status
	}
	return dto
}
