package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

// Bucket is the persisted savings-goal aggregate. Contributions and members are
// embedded as JSON and guarded by Version for compare-and-swap writes.
type Bucket struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUID         string               `gorm:"column:owner_uid;not null;index"`
	CollectorUID     string               `gorm:"column:collector_uid;not null"`
	Name             string               `gorm:"column:name;not null"`
	Description      *string              `gorm:"column:description"`
	GoalAmount       decimal.Decimal      `gorm:"column:goal_amount;type:numeric(14,2);not null"`
	TargetDate       *time.Time           `gorm:"column:target_date"`
	CurrentAmount    decimal.Decimal      `gorm:"column:current_amount;type:numeric(14,2);not null;default:0"`
	PendingAmount    decimal.Decimal      `gorm:"column:pending_amount;type:numeric(14,2);not null;default:0"`
	Status           enums.BucketStatus   `gorm:"column:status;type:text;not null;default:'active';index"`
	Members          []MemberSnapshot     `gorm:"column:members;type:jsonb;serializer:json;not null"`
	Contributions    []ContributionRecord `gorm:"column:contributions;type:jsonb;serializer:json;not null"`
	HasReversal      bool                 `gorm:"column:has_reversal;not null;default:false"`
	HasPaymentBacked bool                 `gorm:"column:has_payment_backed;not null;default:false"`
	AutoCollected    bool                 `gorm:"column:auto_collected;not null;default:false"`
	CollectedAt      *time.Time           `gorm:"column:collected_at"`
	PayoutRef        *string              `gorm:"column:payout_ref"`
	Version          int64                `gorm:"column:version;not null;default:1"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// MemberSnapshot is the denormalized member identity captured when a participant joins.
type MemberSnapshot struct {
	UID         string           `json:"uid"`
	Email       string           `json:"email"`
	DisplayName string           `json:"displayName"`
	Role        enums.MemberRole `json:"role"`
	JoinedAt    time.Time        `json:"joinedAt"`
}

// ContributionRecord is the JSON shape of a contribution embedded in a bucket row.
// PaymentRef and PaymentStatus are empty for virtual contributions.
type ContributionRecord struct {
	ID             uuid.UUID                `json:"id"`
	Amount         decimal.Decimal          `json:"amount"`
	ContributorUID string                   `json:"contributorUid"`
	Method         enums.ContributionMethod `json:"method"`
	PaymentRef     string                   `json:"paymentRef,omitempty"`
	PaymentStatus  enums.PaymentStatus      `json:"paymentStatus,omitempty"`
	FailureReason  *string                  `json:"failureReason,omitempty"`
	SettledAt      *time.Time               `json:"settledAt,omitempty"`
	CreatedAt      time.Time                `json:"createdAt"`
}
