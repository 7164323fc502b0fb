package models

import (
	"time"

	"github.com/google/uuid"
)

// BucketPaymentRef indexes processor payment references to the bucket holding the contribution.
type BucketPaymentRef struct {
	PaymentRef     string    `gorm:"column:payment_ref;primaryKey"`
	BucketID       uuid.UUID `gorm:"column:bucket_id;type:uuid;not null;index"`
	ContributionID uuid.UUID `gorm:"column:contribution_id;type:uuid;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
