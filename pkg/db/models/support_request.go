package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

// SupportRequest records a user's report of funds stuck in a bucket.
type SupportRequest struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UID         string                     `gorm:"column:uid;not null;index"`
	Email       string                     `gorm:"column:email;not null"`
	BucketID    uuid.UUID                  `gorm:"column:bucket_id;type:uuid;not null"`
	BucketName  string                     `gorm:"column:bucket_name;not null"`
	AmountStuck decimal.Decimal            `gorm:"column:amount_stuck;type:numeric(14,2);not null"`
	Message     string                     `gorm:"column:message;not null"`
	Status      enums.SupportRequestStatus `gorm:"column:status;type:text;not null;default:'open'"`
	ResolvedAt  *time.Time                 `gorm:"column:resolved_at"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
