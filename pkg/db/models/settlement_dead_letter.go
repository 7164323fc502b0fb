package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

// SettlementDeadLetter captures processor events that could not be applied for manual remediation.
type SettlementDeadLetter struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventID      string                    `gorm:"column:event_id;not null;index"`
	Kind         enums.SettlementEventKind `gorm:"column:kind;type:text;not null"`
	PaymentRef   *string                   `gorm:"column:payment_ref"`
	BucketID     *uuid.UUID                `gorm:"column:bucket_id;type:uuid"`
	Reason       enums.DeadLetterReason    `gorm:"column:reason;type:text;not null"`
	ErrorMessage *string                   `gorm:"column:error_message"`
	Payload      json.RawMessage           `gorm:"column:payload;type:jsonb;serializer:json"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
