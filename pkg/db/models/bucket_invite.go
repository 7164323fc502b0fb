package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

type BucketInvite struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	BucketID    uuid.UUID          `gorm:"column:bucket_id;type:uuid;not null;index"`
	BucketName  string             `gorm:"column:bucket_name;not null"`
	FromUID     string             `gorm:"column:from_uid;not null"`
	FromName    string             `gorm:"column:from_name;not null;default:''"`
	ToUID       string             `gorm:"column:to_uid;not null;index"`
	Status      enums.InviteStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	RespondedAt *time.Time         `gorm:"column:responded_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
