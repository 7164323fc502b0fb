package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bucketshare/bucketshare-backend/pkg/enums"
)

// BucketMember mirrors the bucket's member list so membership lookups can be indexed.
type BucketMember struct {
	BucketID  uuid.UUID        `gorm:"column:bucket_id;type:uuid;primaryKey"`
	UID       string           `gorm:"column:uid;primaryKey;index"`
	Role      enums.MemberRole `gorm:"column:role;type:text;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
}
