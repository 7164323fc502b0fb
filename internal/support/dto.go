package support

import (
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StuckFundsInput is the body of a stuck-funds request.
type StuckFundsInput struct {
	BucketID uuid.UUID
	Message  string
}

type RequestDTO struct {
	ID          uuid.UUID                  `json:"id"`
	BucketID    uuid.UUID                  `json:"bucket_id"`
	BucketName  string                     `json:"bucket_name"`
	AmountStuck decimal.Decimal            `json:"amount_stuck"`
	Message     string                     `json:"message"`
	Status      enums.SupportRequestStatus `json:"status"`
	ResolvedAt  *time.Time                 `json:"resolved_at,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
}

func FromModel(m *models.SupportRequest) RequestDTO {
	return RequestDTO{
		ID:          m.ID,
		BucketID:    m.BucketID,
		BucketName:  m.BucketName,
		AmountStuck: m.AmountStuck,
		Message:     m.Message,
		Status:      m.Status,
		ResolvedAt:  m.ResolvedAt,
		CreatedAt:   m.CreatedAt,
	}
}
