package invites

import (
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
)

// InviteDTO is the transport shape for a bucket invitation.
type InviteDTO struct {
	ID          uuid.UUID          `json:"id"`
	BucketID    uuid.UUID          `json:"bucket_id"`
	BucketName  string             `json:"bucket_name"`
	FromUID     string             `json:"from_uid"`
	FromName    string             `json:"from_name"`
	ToUID       string             `json:"to_uid"`
	Status      enums.InviteStatus `json:"status"`
	RespondedAt *time.Time         `json:"responded_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func FromModel(m *models.BucketInvite) *InviteDTO {
	if m == nil {
		return nil
	}
	return &InviteDTO{
		ID:          m.ID,
		BucketID:    m.BucketID,
		BucketName:  m.BucketName,
		FromUID:     m.FromUID,
		FromName:    m.FromName,
		ToUID:       m.ToUID,
		Status:      m.Status,
		RespondedAt: m.RespondedAt,
		CreatedAt:   m.CreatedAt,
	}
}

func fromModels(rows []models.BucketInvite) []InviteDTO {
	out := make([]InviteDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
