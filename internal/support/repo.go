package support

import (
	"context"
	"errors"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists stuck-funds support requests.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, req *models.SupportRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(req).Error
}

// HasOpen reports whether uid already has an open request for the bucket.
func (r *Repository) HasOpen(ctx context.Context, uid string, bucketID uuid.UUID) (bool, error) {
	var existing models.SupportRequest
	err := r.db.WithContext(ctx).
		Where("uid = ? AND bucket_id = ? AND status = ?", uid, bucketID, enums.SupportRequestStatusOpen).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Repository) ListForUser(ctx context.Context, uid string) ([]models.SupportRequest, error) {
	var rows []models.SupportRequest
	err := r.db.WithContext(ctx).
		Where("uid = ?", uid).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
