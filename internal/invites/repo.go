package invites

import (
	"context"
	"fmt"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes bucket invite persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, invite *models.BucketInvite) error {
	if invite == nil {
		return fmt.Errorf("invite is required")
	}
	if invite.ID == uuid.Nil {
		invite.ID = uuid.New()
	}
	if invite.Status == "" {
		invite.Status = enums.InviteStatusPending
	}
	return r.db.WithContext(ctx).Create(invite).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.BucketInvite, error) {
	var invite models.BucketInvite
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invite).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

// FindPending returns the open invite for a bucket and invitee, if any.
func (r *Repository) FindPending(ctx context.Context, bucketID uuid.UUID, toUID string) (*models.BucketInvite, error) {
	var invite models.BucketInvite
	err := r.db.WithContext(ctx).
		Where("bucket_id = ? AND to_uid = ? AND status = ?", bucketID, toUID, enums.InviteStatusPending).
		First(&invite).Error
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

// ListPendingForUser returns the invites addressed to uid that still await a response.
func (r *Repository) ListPendingForUser(ctx context.Context, uid string) ([]models.BucketInvite, error) {
	var rows []models.BucketInvite
	err := r.db.WithContext(ctx).
		Where("to_uid = ? AND status = ?", uid, enums.InviteStatusPending).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// Respond moves a pending invite to status. It returns gorm.ErrRecordNotFound
// if the invite was no longer pending.
func (r *Repository) Respond(ctx context.Context, id uuid.UUID, status enums.InviteStatus, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.BucketInvite{}).
		Where("id = ? AND status = ?", id, enums.InviteStatusPending).
		Updates(map[string]any{
			"status":       status,
			"responded_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Reopen returns an invite in status from to pending.
func (r *Repository) Reopen(ctx context.Context, id uuid.UUID, from enums.InviteStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.BucketInvite{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":       enums.InviteStatusPending,
			"responded_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
