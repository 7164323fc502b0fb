package users

import (
	"context"
	"fmt"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes user profile persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Ensure inserts a profile for uid unless one exists and returns the stored row.
func (r *Repository) Ensure(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil || user.UID == "" {
		return nil, fmt.Errorf("user uid is required")
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user).Error; err != nil {
		return nil, err
	}
	return r.FindByUID(ctx, user.UID)
}

// FindByUID loads a profile by identity-provider subject.
func (r *Repository) FindByUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByStripeCustomerID resolves a processor customer to its owner.
func (r *Repository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByConnectAccountID resolves a payout account to its owner.
func (r *Repository) FindByConnectAccountID(ctx context.Context, accountID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("connect_account_id = ?", accountID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Update applies column updates to a profile.
func (r *Repository) Update(ctx context.Context, uid string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("uid = ?", uid).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete drops the profile together with its friendships and the pending
// invites it sent or received.
func (r *Repository) Delete(ctx context.Context, uid string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("uid_low = ? OR uid_high = ?", uid, uid).Delete(&models.Friendship{}).Error; err != nil {
		return err
	}
	if err := db.Where("(to_uid = ? OR from_uid = ?) AND status = ?", uid, uid, enums.InviteStatusPending).
		Delete(&models.BucketInvite{}).Error; err != nil {
		return err
	}
	res := db.Where("uid = ?", uid).Delete(&models.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
