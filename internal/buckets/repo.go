package buckets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bucketshare/bucketshare-backend/internal/ledger"
	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/bucketshare/bucketshare-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when a bucket was modified after it was read.
var ErrVersionConflict = errors.New("bucket version conflict")

// Repository persists bucket aggregates and their lookup indexes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, bucket *ledger.Bucket) error
	FindByID(ctx context.Context, id uuid.UUID) (*ledger.Bucket, error)
	Save(ctx context.Context, bucket *ledger.Bucket) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, uid string) ([]ledger.Bucket, error)
	CountOpenByOwner(ctx context.Context, ownerUID string) (int64, error)
	FindBucketIDByPaymentRef(ctx context.Context, paymentRef string) (uuid.UUID, error)
	ListAutoCollectCandidates(ctx context.Context, now time.Time) ([]ledger.Bucket, error)
	LockOwner(ctx context.Context, uid string) (*models.User, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a bucket repository to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts a new bucket at version 1 along with its member and payment indexes.
func (r *repository) Create(ctx context.Context, bucket *ledger.Bucket) error {
	if bucket == nil {
		return fmt.Errorf("bucket is required")
	}
	bucket.Version = 1
	row := ToModel(bucket)
	db := r.db.WithContext(ctx)
	if err := db.Create(row).Error; err != nil {
		return err
	}
	if err := syncMembers(db, bucket); err != nil {
		return err
	}
	return syncPaymentRefs(db, bucket)
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Bucket, error) {
	var row models.Bucket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return FromModel(&row)
}

// Save writes the aggregate if nobody else has written it since it was loaded.
// On success the aggregate's Version is advanced.
func (r *repository) Save(ctx context.Context, bucket *ledger.Bucket) error {
	if bucket == nil {
		return fmt.Errorf("bucket is required")
	}
	expected := bucket.Version
	row := ToModel(bucket)
	row.Version = expected + 1

	db := r.db.WithContext(ctx)
	res := db.Model(&models.Bucket{}).
		Where("id = ? AND version = ?", bucket.ID, expected).
		Select("*").
		Omit("id", "owner_uid", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	bucket.Version = row.Version

	if err := syncMembers(db, bucket); err != nil {
		return err
	}
	return syncPaymentRefs(db, bucket)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("bucket_id = ?", id).Delete(&models.BucketPaymentRef{}).Error; err != nil {
		return err
	}
	if err := db.Where("bucket_id = ?", id).Delete(&models.BucketMember{}).Error; err != nil {
		return err
	}
	if err := db.Where("bucket_id = ? AND status = ?", id, enums.InviteStatusPending).Delete(&models.BucketInvite{}).Error; err != nil {
		return err
	}
	res := db.Where("id = ?", id).Delete(&models.Bucket{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListForUser returns buckets the user owns or belongs to, newest first.
func (r *repository) ListForUser(ctx context.Context, uid string) ([]ledger.Bucket, error) {
	db := r.db.WithContext(ctx)
	memberOf := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.BucketMember{}).
		Select("bucket_id").
		Where("uid = ?", uid)

	var rows []models.Bucket
	if err := db.
		Where("owner_uid = ? OR id IN (?)", uid, memberOf).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromModels(rows)
}

// CountOpenByOwner counts the owner's active and completed buckets.
func (r *repository) CountOpenByOwner(ctx context.Context, ownerUID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Bucket{}).
		Where("owner_uid = ? AND status IN ?", ownerUID, []enums.BucketStatus{enums.BucketStatusActive, enums.BucketStatusCompleted}).
		Count(&count).Error
	return count, err
}

func (r *repository) FindBucketIDByPaymentRef(ctx context.Context, paymentRef string) (uuid.UUID, error) {
	var ref models.BucketPaymentRef
	if err := r.db.WithContext(ctx).Where("payment_ref = ?", paymentRef).First(&ref).Error; err != nil {
		return uuid.Nil, err
	}
	return ref.BucketID, nil
}

// ListAutoCollectCandidates returns completed virtual-only buckets whose target date has passed.
func (r *repository) ListAutoCollectCandidates(ctx context.Context, now time.Time) ([]ledger.Bucket, error) {
	var rows []models.Bucket
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.BucketStatusCompleted).
		Where("has_payment_backed = ?", false).
		Where("target_date IS NOT NULL AND target_date <= ?", now.UTC()).
		Order("target_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromModels(rows)
}

// LockOwner row-locks the owner's profile so concurrent creates serialize on the tier gate.
func (r *repository) LockOwner(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uid = ?", uid).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fromModels(rows []models.Bucket) ([]ledger.Bucket, error) {
	out := make([]ledger.Bucket, 0, len(rows))
	for i := range rows {
		b, err := FromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, nil
}

func syncMembers(db *gorm.DB, bucket *ledger.Bucket) error {
	rows := make([]models.BucketMember, 0, len(bucket.Members))
	for _, m := range bucket.Members {
		rows = append(rows, models.BucketMember{
			BucketID:  bucket.ID,
			UID:       m.UID,
			Role:      m.Role,
			CreatedAt: m.JoinedAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func syncPaymentRefs(db *gorm.DB, bucket *ledger.Bucket) error {
	rows := make([]models.BucketPaymentRef, 0)
	for _, c := range bucket.Contributions {
		ref := c.PaymentRef()
		if ref == "" {
			continue
		}
		rows = append(rows, models.BucketPaymentRef{
			PaymentRef:     ref,
			BucketID:       bucket.ID,
			ContributionID: c.ID,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
