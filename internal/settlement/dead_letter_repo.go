package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxDeadLetterErrorLen = 1024

// DeadLetterRepository stores settlement events that could not be applied.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Insert(ctx context.Context, entry models.SettlementDeadLetter) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateDeadLetterError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *DeadLetterRepository) FindByEventID(ctx context.Context, eventID string) (*models.SettlementDeadLetter, error) {
	var row models.SettlementDeadLetter
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]models.SettlementDeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.SettlementDeadLetter
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func truncateDeadLetterError(message string) string {
	if len(message) <= maxDeadLetterErrorLen {
		return message
	}
	return message[:maxDeadLetterErrorLen]
}

// PurgeBefore deletes up to limit of the oldest dead letters created before
// cutoff and reports how many went.
func (r *DeadLetterRepository) PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	oldest := conn.Model(&models.SettlementDeadLetter{}).
		Select("id").
		Where("created_at < ?", cutoff).
		Order("created_at").
		Limit(limit)
	res := conn.WithContext(ctx).
		Where("id IN (?)", oldest).
		Delete(&models.SettlementDeadLetter{})
	return res.RowsAffected, res.Error
}
