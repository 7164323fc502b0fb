package friends

import (
	"context"
	"strings"

	"github.com/bucketshare/bucketshare-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository answers friendship questions. The friend graph itself is managed elsewhere.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AreFriends reports whether a and b are connected.
func (r *Repository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	low, high, ok := orderPair(a, b)
	if !ok {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("uid_low = ? AND uid_high = ?", low, high).
		Count(&count).Error
	return count > 0, err
}

// Add records a friendship between a and b. Adding an existing pair is a no-op.
func (r *Repository) Add(ctx context.Context, a, b string) error {
	low, high, ok := orderPair(a, b)
	if !ok {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Friendship{UIDLow: low, UIDHigh: high}).Error
}

func orderPair(a, b string) (string, string, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return "", "", false
	}
	if a > b {
		a, b = b, a
	}
	return a, b, true
}
