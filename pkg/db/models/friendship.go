package models

import "time"

// Friendship is an unordered pair; UIDLow always sorts before UIDHigh.
type Friendship struct {
	UIDLow    string    `gorm:"column:uid_low;primaryKey"`
	UIDHigh   string    `gorm:"column:uid_high;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
