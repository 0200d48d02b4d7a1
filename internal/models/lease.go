package models

import (
	"time"
)

// InboxLease is the durable per-inbox lock that keeps horizontally scaled
// pollers from running two concurrent cycles for the same inbox.
type InboxLease struct {
	InboxID   string    `gorm:"column:inbox_id;type:varchar(50);primaryKey"`
	Owner     string    `gorm:"column:owner;type:varchar(100);not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;type:timestamp;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (InboxLease) TableName() string {
	return "inbox_leases"
}
