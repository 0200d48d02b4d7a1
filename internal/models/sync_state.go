package models

import (
	"time"
)

// InboxSyncState holds the acknowledged UID low-water mark per inbox folder.
// Restart resumes from LastUID+1; the mark never moves backward.
type InboxSyncState struct {
	ID         string    `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	InboxID    string    `gorm:"column:inbox_id;type:varchar(50);index;not null"`
	FolderName string    `gorm:"column:folder_name;type:varchar(100);index;not null"`
	LastUID    uint32    `gorm:"column:last_uid;not null"`
	LastSync   time.Time `gorm:"column:last_sync;type:timestamp;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (InboxSyncState) TableName() string {
	return "inbox_sync_states"
}
