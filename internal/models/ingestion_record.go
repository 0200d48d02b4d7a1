package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/utils"
)

// IngestionRecord is the durable trace of one message for one inbox. The unique
// (inbox_id, message_id) pair is the dedup guard against re-poll and re-delivery.
type IngestionRecord struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	InboxID   string `gorm:"column:inbox_id;type:varchar(50);not null;uniqueIndex:idx_ingestion_inbox_message" json:"inboxId"`
	MessageID string `gorm:"column:message_id;type:varchar(255);not null;uniqueIndex:idx_ingestion_inbox_message" json:"messageId"`
	ImapUID   uint32 `gorm:"column:imap_uid;index" json:"imapUid"`
	// SyntheticMessageID marks ids derived by hashing when the header was absent.
	SyntheticMessageID bool `gorm:"column:synthetic_message_id;not null;default:false" json:"syntheticMessageId"`

	Status enum.IngestionStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Stage  enum.IngestionStage  `gorm:"column:stage;type:varchar(20);not null" json:"stage"`

	MatchedRuleIDs  pq.StringArray `gorm:"column:matched_rule_ids;type:text[]" json:"matchedRuleIds"`
	CreatedTaskID   string         `gorm:"column:created_task_id;type:varchar(50);index" json:"createdTaskId"`
	AutoReplySentAt *time.Time     `gorm:"column:auto_reply_sent_at;type:timestamp" json:"autoReplySentAt"`

	Attempts  int    `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError string `gorm:"column:last_error;type:text" json:"lastError"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (IngestionRecord) TableName() string {
	return "ingestion_records"
}

func (r *IngestionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("ingest", 20)
	}
	return nil
}

// Terminal reports whether the record needs no further processing.
func (r *IngestionRecord) Terminal(maxAttempts int) bool {
	switch r.Status {
	case enum.IngestionProcessed, enum.IngestionSkipped:
		return true
	case enum.IngestionFailed:
		return r.Attempts >= maxAttempts
	}
	return false
}
