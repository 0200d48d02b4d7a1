package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/taskwell/mailroom/internal/utils"
)

// ReplyTemplate is the body of an autoReply action, rendered against the
// inbound message before sending.
type ReplyTemplate struct {
	ID             string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string `gorm:"column:organization_id;type:varchar(50);index;not null" json:"organizationId"`
	Name           string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Subject        string `gorm:"column:subject;type:varchar(1000);not null" json:"subject"`
	BodyText       string `gorm:"column:body_text;type:text;not null" json:"bodyText"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (ReplyTemplate) TableName() string {
	return "reply_templates"
}

func (t *ReplyTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("tmpl", 16)
	}
	return nil
}
