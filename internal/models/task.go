package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/utils"
)

// Task carries only the fields the engine reads and writes. The full task
// schema is owned by the task service.
type Task struct {
	ID             string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string `gorm:"column:organization_id;type:varchar(50);index;not null" json:"organizationId"`
	ProjectID      string `gorm:"column:project_id;type:varchar(50);index;not null" json:"projectId"`

	Title       string            `gorm:"column:title;type:varchar(1000);not null" json:"title"`
	Description string            `gorm:"column:description;type:text" json:"description"`
	TaskType    enum.TaskType     `gorm:"column:task_type;type:varchar(50);not null" json:"taskType"`
	Priority    enum.TaskPriority `gorm:"column:priority;type:varchar(20);not null" json:"priority"`
	StatusID    string            `gorm:"column:status_id;type:varchar(50)" json:"statusId"`
	AssigneeID  string            `gorm:"column:assignee_id;type:varchar(50);index" json:"assigneeId"`
	Labels      pq.StringArray    `gorm:"column:labels;type:text[]" json:"labels"`

	// Provenance
	SourceInboxID   string `gorm:"column:source_inbox_id;type:varchar(50);index" json:"sourceInboxId"`
	SourceMessageID string `gorm:"column:source_message_id;type:varchar(255);index" json:"sourceMessageId"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("task", 16)
	}
	return nil
}
