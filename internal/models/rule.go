package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/taskwell/mailroom/internal/utils"
)

// Rule is one entry of an inbox's ordered rule set. Conditions hold the boolean
// expression tree, Actions the ordered effect list; both are user-authored JSON
// validated at snapshot compile time, not at write time.
type Rule struct {
	ID          string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	InboxID     string    `gorm:"column:inbox_id;type:varchar(50);index;not null" json:"inboxId"`
	Name        string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Priority    int       `gorm:"column:priority;not null;default:100" json:"priority"`
	Enabled     bool      `gorm:"column:enabled;not null;default:true" json:"enabled"`
	StopOnMatch bool      `gorm:"column:stop_on_match;not null;default:false" json:"stopOnMatch"`
	Conditions  JSONMap   `gorm:"column:conditions;type:jsonb" json:"conditions"`
	Actions     JSONArray `gorm:"column:actions;type:jsonb" json:"actions"`
	// CompileError surfaces a bad regex or unknown operator to the rule owner;
	// a rule with a compile error never matches.
	CompileError string `gorm:"column:compile_error;type:text" json:"compileError"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Rule) TableName() string {
	return "inbox_rules"
}

func (r *Rule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("rule", 16)
	}
	return nil
}
