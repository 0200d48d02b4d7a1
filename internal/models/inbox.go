package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/utils"
)

// Inbox is one monitored mailbox owned by a project. Credentials are write-only
// to API consumers.
type Inbox struct {
	ID             string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string `gorm:"column:organization_id;type:varchar(50);index;not null" json:"organizationId"`
	ProjectID      string `gorm:"column:project_id;type:varchar(50);index;not null" json:"projectId"`
	EmailAddress   string `gorm:"column:email_address;type:varchar(255);index;not null" json:"emailAddress"`
	// IMAP configuration
	ImapHost     string             `gorm:"column:imap_host;type:varchar(255);not null" json:"imapHost"`
	ImapPort     int                `gorm:"column:imap_port;not null" json:"imapPort"`
	ImapUsername string             `gorm:"column:imap_username;type:varchar(255);not null" json:"imapUsername"`
	ImapPassword string             `gorm:"column:imap_password;type:varchar(255);not null" json:"-"`
	ImapSecurity enum.EmailSecurity `gorm:"column:imap_security;type:varchar(20);not null;default:ssl" json:"imapSecurity"`
	Folder       string             `gorm:"column:folder;type:varchar(100);not null;default:INBOX" json:"folder"`
	// SMTP configuration
	SmtpHost       string             `gorm:"column:smtp_host;type:varchar(255);not null" json:"smtpHost"`
	SmtpPort       int                `gorm:"column:smtp_port;not null" json:"smtpPort"`
	SmtpUsername   string             `gorm:"column:smtp_username;type:varchar(255);not null" json:"smtpUsername"`
	SmtpPassword   string             `gorm:"column:smtp_password;type:varchar(255);not null" json:"-"`
	SmtpSecurity   enum.EmailSecurity `gorm:"column:smtp_security;type:varchar(20);not null;default:starttls" json:"smtpSecurity"`
	SmtpRequireTLS bool               `gorm:"column:smtp_require_tls;not null;default:true" json:"smtpRequireTls"`
	// TLS policy, shared by both directions
	TLSRejectUnauthorized bool   `gorm:"column:tls_reject_unauthorized;not null;default:true" json:"tlsRejectUnauthorized"`
	TLSMinVersion         string `gorm:"column:tls_min_version;type:varchar(10);not null;default:1.2" json:"tlsMinVersion"`
	SNIServerName         string `gorm:"column:sni_server_name;type:varchar(255)" json:"sniServerName"`
	// Ingestion behavior
	PollIntervalSeconds int                `gorm:"column:poll_interval_seconds;not null;default:120" json:"pollIntervalSeconds"`
	AutoCreateTask      bool               `gorm:"column:auto_create_task;not null;default:true" json:"autoCreateTask"`
	DefaultTaskType     enum.TaskType      `gorm:"column:default_task_type;type:varchar(50);not null;default:TASK" json:"defaultTaskType"`
	DefaultPriority     enum.TaskPriority  `gorm:"column:default_priority;type:varchar(20);not null;default:MEDIUM" json:"defaultPriority"`
	DefaultStatusID     string             `gorm:"column:default_status_id;type:varchar(50)" json:"defaultStatusId"`
	DefaultAssigneeID   string             `gorm:"column:default_assignee_id;type:varchar(50)" json:"defaultAssigneeId"`
	// Status information
	ConnectionStatus enum.ConnectionStatus `gorm:"column:connection_status;type:varchar(50)" json:"connectionStatus"`
	ErrorMessage     string                `gorm:"column:error_message;type:text" json:"errorMessage"`
	LastPolledAt     *time.Time            `gorm:"column:last_polled_at;type:timestamp" json:"lastPolledAt"`
	// Standard timestamps
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Inbox) TableName() string {
	return "inboxes"
}

func (i *Inbox) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = utils.GenerateNanoIDWithPrefix("inbox", 16)
	}
	return nil
}
