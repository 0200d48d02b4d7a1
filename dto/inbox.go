package dto

import (
	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/models"
)

// RegisterInboxRequest is the registration payload. It exists because
// credentials are write-only: the model never serializes passwords, so the
// request carries them separately.
type RegisterInboxRequest struct {
	OrganizationID string `json:"organizationId"`
	ProjectID      string `json:"projectId"`
	EmailAddress   string `json:"emailAddress"`

	ImapHost     string `json:"imapHost"`
	ImapPort     int    `json:"imapPort"`
	ImapUsername string `json:"imapUsername"`
	ImapPassword string `json:"imapPassword"`
	ImapSecurity string `json:"imapSecurity"`
	Folder       string `json:"folder"`

	SmtpHost       string `json:"smtpHost"`
	SmtpPort       int    `json:"smtpPort"`
	SmtpUsername   string `json:"smtpUsername"`
	SmtpPassword   string `json:"smtpPassword"`
	SmtpSecurity   string `json:"smtpSecurity"`
	SmtpRequireTLS *bool  `json:"smtpRequireTls"`

	TLSRejectUnauthorized *bool  `json:"tlsRejectUnauthorized"`
	TLSMinVersion         string `json:"tlsMinVersion"`
	SNIServerName         string `json:"sniServerName"`

	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	AutoCreateTask      *bool  `json:"autoCreateTask"`
	DefaultTaskType     string `json:"defaultTaskType"`
	DefaultPriority     string `json:"defaultPriority"`
	DefaultStatusID     string `json:"defaultStatusId"`
	DefaultAssigneeID   string `json:"defaultAssigneeId"`
}

// ToInbox maps the request onto a model row, filling the defaults the
// database would otherwise apply so the poller sees them immediately.
func (r *RegisterInboxRequest) ToInbox() *models.Inbox {
	inbox := &models.Inbox{
		OrganizationID: r.OrganizationID,
		ProjectID:      r.ProjectID,
		EmailAddress:   r.EmailAddress,

		ImapHost:     r.ImapHost,
		ImapPort:     r.ImapPort,
		ImapUsername: r.ImapUsername,
		ImapPassword: r.ImapPassword,
		ImapSecurity: enum.EmailSecurityTLS,
		Folder:       r.Folder,

		SmtpHost:     r.SmtpHost,
		SmtpPort:     r.SmtpPort,
		SmtpUsername: r.SmtpUsername,
		SmtpPassword: r.SmtpPassword,
		SmtpSecurity: enum.EmailSecurityStartTLS,

		TLSMinVersion: r.TLSMinVersion,
		SNIServerName: r.SNIServerName,

		PollIntervalSeconds: r.PollIntervalSeconds,
		DefaultTaskType:     enum.DecodeTaskType(r.DefaultTaskType),
		DefaultPriority:     enum.DecodeTaskPriority(r.DefaultPriority),
		DefaultStatusID:     r.DefaultStatusID,
		DefaultAssigneeID:   r.DefaultAssigneeID,
	}

	inbox.SmtpRequireTLS = r.SmtpRequireTLS == nil || *r.SmtpRequireTLS
	inbox.TLSRejectUnauthorized = r.TLSRejectUnauthorized == nil || *r.TLSRejectUnauthorized
	inbox.AutoCreateTask = r.AutoCreateTask == nil || *r.AutoCreateTask

	if r.ImapSecurity != "" {
		inbox.ImapSecurity = enum.DecodeEmailSecurity(r.ImapSecurity)
	}
	if r.SmtpSecurity != "" {
		inbox.SmtpSecurity = enum.DecodeEmailSecurity(r.SmtpSecurity)
	}
	if inbox.Folder == "" {
		inbox.Folder = "INBOX"
	}
	if inbox.TLSMinVersion == "" {
		inbox.TLSMinVersion = "1.2"
	}
	if inbox.PollIntervalSeconds == 0 {
		inbox.PollIntervalSeconds = 120
	}

	return inbox
}
