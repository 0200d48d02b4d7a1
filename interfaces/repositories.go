package interfaces

import (
	"context"
	"time"

	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/models"
)

type InboxRepository interface {
	GetInboxes(ctx context.Context) ([]*models.Inbox, error)
	GetInbox(ctx context.Context, id string) (*models.Inbox, error)
	SaveInbox(ctx context.Context, inbox *models.Inbox) error
	DeleteInbox(ctx context.Context, id string) error
	UpdateConnectionStatus(ctx context.Context, id string, status enum.ConnectionStatus, errorMessage string) error
	UpdateLastPolledAt(ctx context.Context, id string, at time.Time) error
}

type RuleRepository interface {
	// GetRulesForInbox returns enabled and disabled rules ordered by
	// (priority asc, created_at asc, id asc).
	GetRulesForInbox(ctx context.Context, inboxID string) ([]*models.Rule, error)
	SaveRule(ctx context.Context, rule *models.Rule) error
	SetCompileError(ctx context.Context, ruleID string, message string) error
}

type IngestionRecordRepository interface {
	GetRecord(ctx context.Context, inboxID, messageID string) (*models.IngestionRecord, error)
	CreateRecord(ctx context.Context, record *models.IngestionRecord) error
	UpdateRecord(ctx context.Context, record *models.IngestionRecord) error
	// ClaimAutoReply atomically stamps AutoReplySentAt; it returns false when a
	// previous attempt already claimed the send.
	ClaimAutoReply(ctx context.Context, recordID string) (bool, error)
	GetFailedRecords(ctx context.Context, inboxID string, maxAttempts int) ([]*models.IngestionRecord, error)
}

type SyncStateRepository interface {
	GetSyncState(ctx context.Context, inboxID, folderName string) (*models.InboxSyncState, error)
	// SaveSyncState persists a new UID low-water mark. Marks only move forward;
	// a lower UID than the stored one is rejected.
	SaveSyncState(ctx context.Context, state *models.InboxSyncState) error
	DeleteInboxSyncStates(ctx context.Context, inboxID string) error
}

type LeaseRepository interface {
	// AcquireLease takes or renews the per-inbox lease for owner. It returns
	// errors.ErrLeaseHeld when another live owner holds it.
	AcquireLease(ctx context.Context, inboxID, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, inboxID, owner string) error
}

type TaskRepository interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
	CreateTask(ctx context.Context, task *models.Task) error
	UpdateTask(ctx context.Context, task *models.Task) error
}

type ReplyTemplateRepository interface {
	GetTemplate(ctx context.Context, id string) (*models.ReplyTemplate, error)
}
