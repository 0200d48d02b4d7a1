package interfaces

import (
	"context"
	"time"

	"github.com/taskwell/mailroom/internal/models"
)

// RawMessage is one fetched mail as the transport hands it to the normalizer.
type RawMessage struct {
	UID        uint32
	Folder     string
	ReceivedAt time.Time
	// Body is the full RFC 5322 message as fetched with BODY.PEEK[].
	Body []byte
}

// IMAPConnection is one live, exclusively-owned connection to an inbox's IMAP
// server. Connections must not be shared across goroutines; the poll worker
// that opened one owns it until Close.
type IMAPConnection interface {
	// FetchSince returns messages with UID > sinceUID, ascending by UID.
	FetchSince(ctx context.Context, folder string, sinceUID uint32) ([]*RawMessage, error)
	// Acknowledge flags the message as processed on the server. UIDs must be
	// acknowledged in increasing order.
	Acknowledge(ctx context.Context, folder string, uid uint32) error
	Close()
}

// IMAPClient dials IMAP connections according to an inbox's TLS policy.
type IMAPClient interface {
	Connect(ctx context.Context, inbox *models.Inbox) (IMAPConnection, error)
}

// InboxStatus is the operational view of one inbox exposed on /status.
type InboxStatus struct {
	Connected    bool       `json:"connected"`
	LastError    string     `json:"lastError,omitempty"`
	LastUID      uint32     `json:"lastUid"`
	LastPolledAt *time.Time `json:"lastPolledAt,omitempty"`
}
