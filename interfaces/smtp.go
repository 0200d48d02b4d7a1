package interfaces

import (
	"context"

	"github.com/taskwell/mailroom/internal/models"
)

// OutboundMail is a rendered message ready for SMTP submission.
type OutboundMail struct {
	From      string
	To        []string
	Subject   string
	BodyText  string
	InReplyTo string
	// References carries the thread chain of the message being replied to.
	References []string
}

// SMTPClient sends mail through an inbox's SMTP endpoint, honoring its TLS
// policy. A connection that cannot satisfy SmtpRequireTLS is rejected, never
// downgraded to plaintext.
type SMTPClient interface {
	Send(ctx context.Context, inbox *models.Inbox, mail *OutboundMail) error
}
