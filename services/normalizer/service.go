package normalizer

import (
	"bytes"
	"context"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/internal/utils"
)

// Normalize converts a raw fetched mail into its canonical InboundMessage.
// It is a pure function of the raw bytes plus fetch metadata.
func Normalize(ctx context.Context, inboxID string, raw *interfaces.RawMessage) (*models.InboundMessage, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "normalizer.Normalize")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, inboxID)
	span.SetTag("uid", raw.UID)

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw.Body))
	if err != nil {
		err = errors.Wrap(err, "failed to parse message")
		tracing.TraceErr(span, err)
		return nil, err
	}
	// enmime tolerates truncated input; a message with zero headers carries
	// nothing to normalize or dedup on, so treat it as unparseable.
	if len(envelope.GetHeaderKeys()) == 0 {
		err = errors.New("message has no headers")
		tracing.TraceErr(span, err)
		return nil, err
	}

	message := &models.InboundMessage{
		InboxID:    inboxID,
		ImapUID:    raw.UID,
		Folder:     raw.Folder,
		ReceivedAt: raw.ReceivedAt,
		Headers:    make(map[string][]string),
	}

	for _, key := range envelope.GetHeaderKeys() {
		values := envelope.GetHeaderValues(key)
		if len(values) > 0 {
			message.Headers[key] = values
		}
	}

	processAddresses(message, envelope)
	processSubject(message, envelope)
	processMessageID(message, envelope)
	processReferences(message, envelope)
	processBody(message, envelope)
	processAttachments(message, envelope)

	span.SetTag("message.id", message.MessageID)
	span.SetTag("message.synthetic", message.SyntheticID)
	return message, nil
}

func processAddresses(message *models.InboundMessage, envelope *enmime.Envelope) {
	if senders, err := envelope.AddressList("From"); err == nil && len(senders) > 0 {
		sender := senders[0]
		message.FromName = sender.Name
		syntaxValidation := mailvalidate.ValidateEmailSyntax(sender.Address)
		if syntaxValidation.IsValid {
			message.From = syntaxValidation.CleanEmail
		} else {
			message.From = strings.ToLower(strings.TrimSpace(sender.Address))
		}
	}

	if to, err := envelope.AddressList("To"); err == nil {
		for _, addr := range to {
			message.To = append(message.To, strings.ToLower(addr.Address))
		}
	}
	if cc, err := envelope.AddressList("Cc"); err == nil {
		for _, addr := range cc {
			message.Cc = append(message.Cc, strings.ToLower(addr.Address))
		}
	}
}

func processSubject(message *models.InboundMessage, envelope *enmime.Envelope) {
	message.Subject = envelope.GetHeader("Subject")
	message.CleanSubject = utils.NormalizeEmailSubject(message.Subject)
}

// processMessageID extracts the protocol-level id used for dedup. Mail
// without a Message-ID header gets a synthetic one hashed from stable
// envelope fields, so re-fetching the same mail still dedups.
func processMessageID(message *models.InboundMessage, envelope *enmime.Envelope) {
	messageID := utils.NormalizeMessageID(envelope.GetHeader("Message-ID"))
	if messageID != "" {
		message.MessageID = messageID
		return
	}
	message.MessageID = utils.SyntheticMessageID(message.From, message.Subject, message.ReceivedAt)
	message.SyntheticID = true
}

func processReferences(message *models.InboundMessage, envelope *enmime.Envelope) {
	message.InReplyTo = utils.NormalizeMessageID(envelope.GetHeader("In-Reply-To"))

	for _, header := range []string{"References", "In-Reply-To"} {
		for _, ref := range strings.Fields(envelope.GetHeader(header)) {
			ref = utils.NormalizeMessageID(ref)
			if ref != "" && !utils.IsStringInSlice(ref, message.References) {
				message.References = append(message.References, ref)
			}
		}
	}
}

// processBody prefers the plain-text part for matching and keeps sanitized
// HTML for display. HTML-only mail has its markup stripped into BodyText.
func processBody(message *models.InboundMessage, envelope *enmime.Envelope) {
	message.BodyText = envelope.Text
	if envelope.HTML != "" {
		message.BodyHTML = SanitizeHTML(envelope.HTML)
		if strings.TrimSpace(message.BodyText) == "" {
			message.BodyText = strings.TrimSpace(StripHTML(envelope.HTML))
		}
	}
}

func processAttachments(message *models.InboundMessage, envelope *enmime.Envelope) {
	for _, attachment := range envelope.Attachments {
		message.Attachments = append(message.Attachments, models.AttachmentInfo{
			Filename:    attachment.FileName,
			ContentType: attachment.ContentType,
			Size:        len(attachment.Content),
		})
	}
	for _, inline := range envelope.Inlines {
		message.Attachments = append(message.Attachments, models.AttachmentInfo{
			Filename:    inline.FileName,
			ContentType: inline.ContentType,
			Size:        len(inline.Content),
			Inline:      true,
		})
	}
}
