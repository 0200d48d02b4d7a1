package executor

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

// replyContext is the data a reply template renders against.
type replyContext struct {
	FromName     string
	FromAddress  string
	Subject      string
	CleanSubject string
	TaskID       string
	InboxAddress string
}

// sendAutoReply renders the template and submits it through a bounded slot
// pool so a burst of matches cannot exhaust SMTP connections.
func (e *Executor) sendAutoReply(ctx context.Context, inbox *models.Inbox, message *models.InboundMessage, record *models.IngestionRecord, templateID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Executor.sendAutoReply")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, inbox.ID)
	span.SetTag("template.id", templateID)

	replyTemplate, err := e.templateRepo.GetTemplate(ctx, templateID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	data := replyContext{
		FromName:     message.FromName,
		FromAddress:  message.From,
		Subject:      message.Subject,
		CleanSubject: message.CleanSubject,
		TaskID:       record.CreatedTaskID,
		InboxAddress: inbox.EmailAddress,
	}

	subject, err := renderTemplate("subject", replyTemplate.Subject, data)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if strings.TrimSpace(subject) == "" {
		subject = "Re: " + message.Subject
	}

	body, err := renderTemplate("body", replyTemplate.BodyText, data)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	mail := &interfaces.OutboundMail{
		From:       inbox.EmailAddress,
		To:         []string{message.From},
		Subject:    subject,
		BodyText:   body,
		InReplyTo:  message.MessageID,
		References: append(message.References, message.MessageID),
	}

	select {
	case e.replySlots <- struct{}{}:
		defer func() { <-e.replySlots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := e.smtpClient.Send(ctx, inbox, mail); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	e.log.Infof("inbox %s: auto-reply sent to %s", inbox.ID, message.From)
	return nil
}

func renderTemplate(name, text string, data replyContext) (string, error) {
	parsed, err := template.New(name).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "malformed %s template", name)
	}
	var buffer bytes.Buffer
	if err := parsed.Execute(&buffer, data); err != nil {
		return "", errors.Wrapf(err, "failed to render %s template", name)
	}
	return buffer.String(), nil
}
