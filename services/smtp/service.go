package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/internal/utils"
)

type smtpClient struct {
	log logger.Logger
}

func NewSMTPClient(log logger.Logger) interfaces.SMTPClient {
	return &smtpClient{log: log}
}

// Send submits mail through the inbox's SMTP endpoint. When the inbox
// requires TLS, a server that cannot negotiate it gets a refusal, never a
// plaintext fallback.
func (s *smtpClient) Send(ctx context.Context, inbox *models.Inbox, mail *interfaces.OutboundMail) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "smtpClient.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, inbox.ID)
	span.SetTag("smtp.server", inbox.SmtpHost)
	span.SetTag("smtp.security", inbox.SmtpSecurity)

	if len(mail.To) == 0 {
		err := errors.New("no recipients")
		tracing.TraceErr(span, err)
		return err
	}
	for _, recipient := range mail.To {
		validation := mailvalidate.ValidateEmailSyntax(recipient)
		if !validation.IsValid {
			err := errors.Errorf("invalid recipient address %s", recipient)
			tracing.TraceErr(span, err)
			return err
		}
	}

	buffer, err := buildMessage(inbox, mail)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	addr := fmt.Sprintf("%s:%d", inbox.SmtpHost, inbox.SmtpPort)
	auth := smtp.PlainAuth("", inbox.SmtpUsername, inbox.SmtpPassword, inbox.SmtpHost)

	switch inbox.SmtpSecurity {
	case enum.EmailSecurityTLS:
		err = s.sendWithExplicitTLS(ctx, inbox, addr, auth, mail.From, mail.To, buffer)
	default:
		err = s.sendWithSTARTTLS(ctx, inbox, addr, auth, mail.From, mail.To, buffer)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *smtpClient) sendWithSTARTTLS(ctx context.Context, inbox *models.Inbox, addr string, auth smtp.Auth, from string, recipients []string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "smtpClient.sendWithSTARTTLS")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_server", inbox.SmtpHost)
	span.LogKV("from_address", from)

	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		err = er.NetworkError(err, "failed to connect to SMTP server")
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, inbox.SmtpHost)
	if err != nil {
		err = er.NetworkError(err, "failed to create SMTP client")
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		if inbox.SmtpRequireTLS {
			err = er.TLSError(errors.New("server does not advertise STARTTLS"), "TLS required but unavailable")
			tracing.TraceErr(span, err)
			return err
		}
		s.log.Warnf("inbox %s: sending without TLS, server lacks STARTTLS", inbox.ID)
	} else {
		tlsConfig, cfgErr := inbox.TLSClientConfig(inbox.SmtpHost)
		if cfgErr != nil {
			tracing.TraceErr(span, cfgErr)
			return cfgErr
		}
		if err = client.StartTLS(tlsConfig); err != nil {
			err = er.TLSError(err, "failed to start TLS")
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err = client.Auth(auth); err != nil {
		err = er.AuthError(err, "SMTP authentication failed")
		tracing.TraceErr(span, err)
		return err
	}

	return submit(span, client, from, recipients, buffer)
}

// sendWithExplicitTLS sends over an implicit TLS connection
func (s *smtpClient) sendWithExplicitTLS(ctx context.Context, inbox *models.Inbox, addr string, auth smtp.Auth, from string, recipients []string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "smtpClient.sendWithExplicitTLS")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("address", addr)

	tlsConfig, err := inbox.TLSClientConfig(inbox.SmtpHost)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		err = classifyDialErr(err, addr)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, inbox.SmtpHost)
	if err != nil {
		err = er.NetworkError(err, "failed to create SMTP client")
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		err = er.AuthError(err, "SMTP authentication failed")
		tracing.TraceErr(span, err)
		return err
	}

	return submit(span, client, from, recipients, buffer)
}

func submit(span opentracing.Span, client *smtp.Client, from string, recipients []string, buffer *bytes.Buffer) error {
	if err := client.Mail(from); err != nil {
		err = errors.Wrap(err, "SMTP MAIL command failed")
		tracing.TraceErr(span, err)
		return err
	}

	for _, recipient := range recipients {
		if err := client.Rcpt(recipient); err != nil {
			err = errors.Wrapf(err, "SMTP RCPT command failed for %s", recipient)
			tracing.TraceErr(span, err)
			return err
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = errors.Wrap(err, "SMTP DATA command failed")
		tracing.TraceErr(span, err)
		return err
	}

	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		err = errors.Wrap(err, "failed to write email data")
		tracing.TraceErr(span, err)
		return err
	}

	if err = dataWriter.Close(); err != nil {
		err = errors.Wrap(err, "failed to close data writer")
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}

func classifyDialErr(err error, addr string) error {
	msg := err.Error()
	if strings.Contains(msg, "tls:") ||
		strings.Contains(msg, "x509:") ||
		strings.Contains(msg, "certificate") {
		return er.TLSError(err, fmt.Sprintf("TLS handshake with %s failed", addr))
	}
	return er.NetworkError(err, fmt.Sprintf("failed to connect to %s", addr))
}

// buildMessage assembles the RFC 5322 wire form of an outbound reply.
func buildMessage(inbox *models.Inbox, mail *interfaces.OutboundMail) (*bytes.Buffer, error) {
	from := mail.From
	if from == "" {
		from = inbox.EmailAddress
	}

	var buffer bytes.Buffer
	buffer.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buffer.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(mail.To, ", ")))
	buffer.WriteString(fmt.Sprintf("Subject: %s\r\n", mail.Subject))
	buffer.WriteString(fmt.Sprintf("Message-ID: %s\r\n", utils.GenerateMessageID(domainOf(from), "")))
	buffer.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	if mail.InReplyTo != "" {
		buffer.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", utils.NormalizeMessageID(mail.InReplyTo)))
	}
	if len(mail.References) > 0 {
		refs := make([]string, 0, len(mail.References))
		for _, ref := range mail.References {
			refs = append(refs, "<"+utils.NormalizeMessageID(ref)+">")
		}
		buffer.WriteString(fmt.Sprintf("References: %s\r\n", strings.Join(refs, " ")))
	}
	buffer.WriteString("MIME-Version: 1.0\r\n")
	buffer.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buffer.WriteString("Auto-Submitted: auto-replied\r\n")
	buffer.WriteString("\r\n")
	buffer.WriteString(mail.BodyText)

	return &buffer, nil
}

func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return "localhost"
	}
	return address[at+1:]
}
