package normalizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwell/mailroom/interfaces"
)

func raw(uid uint32, body string) *interfaces.RawMessage {
	return &interfaces.RawMessage{
		UID:        uid,
		Folder:     "INBOX",
		ReceivedAt: time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC),
		Body:       []byte(body),
	}
}

func TestNormalize_PlainTextMessage(t *testing.T) {
	body := "From: Alice Smith <Alice.Smith@Example.COM>\r\n" +
		"To: Support <support@taskwell.io>, ops@taskwell.io\r\n" +
		"Cc: Boss <boss@example.com>\r\n" +
		"Subject: Re: Fwd: Login broken\r\n" +
		"Message-ID: <m1@example.com>\r\n" +
		"In-Reply-To: <m0@example.com>\r\n" +
		"References: <m-root@example.com> <m0@example.com>\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		"Cannot log in since this morning.\r\n"

	message, err := Normalize(context.Background(), "inbox_1", raw(7, body))

	require.NoError(t, err)
	assert.Equal(t, "inbox_1", message.InboxID)
	assert.Equal(t, uint32(7), message.ImapUID)
	assert.Equal(t, "alice.smith@example.com", message.From)
	assert.Equal(t, "Alice Smith", message.FromName)
	assert.Equal(t, []string{"support@taskwell.io", "ops@taskwell.io"}, message.To)
	assert.Equal(t, []string{"boss@example.com"}, message.Cc)
	assert.Equal(t, "Re: Fwd: Login broken", message.Subject)
	assert.Equal(t, "Login broken", message.CleanSubject)
	assert.Equal(t, "m1@example.com", message.MessageID)
	assert.False(t, message.SyntheticID)
	assert.Equal(t, "m0@example.com", message.InReplyTo)
	assert.Equal(t, []string{"m-root@example.com", "m0@example.com"}, message.References)
	assert.Contains(t, message.BodyText, "Cannot log in")
	assert.False(t, message.HasAttachment())
}

func TestNormalize_MissingMessageIDGetsStableSyntheticID(t *testing.T) {
	body := "From: alice@example.com\r\n" +
		"To: support@taskwell.io\r\n" +
		"Subject: No id here\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello\r\n"

	first, err := Normalize(context.Background(), "inbox_1", raw(7, body))
	require.NoError(t, err)
	second, err := Normalize(context.Background(), "inbox_1", raw(9, body))
	require.NoError(t, err)

	assert.True(t, first.SyntheticID)
	assert.NotEmpty(t, first.MessageID)
	// The synthetic id depends on envelope fields, not the UID, so a refetch
	// of the same mail dedups.
	assert.Equal(t, first.MessageID, second.MessageID)
}

func TestNormalize_HTMLOnlyMailIsStrippedForMatching(t *testing.T) {
	body := "From: alice@example.com\r\n" +
		"To: support@taskwell.io\r\n" +
		"Subject: html only\r\n" +
		"Message-ID: <m2@example.com>\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n" +
		"\r\n" +
		"<html><body><p>Server <b>down</b></p><script>alert('x')</script></body></html>\r\n"

	message, err := Normalize(context.Background(), "inbox_1", raw(7, body))

	require.NoError(t, err)
	assert.Contains(t, message.BodyText, "Server")
	assert.Contains(t, message.BodyText, "down")
	assert.NotContains(t, message.BodyText, "<b>")
	assert.NotContains(t, message.BodyText, "alert")
	assert.NotContains(t, message.BodyHTML, "script")
}

func TestNormalize_MultipartAttachmentMetadata(t *testing.T) {
	body := "From: alice@example.com\r\n" +
		"To: support@taskwell.io\r\n" +
		"Subject: with attachment\r\n" +
		"Message-ID: <m3@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
		"\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"See the log attached.\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Disposition: attachment; filename=\"error.log\"\r\n" +
		"\r\n" +
		"panic: nil pointer\r\n" +
		"--frontier--\r\n"

	message, err := Normalize(context.Background(), "inbox_1", raw(7, body))

	require.NoError(t, err)
	require.True(t, message.HasAttachment())
	require.Len(t, message.Attachments, 1)
	assert.Equal(t, "error.log", message.Attachments[0].Filename)
	assert.False(t, message.Attachments[0].Inline)
	assert.Contains(t, message.BodyText, "See the log attached.")
}

func TestNormalize_MessageWithoutHeadersFails(t *testing.T) {
	// enmime accepts truncated input without error, so the zero-header check
	// is what rejects it.
	_, err := Normalize(context.Background(), "inbox_1", raw(7, ""))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no headers")
}

func TestSanitizeHTML_RemovesActiveContentKeepsStructure(t *testing.T) {
	dirty := `<p onclick="steal()">Hi <a href="https://example.com" onmouseover="x()">link</a>` +
		`<img src="https://example.com/a.png" alt="pic"><script>alert(1)</script></p>`

	clean := SanitizeHTML(dirty)

	assert.Contains(t, clean, "<p>")
	assert.Contains(t, clean, `href="https://example.com"`)
	assert.Contains(t, clean, `src="https://example.com/a.png"`)
	assert.NotContains(t, clean, "script")
	assert.NotContains(t, clean, "onclick")
	assert.NotContains(t, clean, "onmouseover")
}

func TestStripHTML_LeavesTextOnly(t *testing.T) {
	stripped := StripHTML("<div>Hello <b>world</b></div>")
	assert.NotContains(t, stripped, "<")
	assert.Contains(t, stripped, "Hello")
	assert.Contains(t, stripped, "world")
}
