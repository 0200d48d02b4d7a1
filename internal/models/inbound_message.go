package models

import "time"

// AttachmentInfo is attachment metadata carried on an InboundMessage. Content
// is never retained; rules only test for presence.
type AttachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Inline      bool   `json:"inline"`
}

// InboundMessage is the canonical form of one fetched mail. It lives for a
// single ingestion cycle; only the derived task and the ingestion record
// outlast it.
type InboundMessage struct {
	InboxID     string
	ImapUID     uint32
	Folder      string
	MessageID   string
	// SyntheticID marks a MessageID derived by hashing because the header was
	// missing; dedup still works on it.
	SyntheticID bool

	From         string
	FromName     string
	To           []string
	Cc           []string
	Subject      string
	CleanSubject string

	// BodyText is the plain-text part, preferred for rule matching. When the
	// mail is HTML-only it holds the tag-stripped HTML instead.
	BodyText string
	// BodyHTML is the sanitized HTML part, retained for display.
	BodyHTML string

	InReplyTo  string
	References []string
	Headers    map[string][]string

	ReceivedAt  time.Time
	Attachments []AttachmentInfo
}

func (m *InboundMessage) HasAttachment() bool {
	return len(m.Attachments) > 0
}

// MatchBody is the text rules evaluate against.
func (m *InboundMessage) MatchBody() string {
	return m.BodyText
}
