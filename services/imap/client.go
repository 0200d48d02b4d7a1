package imap

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

const (
	dialTimeout  = 30 * time.Second
	fetchTimeout = 60 * time.Second
)

type imapClient struct {
	log logger.Logger
}

func NewIMAPClient(log logger.Logger) interfaces.IMAPClient {
	return &imapClient{log: log}
}

// Connect dials, negotiates TLS per the inbox policy, and authenticates.
func (s *imapClient) Connect(ctx context.Context, inbox *models.Inbox) (interfaces.IMAPConnection, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapClient.Connect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, inbox.ID)
	span.SetTag("server", inbox.ImapHost)
	span.SetTag("port", inbox.ImapPort)
	span.SetTag("security", inbox.ImapSecurity)

	serverAddr := fmt.Sprintf("%s:%d", inbox.ImapHost, inbox.ImapPort)

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	switch inbox.ImapSecurity {
	case enum.EmailSecurityTLS:
		tlsConfig, cfgErr := inbox.TLSClientConfig(inbox.ImapHost)
		if cfgErr != nil {
			tracing.TraceErr(span, cfgErr)
			return nil, cfgErr
		}
		if tlsConfig.InsecureSkipVerify {
			s.log.Warnf("inbox %s: certificate verification disabled", inbox.ID)
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
		if err != nil {
			err = classifyDialErr(err, serverAddr)
			tracing.TraceErr(span, err)
			return nil, err
		}
	case enum.EmailSecurityStartTLS:
		tlsConfig, cfgErr := inbox.TLSClientConfig(inbox.ImapHost)
		if cfgErr != nil {
			tracing.TraceErr(span, cfgErr)
			return nil, cfgErr
		}
		if tlsConfig.InsecureSkipVerify {
			s.log.Warnf("inbox %s: certificate verification disabled", inbox.ID)
		}
		c, err = client.DialWithDialer(dialer, serverAddr)
		if err != nil {
			err = er.NetworkError(err, fmt.Sprintf("failed to connect to %s", serverAddr))
			tracing.TraceErr(span, err)
			return nil, err
		}
		if err = c.StartTLS(tlsConfig); err != nil {
			c.Logout()
			err = er.TLSError(err, "STARTTLS negotiation failed")
			tracing.TraceErr(span, err)
			return nil, err
		}
	default:
		c, err = client.DialWithDialer(dialer, serverAddr)
		if err != nil {
			err = er.NetworkError(err, fmt.Sprintf("failed to connect to %s", serverAddr))
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	c.Timeout = dialTimeout
	if err = c.Login(inbox.ImapUsername, inbox.ImapPassword); err != nil {
		c.Logout()
		err = er.AuthError(err, fmt.Sprintf("failed to login as %s", inbox.ImapUsername))
		tracing.TraceErr(span, err)
		return nil, err
	}
	c.Timeout = 0

	span.SetTag("success", true)
	return &imapConnection{c: c, inboxID: inbox.ID, log: s.log}, nil
}

// classifyDialErr separates TLS handshake failures from plain network faults.
func classifyDialErr(err error, serverAddr string) error {
	msg := err.Error()
	if strings.Contains(msg, "tls:") ||
		strings.Contains(msg, "x509:") ||
		strings.Contains(msg, "certificate") {
		return er.TLSError(err, fmt.Sprintf("TLS handshake with %s failed", serverAddr))
	}
	return er.NetworkError(err, fmt.Sprintf("failed to connect to %s", serverAddr))
}

type imapConnection struct {
	c       *client.Client
	inboxID string
	log     logger.Logger

	selectedFolder string
	lastAckedUID   uint32
}

func (conn *imapConnection) selectFolder(folder string) error {
	if conn.selectedFolder == folder {
		return nil
	}
	conn.c.Timeout = dialTimeout
	_, err := conn.c.Select(folder, false)
	conn.c.Timeout = 0
	if err != nil {
		return er.NetworkError(err, fmt.Sprintf("error selecting folder %s", folder))
	}
	conn.selectedFolder = folder
	return nil
}

// FetchSince pulls every message with UID > sinceUID from folder, ascending.
func (conn *imapConnection) FetchSince(ctx context.Context, folder string, sinceUID uint32) ([]*interfaces.RawMessage, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapConnection.FetchSince")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, conn.inboxID)
	span.SetTag("folder", folder)
	span.SetTag("since.uid", sinceUID)

	if err := conn.selectFolder(folder); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Search for UIDs greater than the low-water mark
	criteria := goimap.NewSearchCriteria()
	uidRange := new(goimap.SeqSet)
	uidRange.AddRange(sinceUID+1, 0)
	criteria.Uid = uidRange

	conn.c.Timeout = dialTimeout
	uids, err := conn.c.UidSearch(criteria)
	conn.c.Timeout = 0
	if err != nil {
		err = er.NetworkError(err, "error searching for new messages")
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Servers return UID >= sinceUID+1, but some round the range down; filter
	// to keep the contract strict.
	filtered := uids[:0]
	for _, uid := range uids {
		if uid > sinceUID {
			filtered = append(filtered, uid)
		}
	}
	uids = filtered

	span.SetTag("result.count", len(uids))
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{
		goimap.FetchEnvelope,
		goimap.FetchFlags,
		goimap.FetchInternalDate,
		section.FetchItem(),
		goimap.FetchUid,
	}

	messages := make(chan *goimap.Message, 10)
	done := make(chan error, 1)

	conn.c.Timeout = fetchTimeout

	go func() {
		done <- conn.c.UidFetch(seqSet, items, messages)
	}()

	var fetched []*interfaces.RawMessage
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			conn.log.Warnf("inbox %s: message UID %d has no body section", conn.inboxID, msg.Uid)
			continue
		}
		raw, readErr := io.ReadAll(body)
		if readErr != nil {
			conn.log.Warnf("inbox %s: error reading message UID %d: %v", conn.inboxID, msg.Uid, readErr)
			continue
		}
		fetched = append(fetched, &interfaces.RawMessage{
			UID:        msg.Uid,
			Folder:     folder,
			ReceivedAt: msg.InternalDate,
			Body:       raw,
		})
	}

	if err = <-done; err != nil {
		conn.c.Timeout = 0
		err = er.NetworkError(err, "error fetching messages")
		tracing.TraceErr(span, err)
		return nil, err
	}
	conn.c.Timeout = 0

	// The pipeline requires ascending UID order; reject a server that breaks it.
	for i := 1; i < len(fetched); i++ {
		if fetched[i].UID < fetched[i-1].UID {
			err = fmt.Errorf("server returned messages out of UID order")
			tracing.TraceErr(span, err)
			return nil, er.NetworkError(err, "unordered fetch response")
		}
	}

	return fetched, nil
}

// Acknowledge marks the message seen on the server. Acknowledgments must
// arrive in increasing UID order; a lower UID than the last one is refused.
func (conn *imapConnection) Acknowledge(ctx context.Context, folder string, uid uint32) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapConnection.Acknowledge")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagInbox(span, conn.inboxID)
	span.SetTag("uid", uid)

	if uid < conn.lastAckedUID {
		err := fmt.Errorf("acknowledge out of order: uid %d after %d", uid, conn.lastAckedUID)
		tracing.TraceErr(span, err)
		return err
	}

	if err := conn.selectFolder(folder); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)
	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	flags := []interface{}{goimap.SeenFlag}

	conn.c.Timeout = dialTimeout
	err := conn.c.UidStore(seqSet, item, flags, nil)
	conn.c.Timeout = 0
	if err != nil {
		err = er.NetworkError(err, "error flagging message as seen")
		tracing.TraceErr(span, err)
		return err
	}

	conn.lastAckedUID = uid
	return nil
}

func (conn *imapConnection) Close() {
	if conn.c == nil {
		return
	}

	done := make(chan error, 1)
	conn.c.Timeout = 5 * time.Second
	go func() {
		done <- conn.c.Logout()
	}()

	select {
	case err := <-done:
		if err != nil {
			conn.log.Warnf("inbox %s: error during logout: %v", conn.inboxID, err)
		}
	case <-time.After(5 * time.Second):
		conn.log.Warnf("inbox %s: logout timed out", conn.inboxID)
	}
}
