package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/logger"
	"github.com/taskwell/mailroom/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

// scriptedServer speaks just enough SMTP for one session and records every
// command line the client sent.
type scriptedServer struct {
	listener  net.Listener
	starttls  bool
	mu        sync.Mutex
	commands  []string
	dataLines []string
}

func startScriptedServer(t *testing.T, starttls bool) *scriptedServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &scriptedServer{listener: listener, starttls: starttls}
	go s.serve()
	t.Cleanup(func() { listener.Close() })
	return s
}

func (s *scriptedServer) addr() (string, int) {
	tcpAddr := s.listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", tcpAddr.Port
}

func (s *scriptedServer) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *scriptedServer) serve() {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	write := func(line string) {
		conn.Write([]byte(line + "\r\n"))
	}
	write("220 mail.test ESMTP ready")

	inData := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if inData {
			s.mu.Lock()
			s.dataLines = append(s.dataLines, line)
			s.mu.Unlock()
			if line == "." {
				inData = false
				write("250 OK queued")
			}
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		verb := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(verb, "EHLO"), strings.HasPrefix(verb, "HELO"):
			write("250-mail.test")
			if s.starttls {
				write("250-STARTTLS")
			}
			write("250 AUTH PLAIN")
		case strings.HasPrefix(verb, "AUTH"):
			write("235 accepted")
		case strings.HasPrefix(verb, "MAIL"):
			write("250 OK")
		case strings.HasPrefix(verb, "RCPT"):
			write("250 OK")
		case strings.HasPrefix(verb, "DATA"):
			inData = true
			write("354 go ahead")
		case strings.HasPrefix(verb, "QUIT"):
			write("221 bye")
			return
		default:
			write("250 OK")
		}
	}
}

func testInbox(host string, port int, requireTLS bool) *models.Inbox {
	return &models.Inbox{
		ID:             "inbox_1",
		EmailAddress:   "support@taskwell.io",
		SmtpHost:       host,
		SmtpPort:       port,
		SmtpUsername:   "support@taskwell.io",
		SmtpPassword:   "secret",
		SmtpSecurity:   enum.EmailSecurityStartTLS,
		SmtpRequireTLS: requireTLS,
	}
}

func testMail() *interfaces.OutboundMail {
	return &interfaces.OutboundMail{
		From:      "support@taskwell.io",
		To:        []string{"alice@example.com"},
		Subject:   "Re: Login broken",
		BodyText:  "We are on it.",
		InReplyTo: "m1@example.com",
	}
}

func TestSend_RequireTLSRefusesServerWithoutSTARTTLS(t *testing.T) {
	server := startScriptedServer(t, false)
	host, port := server.addr()
	client := NewSMTPClient(getLogger())

	err := client.Send(context.Background(), testInbox(host, port, true), testMail())

	require.Error(t, err)
	assert.True(t, er.IsTLSError(err), "refusal must classify as a TLS policy error, got %v", err)
	for _, command := range server.recorded() {
		assert.False(t, strings.HasPrefix(strings.ToUpper(command), "MAIL"),
			"no mail may be submitted over plaintext when TLS is required")
	}
}

func TestSend_PlaintextFallbackWhenTLSOptional(t *testing.T) {
	server := startScriptedServer(t, false)
	host, port := server.addr()
	client := NewSMTPClient(getLogger())

	err := client.Send(context.Background(), testInbox(host, port, false), testMail())

	require.NoError(t, err)
	commands := server.recorded()
	joined := strings.ToUpper(strings.Join(commands, "\n"))
	assert.Contains(t, joined, "MAIL FROM:<SUPPORT@TASKWELL.IO>")
	assert.Contains(t, joined, "RCPT TO:<ALICE@EXAMPLE.COM>")

	server.mu.Lock()
	data := strings.Join(server.dataLines, "\n")
	server.mu.Unlock()
	assert.Contains(t, data, "Subject: Re: Login broken")
	assert.Contains(t, data, "In-Reply-To: <m1@example.com>")
	assert.Contains(t, data, "Auto-Submitted: auto-replied")
	assert.Contains(t, data, "We are on it.")
}

func TestSend_RejectsInvalidRecipient(t *testing.T) {
	client := NewSMTPClient(getLogger())
	inbox := testInbox("127.0.0.1", 2525, false)
	mail := testMail()
	mail.To = []string{"not-an-address"}

	err := client.Send(context.Background(), inbox, mail)

	assert.Error(t, err)
}

func TestSend_NoRecipients(t *testing.T) {
	client := NewSMTPClient(getLogger())
	mail := testMail()
	mail.To = nil

	err := client.Send(context.Background(), testInbox("127.0.0.1", 2525, false), mail)

	assert.Error(t, err)
}
