package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf_SurvivesWrapping(t *testing.T) {
	err := AuthError(pkgerrors.New("535 bad credentials"), "IMAP login failed")
	wrapped := pkgerrors.WithMessage(err, "inbox inbox_1")

	assert.Equal(t, KindAuth, KindOf(wrapped))
	assert.True(t, IsAuthError(wrapped))
	assert.Contains(t, wrapped.Error(), "535 bad credentials")
}

func TestIsFatalForCycle(t *testing.T) {
	assert.True(t, IsFatalForCycle(AuthError(nil, "login failed")))
	assert.True(t, IsFatalForCycle(TLSError(nil, "handshake failed")))
	assert.False(t, IsFatalForCycle(NetworkError(nil, "connection refused")))
	assert.False(t, IsFatalForCycle(ActionError(nil, "task create failed")))
	assert.False(t, IsFatalForCycle(pkgerrors.New("something else")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NetworkError(nil, "dial timeout")))
	assert.False(t, IsTransient(AuthError(nil, "login failed")))
	assert.False(t, IsTransient(nil))

	// Unclassified connectivity errors from the IMAP library are sniffed.
	assert.True(t, IsTransient(pkgerrors.New("imap: connection closed")))
	assert.True(t, IsTransient(pkgerrors.New("read tcp: i/o timeout")))
	assert.False(t, IsTransient(pkgerrors.New("mailbox does not exist")))

	// A classified non-network error never retries on message sniffing alone.
	assert.False(t, IsTransient(ActionError(pkgerrors.New("i/o timeout"), "send failed")))
}

func TestDedupConflict(t *testing.T) {
	err := DedupConflict("message already processed")
	assert.True(t, IsDedupConflict(err))
	assert.False(t, IsFatalForCycle(err))
}
