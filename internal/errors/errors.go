package errors

import (
	stderrors "errors"
	"strings"

	"github.com/pkg/errors"
)

var (
	// common errors
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrInboxExists       = errors.New("inbox already exists")
	ErrInboxNotFound     = errors.New("inbox not found")
	ErrLeaseHeld         = errors.New("inbox lease held by another worker")
	ErrTemplateNotFound  = errors.New("reply template not found")
)

// Kind classifies an engine error for retry and surfacing decisions.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuth is fatal for the inbox cycle until credentials change.
	KindAuth
	// KindTLS covers policy violations and handshake failures, fatal for the cycle.
	KindTLS
	// KindNetwork is transient and retried with backoff.
	KindNetwork
	// KindRuleCompile disables the offending rule only.
	KindRuleCompile
	// KindAction is recorded per-action on the ingestion record.
	KindAction
	// KindDedup marks reprocessing of an acknowledged message; a no-op, not a failure.
	KindDedup
)

type classified struct {
	kind  Kind
	cause error
}

func (e *classified) Error() string { return e.cause.Error() }
func (e *classified) Unwrap() error { return e.cause }

func newClassified(kind Kind, cause error, msg string) error {
	if cause == nil {
		cause = errors.New(msg)
	} else if msg != "" {
		cause = errors.WithMessage(cause, msg)
	}
	return &classified{kind: kind, cause: cause}
}

func AuthError(cause error, msg string) error        { return newClassified(KindAuth, cause, msg) }
func TLSError(cause error, msg string) error         { return newClassified(KindTLS, cause, msg) }
func NetworkError(cause error, msg string) error     { return newClassified(KindNetwork, cause, msg) }
func RuleCompileError(cause error, msg string) error { return newClassified(KindRuleCompile, cause, msg) }
func ActionError(cause error, msg string) error      { return newClassified(KindAction, cause, msg) }
func DedupConflict(msg string) error                 { return newClassified(KindDedup, nil, msg) }

// KindOf returns the classification of err, walking the wrap chain.
func KindOf(err error) Kind {
	var c *classified
	if stderrors.As(err, &c) {
		return c.kind
	}
	return KindUnknown
}

func IsAuthError(err error) bool        { return KindOf(err) == KindAuth }
func IsTLSError(err error) bool         { return KindOf(err) == KindTLS }
func IsNetworkError(err error) bool     { return KindOf(err) == KindNetwork }
func IsRuleCompileError(err error) bool { return KindOf(err) == KindRuleCompile }
func IsActionError(err error) bool      { return KindOf(err) == KindAction }
func IsDedupConflict(err error) bool    { return KindOf(err) == KindDedup }

// IsFatalForCycle reports whether the inbox cycle must stop and surface the
// error to the configuration owner instead of retrying.
func IsFatalForCycle(err error) bool {
	kind := KindOf(err)
	return kind == KindAuth || kind == KindTLS
}

// IsTransient reports whether err is worth a backoff retry within the cycle.
// Unclassified connectivity errors from the IMAP library are sniffed by message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == KindNetwork {
		return true
	}
	if KindOf(err) != KindUnknown {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "EOF")
}
