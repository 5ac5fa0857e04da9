// Package services implements the session store operations on top of the
// storage backends: saving and loading sessions, the email recovery index,
// recovery by email, retention cleanup, health metrics and admin tokens.
//
// Every failure returned by this package is an *Error whose Kind is one of
// the sentinel errors below, so callers branch with errors.Is:
//
//	n, err := sessionSvc.Save(ctx, session)
//	switch {
//	case errors.Is(err, services.ErrInvalidInput):
//	    // 400
//	case errors.Is(err, services.ErrStorageFailure):
//	    // 500
//	}
package services

import (
	"errors"
	"strings"

	"github.com/cvperfect/SessionService/internal/database"
	"github.com/rs/zerolog/log"
)

// Error kinds.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrStorageFailure = errors.New("storage failure")
	ErrRecoveryFailed = errors.New("recovery failed")
	ErrPartialCleanup = errors.New("partial cleanup failure")
)

// Recovery failure reasons, returned to clients as the error code.
const (
	ReasonNoSessionFound = "no_session_found"
	ReasonSessionExpired = "session_expired"
	ReasonInvalidEmail   = "invalid_email"
)

// Error describes a failed operation. Key is a session id or an email hash;
// a plaintext email is never put in an Error.
type Error struct {
	Op     string // save, get, delete, lookup, recover, cleanup, ...
	Key    string
	Kind   error
	Reason string // optional machine-readable code
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Detail returns the cause's message, suitable for a 400 response body.
func (e *Error) Detail() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Err.Error()
}

// ReasonOf returns the Reason of the first *Error in err's chain, or "".
func ReasonOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Reason
	}
	return ""
}

func invalidInput(op, key, detail string) *Error {
	return &Error{Op: op, Key: key, Kind: ErrInvalidInput, Err: errors.New(detail)}
}

func notFound(op, key string, err error) *Error {
	return &Error{Op: op, Key: key, Kind: ErrNotFound, Err: err}
}

// storageFailure logs the backend error with its operation and key and
// wraps it. Backends are not retried here; retrying is the caller's call.
func storageFailure(op, key string, err error) *Error {
	log.Error().
		Err(err).
		Str("operation", op).
		Str("key", key).
		Msg("Session storage failure")
	return &Error{Op: op, Key: key, Kind: ErrStorageFailure, Err: err}
}

// classify maps a backend error to NotFound or StorageFailure.
func classify(op, key string, err error) *Error {
	if errors.Is(err, database.ErrNotFound) {
		return notFound(op, key, err)
	}
	return storageFailure(op, key, err)
}
