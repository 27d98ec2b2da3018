package xerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller's recovery policy. Validation
// errors are user-correctable and never reach the network; Server and
// Network errors are retried transparently; SessionExpired is never retried.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindSessionExpired Kind = "session_expired"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindRequest        Kind = "request"
	KindServer         Kind = "server"
	KindTimeout        Kind = "timeout"
	KindNetwork        Kind = "network"
)

var fallbackMessages = map[Kind]string{
	KindValidation:     "invalid input",
	KindSessionExpired: "session expired, please log in again",
	KindForbidden:      "you do not have permission to do that",
	KindNotFound:       "resource not found",
	KindRequest:        "request failed",
	KindServer:         "something went wrong, please try again",
	KindTimeout:        "the request timed out",
	KindNetwork:        "network error, please check your connection",
}

// Error is a classified application error. Message is always suitable for
// direct display: the server-supplied message when one exists, the generic
// category message otherwise.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Fields     []string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if m, ok := fallbackMessages[e.Kind]; ok {
		return m
	}
	return string(e.Kind)
}

// Is matches on Kind so callers can use errors.Is against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks. Never returned directly.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrSessionExpired = &Error{Kind: KindSessionExpired}
	ErrForbidden      = &Error{Kind: KindForbidden}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrRequest        = &Error{Kind: KindRequest}
	ErrServer         = &Error{Kind: KindServer}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrNetwork        = &Error{Kind: KindNetwork}
)

// New builds a classified error. An empty message falls back to the generic
// category message at display time.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithStatus builds a classified error carrying the HTTP status it was
// derived from.
func WithStatus(kind Kind, message string, status int) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: status}
}

// Validation builds a user-correctable error, optionally naming the rules or
// fields that failed.
func Validation(message string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Retryable reports whether err is transient enough to retry: server-side
// failures and transport failures, never expired sessions or timeouts.
func Retryable(err error) bool {
	return errors.Is(err, ErrServer) || errors.Is(err, ErrNetwork)
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
