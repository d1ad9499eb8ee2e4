package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the canonical failure taxonomy. Adapters classify every
// failure into one of these before re-raising; they never swallow errors.
type ErrorKind string

const (
	// KindValidation rejects a malformed request before any network call.
	KindValidation ErrorKind = "validation"
	// KindAuthInvalid is a credential failure (401/403). The registry flips
	// the instance status to error when it sees one.
	KindAuthInvalid ErrorKind = "auth_invalid"
	// KindRateLimited is an upstream 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindUnavailable is a 5xx or transport-level failure.
	KindUnavailable ErrorKind = "backend_unavailable"
	// KindCancelled covers both caller cancellation and deadline expiry.
	KindCancelled ErrorKind = "cancelled"
	// KindUnsupported marks an operation this execution context cannot
	// perform (e.g. service-account signing outside a trusted environment).
	KindUnsupported ErrorKind = "unsupported"
	// KindSafetyBlocked means the backend's content filter stopped the
	// generation.
	KindSafetyBlocked ErrorKind = "safety_blocked"
	// KindConfigInvalid fails at adapter construction, before first use.
	KindConfigInvalid ErrorKind = "config_invalid"
	// KindBackend is any other backend error, carrying the raw message.
	KindBackend ErrorKind = "backend_error"
)

// Error is the canonical error shape. It carries enough structure (kind,
// backend id, underlying message) for a UI to render an actionable message
// without re-deriving it from raw text.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Backend    string    `json:"backend,omitempty"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Err        error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Backend, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match on kind sentinels created with NewError.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Backend == "" || t.Backend == e.Backend)
}

// NewError builds a canonical error.
func NewError(kind ErrorKind, backend, message string) *Error {
	return &Error{Kind: kind, Backend: backend, Message: message}
}

// NewValidationError rejects a request before any call is made.
func NewValidationError(backend, message string) *Error {
	return &Error{Kind: KindValidation, Backend: backend, Message: message}
}

// NewConfigError fails adapter construction.
func NewConfigError(backend, message string) *Error {
	return &Error{Kind: KindConfigInvalid, Backend: backend, Message: message}
}

// NewUnsupportedError marks a capability boundary.
func NewUnsupportedError(backend, message string) *Error {
	return &Error{Kind: KindUnsupported, Backend: backend, Message: message}
}

// ErrKind reports the canonical kind of err, or KindBackend when err is not
// a canonical error.
func ErrKind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

// ClassifyErr maps a transport-level or context error into the taxonomy.
// Cancellation and deadline expiry become KindCancelled so callers can
// distinguish them from genuine backend failures.
func ClassifyErr(backend string, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindCancelled, Backend: backend, Message: "request cancelled", Err: err}
	default:
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		return &Error{Kind: KindUnavailable, Backend: backend, Message: err.Error(), Err: err}
	}
}

// ClassifyStatus maps a non-200 backend response into the taxonomy. The body
// is probed for the common {"error": {"message": ...}} envelope; when absent
// the raw body becomes the message.
func ClassifyStatus(backend string, statusCode int, body []byte) *Error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &Error{Kind: KindAuthInvalid, Backend: backend, Message: message, StatusCode: statusCode}
	case statusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Backend: backend, Message: message, StatusCode: statusCode}
	case statusCode >= 500:
		return &Error{Kind: KindUnavailable, Backend: backend, Message: message, StatusCode: statusCode}
	default:
		return &Error{Kind: KindBackend, Backend: backend, Message: message, StatusCode: statusCode}
	}
}
