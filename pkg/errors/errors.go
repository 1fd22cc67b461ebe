package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrPayloadTooLarge  = New("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, "payload exceeds size limit")
	ErrMetadataTooLarge = New("METADATA_TOO_LARGE", http.StatusBadRequest, "metadata exceeds size limit")

	ErrSubjectNotFound = New("SUBJECT_NOT_FOUND", http.StatusNotFound, "subject not found")
	ErrRecordNotFound  = New("RECORD_NOT_FOUND", http.StatusNotFound, "record not found")
	ErrCourseNotFound  = New("COURSE_NOT_FOUND", http.StatusNotFound, "course not found")
	ErrBadgeNotFound   = New("BADGE_NOT_FOUND", http.StatusNotFound, "badge not found")
	ErrNotFound        = New("NOT_FOUND", http.StatusNotFound, "resource not found")

	// Uniqueness violations surface as "already exists", never as transient
	// failures.
	ErrDuplicateDocument = New("DUPLICATE_DOCUMENT", http.StatusBadRequest, "document id already exists")
	ErrDuplicateBadge    = New("DUPLICATE_BADGE", http.StatusBadRequest, "badge already exists for this subject and course")
	ErrConflict          = New("CONFLICT", http.StatusConflict, "conflict")

	ErrCourseNotCompleted = New("COURSE_NOT_COMPLETED", http.StatusBadRequest, "course has not been completed")

	// ErrIntegrity indicates a decryption/authentication failure. Never
	// retried; it may indicate tampering or the wrong key.
	ErrIntegrity        = New("INTEGRITY_ERROR", http.StatusInternalServerError, "payload integrity check failed")
	ErrAnchorUnresolved = New("ANCHOR_UNRESOLVED", http.StatusInternalServerError, "ledger anchor missing or malformed")
	ErrAdapterFailure   = New("ADAPTER_FAILURE", http.StatusInternalServerError, "external store call failed")

	// ErrCacheMiss is internal to the caching layer and never reaches a
	// client; a miss falls through to the document store.
	ErrCacheMiss = New("CACHE_MISS", http.StatusInternalServerError, "cache miss")

	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// AdapterFailure tags a failed external-store call with the pipeline step
// that produced it, so callers can tell whether the private payload was
// durably stored before the failure.
func AdapterFailure(step string, err error) *Error {
	return Wrap(err, ErrAdapterFailure.Code, ErrAdapterFailure.Status, fmt.Sprintf("%s adapter call failed", step))
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	e := FromError(err)
	return e != nil && target != nil && e.Code == target.Code
}
