package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorises errors surfaced by stores and the mutation pipeline.
type ErrorCode string

const (
	// ErrCodePersist indicates a write to the backing medium failed
	// (network or auth failure for remote media, quota or serialisation
	// failure for local ones). In-memory state is not rolled back.
	ErrCodePersist ErrorCode = "PERSIST"

	// ErrCodeNotFound indicates an update or fetch-for-edit targeted a
	// missing id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation indicates a required field is absent or malformed.
	ErrCodeValidation ErrorCode = "VALIDATION"
)

// Error is the structured error returned across package boundaries.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the operation that failed ("insert", "save", "update", ...).
	Op string

	// Kind is the affected collection, when known.
	Kind Kind

	// ID is the affected record, when known.
	ID ID

	// Field names the offending field for validation errors.
	Field string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Kind != "" && e.ID != "":
		return fmt.Sprintf("%s: %s %s %s: %s", e.Code, e.Op, e.Kind, e.ID, msg)
	case e.Kind != "" && e.Field != "":
		return fmt.Sprintf("%s: %s %s.%s: %s", e.Code, e.Op, e.Kind, e.Field, msg)
	case e.Kind != "":
		return fmt.Sprintf("%s: %s %s: %s", e.Code, e.Op, e.Kind, msg)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewPersistError wraps a backing-medium failure.
func NewPersistError(op string, kind Kind, err error) *Error {
	return &Error{Code: ErrCodePersist, Op: op, Kind: kind, Err: err}
}

// NewNotFoundError reports a missing record.
func NewNotFoundError(op string, kind Kind, id ID) *Error {
	return &Error{Code: ErrCodeNotFound, Op: op, Kind: kind, ID: id, Message: "record not found"}
}

// NewValidationError reports a rejected field.
func NewValidationError(kind Kind, field, message string) *Error {
	return &Error{Code: ErrCodeValidation, Op: "validate", Kind: kind, Field: field, Message: message}
}

// CodeOf returns the ErrorCode of err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsPersist reports whether err is (or wraps) a persist error.
func IsPersist(err error) bool { return CodeOf(err) == ErrCodePersist }

// IsNotFound reports whether err is (or wraps) a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }
