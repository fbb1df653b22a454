package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies core failures so callers can render or retry them
type ErrorKind string

const (
	KindInputValidation     ErrorKind = "input_validation"
	KindDataUnavailable     ErrorKind = "data_unavailable"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindExecutionMismatch   ErrorKind = "execution_mismatch"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidTransition   ErrorKind = "invalid_transition"
)

// Error is the structured failure returned by core operations
// ⭐ SSOT: 코어 에러는 모두 이 타입으로 표현
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Code   string    `json:"code,omitempty"`  // instrument code, if any
	Field  string    `json:"field,omitempty"` // offending input field, if any
	Reason string    `json:"reason"`
	Err    error     `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		fmt.Fprintf(&b, " [%s]", e.Field)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode returns a copy of e tagged with an instrument code
func (e *Error) WithCode(code string) *Error {
	c := *e
	c.Code = code
	return &c
}

// InvalidInput reports a rejected request field
func InvalidInput(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInputValidation, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Unavailable reports missing market or ledger data
func Unavailable(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindDataUnavailable, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Conflict reports a lock that could not be acquired
func Conflict(key string, err error) *Error {
	return &Error{Kind: KindConcurrencyConflict, Reason: "resource busy: " + key, Err: err}
}

// Mismatch reports an execution confirmation that no longer applies
func Mismatch(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExecutionMismatch, Reason: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity
func NotFound(entity string, id interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf("%s %v not found", entity, id)}
}

// InvalidTransition reports a forbidden state change
func InvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the caller may retry the same request
func Retryable(err error) bool {
	return IsKind(err, KindConcurrencyConflict)
}
