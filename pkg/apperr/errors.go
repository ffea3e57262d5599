// Package apperr defines the typed errors surfaced by the approval workflow.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindForbidden          Kind = "FORBIDDEN"
	KindIllegalTransition  Kind = "ILLEGAL_TRANSITION"
	KindDuplicateDecision  Kind = "DUPLICATE_DECISION"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindValidationFailed   Kind = "VALIDATION_FAILED"
	KindInvalidState       Kind = "INVALID_STATE"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindInternal           Kind = "INTERNAL"
)

// Error is a typed workflow error.
type Error struct {
	Kind    Kind              `json:"code"`
	Message string            `json:"message"`
	State   string            `json:"state,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Message)
	if e.State != "" {
		fmt.Fprintf(&b, " (state %s)", e.State)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, apperr.ErrNotFound) matches any NotFound error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindIllegalTransition, KindDuplicateDecision, KindInvalidState:
		return http.StatusConflict
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrIllegalTransition  = &Error{Kind: KindIllegalTransition, Message: "illegal transition"}
	ErrDuplicateDecision  = &Error{Kind: KindDuplicateDecision, Message: "decision already recorded"}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed, Message: "precondition failed"}
	ErrValidationFailed   = &Error{Kind: KindValidationFailed, Message: "validation failed"}
	ErrInvalidState       = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal error"}
)

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

// IllegalTransition carries the current state so callers can resync.
func IllegalTransition(state string, format string, args ...interface{}) *Error {
	e := New(KindIllegalTransition, format, args...)
	e.State = state
	return e
}

func DuplicateDecision(format string, args ...interface{}) *Error {
	return New(KindDuplicateDecision, format, args...)
}

func PreconditionFailed(format string, args ...interface{}) *Error {
	return New(KindPreconditionFailed, format, args...)
}

// ValidationFailed reports malformed input with per-field detail.
func ValidationFailed(fields map[string]string) *Error {
	return &Error{Kind: KindValidationFailed, Message: "validation failed", Fields: fields}
}

func InvalidState(state string, format string, args ...interface{}) *Error {
	e := New(KindInvalidState, format, args...)
	e.State = state
	return e
}

// FromError normalises any error into an *Error. Untyped errors become INTERNAL.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, KindInternal, ErrInternal.Message)
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if e := FromError(err); e != nil {
		return e.Kind
	}
	return ""
}
