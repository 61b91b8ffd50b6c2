// Package apperrors classifies failures so handlers can pick a status code
// without knowing which layer raised them.
package apperrors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")

	// A remote service the request depends on failed, is being avoided, or
	// did not answer in time.
	ErrUpstream        = errors.New("upstream error")
	ErrUnavailable     = errors.New("unavailable")
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// Error is a classified failure. Message is what the client sees.
type Error struct {
	Sentinel error
	Message  string
	Field    string // request field at fault, e.g. "step" or "config_data"
	Resource string // "job", "module", "log", "path"
	Op       string // failing operation for internal errors, e.g. "job.launch"
	Cause    error
	Stack    string
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the classification and the underlying cause, so
// errors.Is(err, fs.ErrNotExist) still works on an internal error.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// LogValue keeps the stack out of log lines; it is only sent to clients.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("msg", e.Message)}
	if e.Field != "" {
		attrs = append(attrs, slog.String("field", e.Field))
	}
	if e.Resource != "" {
		attrs = append(attrs, slog.String("resource", e.Resource))
	}
	if e.Op != "" {
		attrs = append(attrs, slog.String("op", e.Op))
	}
	return slog.GroupValue(attrs...)
}

// Validation rejects a request field.
func Validation(field, message string) error {
	return &Error{Sentinel: ErrValidation, Message: message, Field: field}
}

// NotFound reports a missing resource identified by id.
func NotFound(resource, id string) error {
	return Missing(resource, fmt.Sprintf("%s %s not found", resource, id))
}

// Missing reports a missing resource with a caller-chosen message.
func Missing(resource, message string) error {
	return &Error{Sentinel: ErrNotFound, Message: message, Resource: resource}
}

// Conflict reports a resource that is busy or already claimed.
func Conflict(resource, reason string) error {
	return &Error{Sentinel: ErrConflict, Message: reason, Resource: resource}
}

// Forbidden refuses access to a resource.
func Forbidden(resource, reason string) error {
	return &Error{Sentinel: ErrForbidden, Message: reason, Resource: resource}
}

// Upstream reports a failed call to a remote resource.
func Upstream(resource, message string, cause error) error {
	return &Error{Sentinel: ErrUpstream, Message: message, Resource: resource, Cause: cause}
}

// UpstreamTimeout reports a remote resource that did not answer in time.
func UpstreamTimeout(resource, message string, cause error) error {
	return &Error{Sentinel: ErrUpstreamTimeout, Message: message, Resource: resource, Cause: cause}
}

// Unavailable reports a resource that is not being called right now.
func Unavailable(resource, reason string) error {
	return &Error{Sentinel: ErrUnavailable, Message: reason, Resource: resource}
}

// Internal wraps an unexpected failure of op and keeps the current stack.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
		Stack:    string(debug.Stack()),
	}
}

// StackOf returns the captured stack of an internal error, or "".
func StackOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Stack
	}
	return ""
}
