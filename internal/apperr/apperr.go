// Package apperr defines the error kinds surfaced by the service and their HTTP mapping.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind names a class of failure. Kinds are part of the API error body.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindSegmentation      Kind = "segmentation_failed"
	KindSearchUnavailable Kind = "search_engine_unavailable"
	KindSearchEngine      Kind = "search_engine_error"
	KindNotFound          Kind = "not_found"
	KindTimeout           Kind = "timeout"
	KindInternal          Kind = "internal"
)

// Error is a classified error. Err is the underlying cause and may be nil.
type Error struct {
	Kind      Kind
	Message   string
	Err       error
	Retryable bool
	// Code is an upstream error code, e.g. MeiliSearch's "index_not_found".
	Code string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err, Retryable: kind == KindSearchUnavailable}
}

// KindOf returns the kind of err. Context cancellation and deadlines map to KindTimeout;
// unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// HTTPStatus maps err to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindSearchUnavailable:
		return http.StatusServiceUnavailable
	case KindSearchEngine:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
