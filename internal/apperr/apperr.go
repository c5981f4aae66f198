// Package apperr defines the error-kind taxonomy shared across the store,
// services, and transport layers, and the mapping from kind to HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for logging and HTTP status mapping.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindAuthRequired    Kind = "auth_required"
	KindDB              Kind = "db_error"
	KindIO              Kind = "io_error"
	KindSubprocess      Kind = "subprocess_error"
	KindValidator       Kind = "validator_error"
	KindUpstream        Kind = "upstream_error"
	KindTransient       Kind = "transient"
)

// httpStatus maps each Kind to the HTTP status code spec §7 assigns it.
var httpStatus = map[Kind]int{
	KindInvalidInput: http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindAuthRequired: http.StatusUnauthorized,
	KindDB:           http.StatusInternalServerError,
	KindIO:           http.StatusInternalServerError,
	KindSubprocess:   http.StatusInternalServerError,
	KindValidator:    http.StatusForbidden,
	KindUpstream:     http.StatusBadGateway,
	KindTransient:    http.StatusServiceUnavailable,
}

// Error is an application error carrying a Kind alongside the usual message
// and wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// HTTPStatus returns the status code for err. Errors that are not *Error
// (or do not wrap one) map to 500, matching the "global last-resort handler"
// policy in spec §7.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		if status, ok := httpStatus[appErr.Kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// KindOf extracts the Kind of err, or "" if err does not carry one.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
