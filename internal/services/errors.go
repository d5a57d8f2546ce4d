package services

import (
	"errors"
	"fmt"

	"rsvp-api/internal/adapters/storage"
)

// ErrorKind classifies a failure for the response layer
type ErrorKind string

const (
	KindBadRequest         ErrorKind = "BadRequest"
	KindValidationFailed   ErrorKind = "ValidationFailed"
	KindConflict           ErrorKind = "Conflict"
	KindNotFound           ErrorKind = "NotFound"
	KindConfigurationError ErrorKind = "ConfigurationError"
	KindStoreError         ErrorKind = "StoreError"
	KindTimeout            ErrorKind = "TimeoutError"
)

// Error is the single error type returned by the service layer. Detail is
// serialized to the caller as-is; Err is kept for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new service error
func NewError(kind ErrorKind, message string, detail interface{}, err error) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail, Err: err}
}

// KindOf returns the kind of err. Errors that did not originate in this
// package are reported as store errors, or timeouts when they carry a
// deadline or cancellation.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	if storage.IsTimeout(err) {
		return KindTimeout
	}
	return KindStoreError
}

// BadRequest creates a BadRequest error
func BadRequest(message string, detail interface{}) *Error {
	return NewError(KindBadRequest, message, detail, nil)
}

// ConfigurationError creates a ConfigurationError wrapping err
func ConfigurationError(err error) *Error {
	return NewError(KindConfigurationError, "Server configuration error", map[string]interface{}{
		"reason": err.Error(),
	}, err)
}

// EmailDetail is the diagnostic payload for Conflict and NotFound errors
type EmailDetail struct {
	Email string `json:"email"`
}

// storeFailure converts a record store failure into a service error. The
// caller-facing detail names the operation and whether the failure was
// transient; the raw cause stays in Err.
func storeFailure(op string, err error) *Error {
	detail := map[string]interface{}{
		"operation": op,
		"retryable": storage.IsRetryable(err),
	}

	if storage.IsTimeout(err) {
		return NewError(KindTimeout, "The record store did not respond in time", detail, err)
	}

	var storeErr *storage.StoreError
	if errors.As(err, &storeErr) {
		detail["cause"] = storeErr.Err.Error()
	} else {
		detail["cause"] = err.Error()
	}
	return NewError(KindStoreError, "Error processing RSVP", detail, err)
}
