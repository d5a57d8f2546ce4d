package storage

import (
	"context"
	"errors"
	"fmt"
)

// Common record store error types
var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrRecordExists       = errors.New("record already exists")
	ErrInvalidKey         = errors.New("invalid record key")
	ErrStoreUnavailable   = errors.New("record store unavailable")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrThrottled          = errors.New("request throttled")
	ErrNetworkError       = errors.New("network error")
	ErrTimeout            = errors.New("operation timeout")
	ErrUnsupported        = errors.New("operation not supported by store")
	ErrInvalidStoreConfig = errors.New("invalid store configuration")
)

// StoreError represents a record store operation error with additional context
type StoreError struct {
	Op        string // Operation that failed (e.g., "Put", "GetLatest")
	Key       string // Record key involved in the operation
	Err       error  // Underlying error
	Retryable bool   // Whether the operation can be retried
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("record store %s operation failed for key '%s': %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("record store %s operation failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error indicates a retryable condition
func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

// NewStoreError creates a new StoreError
func NewStoreError(op, key string, err error, retryable bool) *StoreError {
	return &StoreError{
		Op:        op,
		Key:       key,
		Err:       err,
		Retryable: retryable,
	}
}

// contextError converts a context cancellation or deadline into a StoreError
// that matches both ErrTimeout and the original context error
func contextError(op, key string, err error) *StoreError {
	return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrTimeout, err), false)
}

// checkContext returns a StoreError when ctx is already done
func checkContext(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return contextError(op, key, err)
	}
	return nil
}

// IsNotFound returns true if the error indicates a record was not found
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsAlreadyExists returns true if the error indicates a record already exists
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrRecordExists)
}

// IsTimeout returns true if the error came from a deadline or cancellation
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// IsRetryable returns true if the error indicates a retryable condition
func IsRetryable(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.IsRetryable()
	}

	// Check for common retryable errors
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrThrottled) ||
		errors.Is(err, ErrNetworkError)
}
