package storage

import (
	"context"
	"math"
	"math/rand"
	"time"

	"rsvp-api/internal/models"
)

// RetryConfig configures retry behavior for record store operations
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
	JitterEnabled bool          `json:"jitter_enabled" yaml:"jitter_enabled"`
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func(ctx context.Context) error

// WithRetry executes an operation, retrying errors for which IsRetryable
// reports true
func WithRetry(ctx context.Context, config *RetryConfig, op RetryableOperation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return contextError("Retry", "", ctx.Err())
		default:
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt >= config.MaxAttempts || !IsRetryable(err) {
			break
		}

		delay := config.calculateDelay(attempt)

		select {
		case <-ctx.Done():
			return contextError("Retry", "", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

// calculateDelay calculates the delay before the next retry attempt
func (c *RetryConfig) calculateDelay(attempt int) time.Duration {
	// Exponential backoff: delay = initial_delay * (backoff_factor ^ (attempt - 1))
	delay := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	// Up to 10% jitter
	if c.JitterEnabled {
		jitter := rand.Float64() * 0.1 * delay
		delay += jitter
	}

	return time.Duration(delay)
}

// RetryableRecordStore wraps a RecordStore with retry logic. It does not
// expose CreateIfAbsent: a retried conditional create could report a
// conflict for its own first attempt.
type RetryableRecordStore struct {
	store  RecordStore
	config *RetryConfig
}

// NewRetryableRecordStore creates a new RetryableRecordStore
func NewRetryableRecordStore(store RecordStore, config *RetryConfig) *RetryableRecordStore {
	if config == nil {
		config = DefaultRetryConfig()
	}

	return &RetryableRecordStore{
		store:  store,
		config: config,
	}
}

// Exists implements RecordStore.Exists with retry logic
func (r *RetryableRecordStore) Exists(ctx context.Context, email string) (bool, error) {
	var result bool
	err := WithRetry(ctx, r.config, func(ctx context.Context) error {
		exists, err := r.store.Exists(ctx, email)
		if err != nil {
			return err
		}
		result = exists
		return nil
	})
	return result, err
}

// Put implements RecordStore.Put with retry logic
func (r *RetryableRecordStore) Put(ctx context.Context, record *models.Record) error {
	return WithRetry(ctx, r.config, func(ctx context.Context) error {
		return r.store.Put(ctx, record)
	})
}

// GetLatest implements RecordStore.GetLatest with retry logic
func (r *RetryableRecordStore) GetLatest(ctx context.Context, email string) (*models.Record, error) {
	var result *models.Record
	err := WithRetry(ctx, r.config, func(ctx context.Context) error {
		record, err := r.store.GetLatest(ctx, email)
		if err != nil {
			return err
		}
		result = record
		return nil
	})
	return result, err
}

// Update implements RecordStore.Update with retry logic
func (r *RetryableRecordStore) Update(ctx context.Context, email, submissionDate string, patch models.RecordPatch) (*models.Record, error) {
	var result *models.Record
	err := WithRetry(ctx, r.config, func(ctx context.Context) error {
		record, err := r.store.Update(ctx, email, submissionDate, patch)
		if err != nil {
			return err
		}
		result = record
		return nil
	})
	return result, err
}

// Scan implements RecordScanner when the wrapped store does. The scan is
// not retried because fn may have side effects.
func (r *RetryableRecordStore) Scan(ctx context.Context, fn func(*models.Record) error) error {
	scanner, ok := r.store.(RecordScanner)
	if !ok {
		return NewStoreError(OpScan, "", ErrUnsupported, false)
	}
	return scanner.Scan(ctx, fn)
}

// Close implements RecordStore.Close
func (r *RetryableRecordStore) Close() error {
	return r.store.Close()
}
