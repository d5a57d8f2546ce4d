package storage

import (
	"context"

	"rsvp-api/internal/models"
)

// RecordStore persists RSVP records keyed by normalized email (partition)
// and submission date (sort). Implementations never retry; retry policy is
// left to the caller.
type RecordStore interface {
	// Exists reports whether any record is stored for the email
	Exists(ctx context.Context, email string) (bool, error)

	// Put unconditionally writes the full record
	Put(ctx context.Context, record *models.Record) error

	// GetLatest returns the record with the most recent submission date for
	// the email, or an error satisfying IsNotFound
	GetLatest(ctx context.Context, email string) (*models.Record, error)

	// Update replaces the mutable fields of the record identified by the
	// full key and returns the stored result. The key must already exist.
	Update(ctx context.Context, email, submissionDate string, patch models.RecordPatch) (*models.Record, error)

	// Close releases resources held by the store
	Close() error
}

// ConditionalCreator is implemented by stores that can atomically reject a
// write when any record already exists for the email
type ConditionalCreator interface {
	CreateIfAbsent(ctx context.Context, record *models.Record) error
}

// RecordScanner is implemented by stores that can iterate every record.
// Returning an error from fn stops the scan with that error.
type RecordScanner interface {
	Scan(ctx context.Context, fn func(*models.Record) error) error
}

// HealthChecker is implemented by stores that can verify their backing
// database is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StoreConfig represents configuration for record store providers
type StoreConfig struct {
	Type       string `json:"type" yaml:"type"`             // "dynamodb", "sqlite", "bolt", "memory"
	TableName  string `json:"table_name" yaml:"table_name"` // DynamoDB table, bolt bucket, sqlite partition
	Region     string `json:"region" yaml:"region"`
	Endpoint   string `json:"endpoint" yaml:"endpoint"` // DynamoDB endpoint override (DynamoDB Local)
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
	BoltPath   string `json:"bolt_path" yaml:"bolt_path"`
}

func recordKey(email, submissionDate string) string {
	return email + "#" + submissionDate
}
