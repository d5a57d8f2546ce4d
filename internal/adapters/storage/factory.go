package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// StoreType represents the type of record store implementation
type StoreType string

const (
	StoreTypeDynamoDB StoreType = "dynamodb"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypeBolt     StoreType = "bolt"
	StoreTypeMemory   StoreType = "memory"
)

// Factory creates RecordStore instances based on configuration
type Factory struct {
	retryConfig *RetryConfig
	logger      *logrus.Logger
}

// NewFactory creates a new store factory. A nil retryConfig disables the
// retry decorator.
func NewFactory(retryConfig *RetryConfig, logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}
	return &Factory{
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// Create creates a RecordStore instance based on the provided configuration
func (f *Factory) Create(ctx context.Context, config *StoreConfig) (RecordStore, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: store config is required", ErrInvalidStoreConfig)
	}
	if config.TableName == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidStoreConfig)
	}

	storeType := StoreType(strings.ToLower(config.Type))
	if storeType == "" {
		storeType = StoreTypeDynamoDB
	}

	var store RecordStore
	var err error

	switch storeType {
	case StoreTypeDynamoDB:
		store, err = f.createDynamoDBStore(ctx, config)
	case StoreTypeSQLite:
		store, err = f.createSQLiteStore(ctx, config)
	case StoreTypeBolt:
		store, err = f.createBoltStore(config)
	case StoreTypeMemory:
		store = NewMemoryRecordStore()
	default:
		return nil, fmt.Errorf("%w: unsupported store type: %s", ErrInvalidStoreConfig, config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", storeType, err)
	}

	f.logger.WithFields(logrus.Fields{
		"store_type": storeType,
		"table_name": config.TableName,
		"retry":      f.retryConfig != nil,
	}).Debug("Record store created")

	if f.retryConfig != nil {
		store = NewRetryableRecordStore(store, f.retryConfig)
	}

	return store, nil
}

func (f *Factory) createDynamoDBStore(ctx context.Context, config *StoreConfig) (RecordStore, error) {
	client, err := NewDynamoDBClient(ctx, config.Region, config.Endpoint)
	if err != nil {
		return nil, err
	}
	return NewDynamoDBRecordStore(client, config.TableName)
}

func (f *Factory) createSQLiteStore(ctx context.Context, config *StoreConfig) (RecordStore, error) {
	path := config.SQLitePath
	if path == "" {
		path = "./data/rsvp.db"
	}
	return OpenSQLiteRecordStore(ctx, path, config.TableName, f.logger)
}

func (f *Factory) createBoltStore(config *StoreConfig) (RecordStore, error) {
	path := config.BoltPath
	if path == "" {
		path = "./data/rsvp.bolt"
	}
	return OpenBoltRecordStore(path, config.TableName)
}

// DefaultFactory returns a factory without retries. The request path fails
// fast and leaves retrying to the caller.
func DefaultFactory(logger *logrus.Logger) *Factory {
	return NewFactory(nil, logger)
}
