package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	factory := DefaultFactory(quietLogger())

	t.Run("CreateMemoryStore", func(t *testing.T) {
		store, err := factory.Create(ctx, &StoreConfig{Type: "memory", TableName: "rsvps"})
		if err != nil {
			t.Fatalf("Failed to create memory store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*MemoryRecordStore); !ok {
			t.Errorf("Expected *MemoryRecordStore, got %T", store)
		}
	})

	t.Run("CreateBoltStore", func(t *testing.T) {
		store, err := factory.Create(ctx, &StoreConfig{
			Type:      "BOLT",
			TableName: "rsvps",
			BoltPath:  filepath.Join(t.TempDir(), "rsvp.bolt"),
		})
		if err != nil {
			t.Fatalf("Failed to create bolt store: %v", err)
		}
		defer store.Close()

		if err := store.Put(ctx, sampleRecord("jane@example.com", "2025-01-01T10:00:00.000Z")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	})

	t.Run("CreateSQLiteStore", func(t *testing.T) {
		store, err := factory.Create(ctx, &StoreConfig{
			Type:       "sqlite",
			TableName:  "rsvps",
			SQLitePath: filepath.Join(t.TempDir(), "rsvp.db"),
		})
		if err != nil {
			t.Fatalf("Failed to create sqlite store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(ConditionalCreator); !ok {
			t.Error("sqlite store should support conditional create")
		}
	})

	t.Run("MissingTableName", func(t *testing.T) {
		_, err := factory.Create(ctx, &StoreConfig{Type: "memory"})
		if !errors.Is(err, ErrInvalidStoreConfig) {
			t.Errorf("Expected ErrInvalidStoreConfig, got %v", err)
		}
	})

	t.Run("NilConfig", func(t *testing.T) {
		_, err := factory.Create(ctx, nil)
		if !errors.Is(err, ErrInvalidStoreConfig) {
			t.Errorf("Expected ErrInvalidStoreConfig, got %v", err)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := factory.Create(ctx, &StoreConfig{Type: "cassandra", TableName: "rsvps"})
		if !errors.Is(err, ErrInvalidStoreConfig) {
			t.Errorf("Expected ErrInvalidStoreConfig, got %v", err)
		}
	})
}

func TestFactory_WithRetry(t *testing.T) {
	factory := NewFactory(DefaultRetryConfig(), quietLogger())

	store, err := factory.Create(context.Background(), &StoreConfig{Type: "memory", TableName: "rsvps"})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*RetryableRecordStore); !ok {
		t.Errorf("Expected *RetryableRecordStore, got %T", store)
	}
}

func TestDefaultFactory(t *testing.T) {
	store, err := DefaultFactory(nil).Create(context.Background(), &StoreConfig{Type: "memory", TableName: "rsvps"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*RetryableRecordStore); ok {
		t.Error("Default factory must not add retries")
	}
}
