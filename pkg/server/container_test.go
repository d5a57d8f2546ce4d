package server

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"rsvp-api/internal/adapters/storage"
	"rsvp-api/internal/config"
	"rsvp-api/internal/services"
)

func testConfig(storeType string) *config.Config {
	return &config.Config{
		Environment: "test",
		Port:        "8080",
		Store: config.StoreConfig{
			Type:      storeType,
			TableName: "rsvps",
		},
		CORS: config.CORSConfig{
			AllowOrigin:  config.DefaultCORSAllowOrigin,
			AllowHeaders: config.DefaultCORSAllowHeaders,
		},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TestNewContainer verifies that the container can be created successfully
func TestNewContainer(t *testing.T) {
	container, err := NewContainer(context.Background(), testConfig("memory"), quietLogger())
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	if container.Service == nil {
		t.Error("Service is nil")
	}
	if container.Store == nil {
		t.Error("Store is nil")
	}
	if container.Observer == nil {
		t.Error("Observer is nil")
	}

	if err := container.Close(); err != nil {
		t.Errorf("Failed to close container: %v", err)
	}
}

func TestNewContainer_LocalStores(t *testing.T) {
	dir := t.TempDir()

	for _, storeType := range []string{"sqlite", "bolt"} {
		t.Run(storeType, func(t *testing.T) {
			cfg := testConfig(storeType)
			cfg.Store.SQLitePath = filepath.Join(dir, "rsvp.db")
			cfg.Store.BoltPath = filepath.Join(dir, "rsvp.bolt")

			container, err := NewContainer(context.Background(), cfg, quietLogger())
			if err != nil {
				t.Fatalf("Failed to create container: %v", err)
			}
			defer container.Close()

			payload := services.Payload{
				"mainContact": map[string]interface{}{
					"email": "a@b.c", "name": "A", "age": "Adult (18+)", "attendingFriday": true,
				},
				"guests":      []interface{}{},
				"totalGuests": 0,
			}
			if _, err := container.Service.CreateRSVP(context.Background(), payload); err != nil {
				t.Fatalf("CreateRSVP failed: %v", err)
			}
			if _, err := container.Service.LookupRSVP(context.Background(), services.Payload{"email": "a@b.c"}); err != nil {
				t.Errorf("LookupRSVP failed: %v", err)
			}
			if err := container.HealthCheck(context.Background()); err != nil {
				t.Errorf("HealthCheck failed: %v", err)
			}
		})
	}
}

func TestContainer_HealthCheckAfterClose(t *testing.T) {
	cfg := testConfig("sqlite")
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "rsvp.db")

	container, err := NewContainer(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	if err := container.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err = container.HealthCheck(context.Background())
	if !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable after close, got %v", err)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := testConfig("memory")
	cfg.Store.TableName = ""

	_, err := NewContainer(context.Background(), cfg, quietLogger())
	if !errors.Is(err, config.ErrMissingTableName) {
		t.Errorf("Expected ErrMissingTableName, got %v", err)
	}
}

func TestNewContainer_WithStore(t *testing.T) {
	store := storage.NewMemoryRecordStore()

	container, err := NewContainer(context.Background(), testConfig("dynamodb"), quietLogger(), WithStore(store))
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	if container.Store != store {
		t.Error("Expected the injected store to be used")
	}
}
