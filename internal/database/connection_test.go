package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testConfig(t *testing.T) *ConnectionConfig {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return &ConnectionConfig{
		DatabasePath:    filepath.Join(t.TempDir(), "nested", "rsvp.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     time.Second,
		RunMigrations:   true,
		Logger:          logger,
	}
}

func TestConnectionManager_ConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	cm := NewConnectionManager(testConfig(t))

	if cm.GetDB() != nil {
		t.Error("GetDB() should return nil when not connected")
	}
	if cm.GetMigrationManager() != nil {
		t.Error("GetMigrationManager() should return nil when not connected")
	}
	if err := cm.Ping(ctx); err == nil {
		t.Error("Ping() should fail when not connected")
	}

	if err := cm.Connect(ctx); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	if cm.GetDB() == nil {
		t.Error("GetDB() should not return nil when connected")
	}

	if err := cm.Connect(ctx); err == nil {
		t.Error("Connect() should fail when already connected")
	}

	if err := cm.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() failed: %v", err)
	}

	if err := cm.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if cm.GetDB() != nil {
		t.Error("GetDB() should return nil after Close()")
	}

	// Closing twice is a no-op
	if err := cm.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestConnectionManager_CreatesDirectory(t *testing.T) {
	config := testConfig(t)
	cm := NewConnectionManager(config)

	if err := cm.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer cm.Close()

	if _, err := os.Stat(filepath.Dir(config.DatabasePath)); err != nil {
		t.Errorf("Expected database directory to exist, got %v", err)
	}
}

func TestConnectionManager_WithoutMigrations(t *testing.T) {
	config := testConfig(t)
	config.RunMigrations = false
	cm := NewConnectionManager(config)

	ctx := context.Background()
	if err := cm.Connect(ctx); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer cm.Close()

	if err := cm.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail before the schema exists")
	}

	if err := cm.GetMigrationManager().RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() failed: %v", err)
	}

	if err := cm.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() failed after migrations: %v", err)
	}
}

func TestNewConnectionManager_Defaults(t *testing.T) {
	cm := NewConnectionManager(nil)
	if cm.config == nil {
		t.Fatal("Expected default config")
	}
	if cm.config.MaxOpenConns != 1 {
		t.Errorf("Expected MaxOpenConns 1, got %d", cm.config.MaxOpenConns)
	}
	if cm.config.Logger == nil {
		t.Error("Expected default logger")
	}
}
