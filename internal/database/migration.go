package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RecordsTable is the sqlite table holding RSVP records
const RecordsTable = "rsvp_records"

// MigrationManager handles database migrations
type MigrationManager struct {
	db      *sql.DB
	logger  *logrus.Logger
	backups bool
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB, logger *logrus.Logger) *MigrationManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &MigrationManager{
		db:     db,
		logger: logger,
	}
}

// SetBackups controls whether the database file is copied before migrating
func (m *MigrationManager) SetBackups(enabled bool) {
	m.backups = enabled
}

// MigrationInfo contains information about a migration
type MigrationInfo struct {
	Version   uint
	Dirty     bool
	Applied   bool
	Timestamp time.Time
}

// RunMigrations executes all pending migrations
func (m *MigrationManager) RunMigrations() error {
	m.logger.Info("Starting database migrations...")

	if err := m.createBackup(); err != nil {
		m.logger.WithError(err).Warn("Failed to create backup before migration")
	}

	mg, source, err := m.initMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer source.Close()

	currentVersion, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		m.logger.Warn("Database is in dirty state, attempting to force version")
		if err := mg.Force(int(currentVersion)); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
	}

	m.logger.WithField("current_version", currentVersion).Info("Current migration version")

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get new migration version: %w", err)
	}

	m.logger.WithField("new_version", newVersion).Info("Migrations completed successfully")
	return nil
}

// RollbackMigration rolls back the last migration
func (m *MigrationManager) RollbackMigration() error {
	m.logger.Info("Rolling back last migration...")

	if err := m.createBackup(); err != nil {
		m.logger.WithError(err).Warn("Failed to create backup before rollback")
	}

	mg, source, err := m.initMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer source.Close()

	currentVersion, _, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("no migrations to rollback")
		}
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	m.logger.WithField("current_version", currentVersion).Info("Rolling back from version")

	if err := mg.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	newVersion, _, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get new migration version: %w", err)
	}

	m.logger.WithField("new_version", newVersion).Info("Rollback completed successfully")
	return nil
}

// GetMigrationStatus returns the current migration status
func (m *MigrationManager) GetMigrationStatus() (*MigrationInfo, error) {
	mg, source, err := m.initMigrate()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer source.Close()

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to get migration version: %w", err)
	}

	return &MigrationInfo{
		Version:   version,
		Dirty:     dirty,
		Applied:   err == nil,
		Timestamp: time.Now(),
	}, nil
}

// ValidateSchema checks that the records table exists
func (m *MigrationManager) ValidateSchema() error {
	m.logger.Info("Validating database schema...")

	var count int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
	if err := m.db.QueryRow(query, RecordsTable).Scan(&count); err != nil {
		return fmt.Errorf("failed to check table %s: %w", RecordsTable, err)
	}
	if count == 0 {
		return fmt.Errorf("expected table %s not found", RecordsTable)
	}

	m.logger.Info("Schema validation completed successfully")
	return nil
}

// initMigrate builds a migrate instance over the embedded migrations.
// The returned Migrate must not be closed: closing it closes the shared
// *sql.DB through the sqlite3 driver. Close the source instead.
func (m *MigrationManager) initMigrate() (*migrate.Migrate, interface{ Close() error }, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return mg, source, nil
}

// createBackup copies the database file before a schema change
func (m *MigrationManager) createBackup() error {
	if !m.backups {
		return nil
	}

	rows, err := m.db.Query("PRAGMA database_list")
	if err != nil {
		return fmt.Errorf("failed to query database list: %w", err)
	}

	var seq int
	var name, dbPath string
	if !rows.Next() {
		rows.Close()
		return fmt.Errorf("no database found")
	}
	if err := rows.Scan(&seq, &name, &dbPath); err != nil {
		rows.Close()
		return fmt.Errorf("failed to scan database path: %w", err)
	}
	// Release the single pooled connection before touching the file
	rows.Close()

	if dbPath == "" || dbPath == ":memory:" {
		m.logger.Debug("Skipping backup for in-memory database")
		return nil
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("failed to stat database file: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := fmt.Sprintf("%s.backup_%s", dbPath, timestamp)

	if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if err := copyFile(dbPath, backupPath); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	m.logger.WithField("backup_path", backupPath).Info("Database backup created")
	return nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = destFile.ReadFrom(sourceFile)
	return err
}
