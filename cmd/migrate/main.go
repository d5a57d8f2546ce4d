package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"rsvp-api/internal/adapters/storage"
	"rsvp-api/internal/config"
	"rsvp-api/internal/database"
	"rsvp-api/internal/migration"
	"rsvp-api/pkg/server"
)

func main() {
	var (
		dbPath  = flag.String("db", "", "SQLite database file path (defaults to SQLITE_PATH)")
		action  = flag.String("action", "up", "Action: up, down, status, validate, ages, export, import")
		file    = flag.String("file", "", "JSON file for export/import (defaults to stdout/stdin)")
		dryRun  = flag.Bool("dry-run", false, "Report legacy ages without rewriting them")
		backup  = flag.Bool("backup", false, "Back up the database file before applying migrations")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg, cfgErr := config.Load()
	logger := config.NewLogger(cfg.Log)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"action":  *action,
		"dry_run": *dryRun,
	}).Info("Starting migration tool")

	var err error
	switch *action {
	case "up", "down", "status", "validate":
		path := *dbPath
		if path == "" {
			path = cfg.Store.SQLitePath
		}
		err = runSchemaAction(ctx, *action, path, *backup, logger)
	case "ages", "export", "import":
		if cfgErr != nil {
			logger.WithError(cfgErr).Fatal("Invalid configuration")
		}
		err = runDataAction(ctx, *action, cfg, *file, *dryRun, logger)
	default:
		logger.WithField("action", *action).Fatal("Unknown action. Use: up, down, status, validate, ages, export, import")
	}

	if err != nil {
		logger.WithError(err).Fatal("Migration tool failed")
	}
	logger.Info("Migration tool completed successfully")
}

func runSchemaAction(ctx context.Context, action, dbPath string, backup bool, logger *logrus.Logger) error {
	absDBPath, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute database path: %w", err)
	}

	connConfig := database.DefaultConnectionConfig()
	connConfig.DatabasePath = absDBPath
	connConfig.RunMigrations = false
	connConfig.Logger = logger

	cm := database.NewConnectionManager(connConfig)
	if err := cm.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer cm.Close()

	migrationManager := cm.GetMigrationManager()
	migrationManager.SetBackups(backup)

	switch action {
	case "up":
		return migrationManager.RunMigrations()
	case "down":
		return migrationManager.RollbackMigration()
	case "status":
		status, err := migrationManager.GetMigrationStatus()
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		fmt.Printf("Migration Status:\n")
		fmt.Printf("  Version: %d\n", status.Version)
		fmt.Printf("  Applied: %t\n", status.Applied)
		fmt.Printf("  Dirty: %t\n", status.Dirty)
		return nil
	default:
		if err := migrationManager.ValidateSchema(); err != nil {
			return fmt.Errorf("schema validation failed: %w", err)
		}
		fmt.Println("Schema validation passed successfully")
		return nil
	}
}

// runDataAction works on the configured record store. Store calls go through
// the retry decorator: a long scan should survive transient throttling.
func runDataAction(ctx context.Context, action string, cfg *config.Config, file string, dryRun bool, logger *logrus.Logger) error {
	factory := storage.NewFactory(storage.DefaultRetryConfig(), logger)
	store, err := factory.Create(ctx, server.StoreConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer store.Close()

	switch action {
	case "ages":
		result, err := migration.NewAgeMigrator(store, logger, dryRun).MigrateAges(ctx)
		if result != nil {
			printResult(result, dryRun)
		}
		return err

	case "export":
		out := io.Writer(os.Stdout)
		if file != "" {
			f, err := os.Create(file)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			out = f
		}
		_, err := migration.NewJSONMigrator(store, logger).Export(ctx, out)
		return err

	default:
		in := io.Reader(os.Stdin)
		if file != "" {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()
			in = f
		}
		result, err := migration.NewJSONMigrator(store, logger).Import(ctx, in)
		if result != nil {
			printResult(result, false)
		}
		return err
	}
}

func printResult(result *migration.MigrationResult, dryRun bool) {
	verb := "Updated"
	if dryRun {
		verb = "Would update"
	}
	fmt.Printf("Records scanned: %d\n", result.RecordsScanned)
	fmt.Printf("%s records: %d (guests: %d)\n", verb, result.RecordsUpdated, result.GuestsUpdated)
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}
