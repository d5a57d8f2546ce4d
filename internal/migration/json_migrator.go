package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"rsvp-api/internal/adapters/storage"
	"rsvp-api/internal/models"
)

// JSONMigrator copies records between a record store and a JSON document,
// e.g. to move data from DynamoDB into a local sqlite or bbolt store
type JSONMigrator struct {
	store  storage.RecordStore
	logger *logrus.Logger
}

// NewJSONMigrator creates a new JSON migrator
func NewJSONMigrator(store storage.RecordStore, logger *logrus.Logger) *JSONMigrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &JSONMigrator{
		store:  store,
		logger: logger,
	}
}

// Export writes every record in the store to w as a JSON array
func (m *JSONMigrator) Export(ctx context.Context, w io.Writer) (int, error) {
	scanner, ok := m.store.(storage.RecordScanner)
	if !ok {
		return 0, fmt.Errorf("export: %w", storage.ErrUnsupported)
	}

	records := make([]*models.Record, 0)
	if err := scanner.Scan(ctx, func(r *models.Record) error {
		records = append(records, r)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("failed to scan records: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("failed to encode records: %w", err)
	}

	m.logger.WithField("records", len(records)).Info("Records exported")
	return len(records), nil
}

// Import reads a JSON array of records from r and writes each one to the
// store. Existing records with the same key are overwritten, so an import
// can be re-run. Emails are normalized and legacy ages mapped on the way in.
func (m *JSONMigrator) Import(ctx context.Context, r io.Reader) (*MigrationResult, error) {
	var records []*models.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	result := &MigrationResult{
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	for i, record := range records {
		result.RecordsScanned++
		if err := m.validateRecord(record); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}

		record.Email = models.NormalizeEmail(record.Email)
		patch, guests, changed, problems := normalizeAges(record)
		if len(problems) > 0 {
			for _, p := range problems {
				result.Errors = append(result.Errors, fmt.Sprintf("record %d: %s", i, p))
			}
			continue
		}
		if changed {
			patch.Apply(record)
			result.GuestsUpdated += guests
			result.Warnings = append(result.Warnings, fmt.Sprintf("record %d: legacy ages mapped", i))
		}

		if err := m.store.Put(ctx, record); err != nil {
			if storage.IsTimeout(err) {
				return result, fmt.Errorf("import aborted at record %d: %w", i, err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		result.RecordsUpdated++
	}

	m.logger.WithFields(logrus.Fields{
		"read":     result.RecordsScanned,
		"written":  result.RecordsUpdated,
		"errors":   len(result.Errors),
		"warnings": len(result.Warnings),
	}).Info("Records imported")

	return result, nil
}

func (m *JSONMigrator) validateRecord(record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is null")
	}
	if models.NormalizeEmail(record.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := models.ParseTimestamp(record.SubmissionDate); err != nil {
		return fmt.Errorf("invalid submissionDate %q", record.SubmissionDate)
	}
	if record.Guests == nil {
		record.Guests = []models.Guest{}
	}
	return nil
}
