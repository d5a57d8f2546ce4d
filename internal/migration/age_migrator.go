package migration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"rsvp-api/internal/adapters/storage"
	"rsvp-api/internal/models"
)

// MigrationResult contains the results of a data migration
type MigrationResult struct {
	RecordsScanned int
	RecordsUpdated int
	GuestsUpdated  int
	Errors         []string
	Warnings       []string
}

// AgeMigrator rewrites age values written by older form revisions (single
// letters, numeric ages) into the canonical age brackets
type AgeMigrator struct {
	store  storage.RecordStore
	logger *logrus.Logger
	dryRun bool
}

// NewAgeMigrator creates a new age migrator. In dry-run mode records are
// inspected and counted but never written.
func NewAgeMigrator(store storage.RecordStore, logger *logrus.Logger, dryRun bool) *AgeMigrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &AgeMigrator{
		store:  store,
		logger: logger,
		dryRun: dryRun,
	}
}

// MigrateAges scans every record and updates those holding legacy ages.
// Records with unmappable values are reported in the result and skipped.
func (m *AgeMigrator) MigrateAges(ctx context.Context) (*MigrationResult, error) {
	scanner, ok := m.store.(storage.RecordScanner)
	if !ok {
		return nil, fmt.Errorf("age migration: %w", storage.ErrUnsupported)
	}

	m.logger.WithField("dry_run", m.dryRun).Info("Starting legacy age migration...")

	result := &MigrationResult{
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	err := scanner.Scan(ctx, func(record *models.Record) error {
		result.RecordsScanned++

		patch, changedGuests, changed, problems := normalizeAges(record)
		if len(problems) > 0 {
			for _, p := range problems {
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %s", record.Email, record.SubmissionDate, p))
			}
			return nil
		}
		if !changed {
			return nil
		}

		fields := logrus.Fields{
			"email":           record.Email,
			"submission_date": record.SubmissionDate,
			"from":            record.Age,
			"to":              patch.Age,
			"guests_changed":  changedGuests,
		}

		if !m.dryRun {
			if _, err := m.store.Update(ctx, record.Email, record.SubmissionDate, patch); err != nil {
				if storage.IsTimeout(err) {
					return err
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: update failed: %v", record.Email, record.SubmissionDate, err))
				return nil
			}
		}

		result.RecordsUpdated++
		result.GuestsUpdated += changedGuests
		m.logger.WithFields(fields).Debug("Record ages migrated")
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("age migration aborted after %d records: %w", result.RecordsScanned, err)
	}

	m.logger.WithFields(logrus.Fields{
		"scanned": result.RecordsScanned,
		"updated": result.RecordsUpdated,
		"guests":  result.GuestsUpdated,
		"errors":  len(result.Errors),
		"dry_run": m.dryRun,
	}).Info("Legacy age migration completed")

	return result, nil
}

// normalizeAges returns a patch that keeps every field of the record except
// the age values, which are mapped to canonical brackets. lastUpdatedDate is
// preserved: a data migration is not a guest update.
func normalizeAges(record *models.Record) (models.RecordPatch, int, bool, []string) {
	patch := models.RecordPatch{
		Name:            record.Name,
		Age:             record.Age,
		Attendance:      record.Attendance,
		TotalGuests:     record.TotalGuests,
		Guests:          models.CopyGuests(record.Guests),
		LastUpdatedDate: record.LastUpdatedDate,
	}

	var problems []string
	changed := false

	age, ageChanged, ok := models.MigrateLegacyAge(string(record.Age))
	if !ok {
		problems = append(problems, fmt.Sprintf("unmappable age %q", record.Age))
	} else if ageChanged {
		patch.Age = age
		changed = true
	}

	changedGuests := 0
	for i, guest := range patch.Guests {
		age, guestChanged, ok := models.MigrateLegacyAge(string(guest.Age))
		if !ok {
			problems = append(problems, fmt.Sprintf("unmappable age %q for guests[%d]", guest.Age, i))
			continue
		}
		if guestChanged {
			patch.Guests[i].Age = age
			changedGuests++
			changed = true
		}
	}

	return patch, changedGuests, changed, problems
}
