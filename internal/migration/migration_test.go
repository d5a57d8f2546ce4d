package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"rsvp-api/internal/adapters/storage"
	"rsvp-api/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seed(t *testing.T, store storage.RecordStore, records ...*models.Record) {
	t.Helper()
	for _, r := range records {
		if err := store.Put(context.Background(), r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
}

func legacyRecords() []*models.Record {
	return []*models.Record{
		{
			Email:          "legacy@example.com",
			SubmissionDate: "2024-06-01T10:00:00.000Z",
			Name:           "Legacy",
			Age:            "A",
			Attendance:     models.Attendance{Friday: true},
			TotalGuests:    3,
			Guests: []models.Guest{
				{Name: "Kid", Age: "7"},
				{Name: "Baby", Age: "i"},
				{Name: "Teen", Age: models.AgeBracketTeen},
			},
		},
		{
			Email:           "current@example.com",
			SubmissionDate:  "2025-01-01T10:00:00.000Z",
			Name:            "Current",
			Age:             models.AgeBracketAdult,
			Attendance:      models.Attendance{Saturday: true},
			Guests:          []models.Guest{},
			LastUpdatedDate: "2025-01-02T10:00:00.000Z",
		},
		{
			Email:          "broken@example.com",
			SubmissionDate: "2024-06-02T10:00:00.000Z",
			Name:           "Broken",
			Age:            "Senior",
			Attendance:     models.Attendance{Friday: true},
			Guests:         []models.Guest{},
		},
	}
}

func TestAgeMigrator_MigrateAges(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryRecordStore()
	seed(t, store, legacyRecords()...)

	result, err := NewAgeMigrator(store, quietLogger(), false).MigrateAges(ctx)
	if err != nil {
		t.Fatalf("MigrateAges failed: %v", err)
	}

	if result.RecordsScanned != 3 {
		t.Errorf("Expected 3 records scanned, got %d", result.RecordsScanned)
	}
	if result.RecordsUpdated != 1 {
		t.Errorf("Expected 1 record updated, got %d", result.RecordsUpdated)
	}
	if result.GuestsUpdated != 2 {
		t.Errorf("Expected 2 guests updated, got %d", result.GuestsUpdated)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "broken@example.com") {
		t.Errorf("Expected one error for the broken record, got %v", result.Errors)
	}

	migrated, _ := store.GetLatest(ctx, "legacy@example.com")
	if migrated.Age != models.AgeBracketAdult {
		t.Errorf("Expected adult, got %q", migrated.Age)
	}
	if migrated.Guests[0].Age != models.AgeBracketChild || migrated.Guests[1].Age != models.AgeBracketInfant {
		t.Errorf("Unexpected guest ages %+v", migrated.Guests)
	}
	if migrated.LastUpdatedDate != "" {
		t.Error("Migration must not stamp lastUpdatedDate")
	}

	current, _ := store.GetLatest(ctx, "current@example.com")
	if current.LastUpdatedDate != "2025-01-02T10:00:00.000Z" {
		t.Errorf("Canonical record must be untouched, got %+v", current)
	}
	if store.CallCount(storage.OpUpdate) != 1 {
		t.Errorf("Expected a single update, got %d", store.CallCount(storage.OpUpdate))
	}
}

func TestAgeMigrator_DryRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryRecordStore()
	seed(t, store, legacyRecords()...)

	result, err := NewAgeMigrator(store, quietLogger(), true).MigrateAges(ctx)
	if err != nil {
		t.Fatalf("MigrateAges failed: %v", err)
	}

	if result.RecordsUpdated != 1 {
		t.Errorf("Expected 1 record reported, got %d", result.RecordsUpdated)
	}
	if store.CallCount(storage.OpUpdate) != 0 {
		t.Error("Dry run must not write")
	}
	unchanged, _ := store.GetLatest(ctx, "legacy@example.com")
	if unchanged.Age != "A" {
		t.Errorf("Expected legacy value kept, got %q", unchanged.Age)
	}
}

func TestAgeMigrator_ThroughRetryDecorator(t *testing.T) {
	store := storage.NewMemoryRecordStore()
	seed(t, store, legacyRecords()[0])

	retrying := storage.NewRetryableRecordStore(store, storage.DefaultRetryConfig())
	result, err := NewAgeMigrator(retrying, quietLogger(), false).MigrateAges(context.Background())
	if err != nil {
		t.Fatalf("MigrateAges failed: %v", err)
	}
	if result.RecordsUpdated != 1 {
		t.Errorf("Expected 1 record updated, got %d", result.RecordsUpdated)
	}
}

func TestAgeMigrator_UpdateFailure(t *testing.T) {
	store := storage.NewMemoryRecordStore()
	seed(t, store, legacyRecords()[0])
	store.SetFailure(storage.OpUpdate, storage.ErrPermissionDenied)

	result, err := NewAgeMigrator(store, quietLogger(), false).MigrateAges(context.Background())
	if err != nil {
		t.Fatalf("A per-record failure must not abort the run: %v", err)
	}
	if result.RecordsUpdated != 0 || len(result.Errors) != 1 {
		t.Errorf("Expected one reported error, got %+v", result)
	}
}

func TestAgeMigrator_ScanUnsupported(t *testing.T) {
	store := struct{ storage.RecordStore }{storage.NewMemoryRecordStore()}

	if _, err := NewAgeMigrator(store, quietLogger(), false).MigrateAges(context.Background()); err == nil {
		t.Error("Expected an error for a store without Scan")
	}
}

func TestJSONMigrator_ExportImport(t *testing.T) {
	ctx := context.Background()
	source := storage.NewMemoryRecordStore()
	seed(t, source, legacyRecords()[1])

	var buf bytes.Buffer
	n, err := NewJSONMigrator(source, quietLogger()).Export(ctx, &buf)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 record exported, got %d", n)
	}

	target := storage.NewMemoryRecordStore()
	result, err := NewJSONMigrator(target, quietLogger()).Import(ctx, &buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.RecordsUpdated != 1 || len(result.Errors) != 0 {
		t.Errorf("Unexpected import result %+v", result)
	}

	imported, err := target.GetLatest(ctx, "current@example.com")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if imported.LastUpdatedDate != "2025-01-02T10:00:00.000Z" || !imported.Attendance.Saturday {
		t.Errorf("Record changed in transit: %+v", imported)
	}
}

func TestJSONMigrator_ImportNormalizes(t *testing.T) {
	ctx := context.Background()
	records := []map[string]interface{}{
		{
			"email": " Mixed@Example.COM ", "submissionDate": "2024-05-05T05:05:05.000Z",
			"name": "Mixed", "age": "T", "attendance": map[string]bool{"friday": true},
			"totalGuests": 0,
		},
		{"email": "", "submissionDate": "2024-05-05T05:05:05.000Z"},
		{"email": "bad-date@example.com", "submissionDate": "yesterday"},
	}
	raw, _ := json.Marshal(records)

	store := storage.NewMemoryRecordStore()
	result, err := NewJSONMigrator(store, quietLogger()).Import(ctx, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.RecordsUpdated != 1 || len(result.Errors) != 2 {
		t.Errorf("Expected 1 written and 2 errors, got %+v", result)
	}

	record, err := store.GetLatest(ctx, "mixed@example.com")
	if err != nil {
		t.Fatalf("Expected normalized email key: %v", err)
	}
	if record.Age != models.AgeBracketTeen {
		t.Errorf("Expected teen, got %q", record.Age)
	}
	if record.Guests == nil {
		t.Error("Expected a non-nil guest list")
	}
}

func TestJSONMigrator_ImportInvalidDocument(t *testing.T) {
	_, err := NewJSONMigrator(storage.NewMemoryRecordStore(), quietLogger()).Import(context.Background(), strings.NewReader(`{"not":"an array"}`))
	if err == nil {
		t.Error("Expected an error for a non-array document")
	}
}
