package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"rsvp-api/internal/database"
	"rsvp-api/internal/models"
)

const recordColumns = `email, submission_date, name, age, attend_friday, attend_saturday, total_guests, guests, last_updated_date`

// SQLiteRecordStore stores records in the rsvp_records table. Several logical
// tables can share one database file; rows are partitioned by table_name.
type SQLiteRecordStore struct {
	db        *sql.DB
	tableName string
	closer    func() error
	health    func(ctx context.Context) error
}

// NewSQLiteRecordStore creates a record store over an open, migrated database.
// The caller keeps ownership of db.
func NewSQLiteRecordStore(db *sql.DB, tableName string) (*SQLiteRecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: sqlite database is required", ErrInvalidStoreConfig)
	}
	if tableName == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidStoreConfig)
	}
	return &SQLiteRecordStore{db: db, tableName: tableName}, nil
}

// Exists implements RecordStore.Exists
func (s *SQLiteRecordStore) Exists(ctx context.Context, email string) (exists bool, err error) {
	ctx, span := startSpan(ctx, "sqlite", OpExists, email)
	defer func() { endSpan(span, err) }()

	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM rsvp_records WHERE table_name = ? AND email = ? LIMIT 1`,
		s.tableName, email,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classifySQLiteError(OpExists, email, err)
	}
	return true, nil
}

// Put implements RecordStore.Put
func (s *SQLiteRecordStore) Put(ctx context.Context, record *models.Record) (err error) {
	ctx, span := startSpan(ctx, "sqlite", OpPut, record.Email)
	defer func() { endSpan(span, err) }()

	key := recordKey(record.Email, record.SubmissionDate)
	if record.Email == "" || record.SubmissionDate == "" {
		return NewStoreError(OpPut, key, ErrInvalidKey, false)
	}

	args, err := s.insertArgs(record)
	if err != nil {
		return NewStoreError(OpPut, key, err, false)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rsvp_records (table_name, `+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return classifySQLiteError(OpPut, key, err)
	}
	return nil
}

// CreateIfAbsent implements ConditionalCreator. The existence check and the
// insert run as one statement, so concurrent creates for the same email
// cannot both succeed.
func (s *SQLiteRecordStore) CreateIfAbsent(ctx context.Context, record *models.Record) (err error) {
	ctx, span := startSpan(ctx, "sqlite", OpCreateIfAbsent, record.Email)
	defer func() { endSpan(span, err) }()

	key := recordKey(record.Email, record.SubmissionDate)
	if record.Email == "" || record.SubmissionDate == "" {
		return NewStoreError(OpCreateIfAbsent, key, ErrInvalidKey, false)
	}

	args, err := s.insertArgs(record)
	if err != nil {
		return NewStoreError(OpCreateIfAbsent, key, err, false)
	}
	args = append(args, s.tableName, record.Email)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rsvp_records (table_name, `+recordColumns+`)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM rsvp_records WHERE table_name = ? AND email = ?)`,
		args...,
	)
	if err != nil {
		return classifySQLiteError(OpCreateIfAbsent, key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return classifySQLiteError(OpCreateIfAbsent, key, err)
	}
	if n == 0 {
		return NewStoreError(OpCreateIfAbsent, key, ErrRecordExists, false)
	}
	return nil
}

// GetLatest implements RecordStore.GetLatest
func (s *SQLiteRecordStore) GetLatest(ctx context.Context, email string) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "sqlite", OpGetLatest, email)
	defer func() { endSpan(span, err) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM rsvp_records
		 WHERE table_name = ? AND email = ?
		 ORDER BY submission_date DESC LIMIT 1`,
		s.tableName, email,
	)

	record, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStoreError(OpGetLatest, email, ErrRecordNotFound, false)
	}
	if err != nil {
		return nil, classifySQLiteError(OpGetLatest, email, err)
	}
	return record, nil
}

// Update implements RecordStore.Update
func (s *SQLiteRecordStore) Update(ctx context.Context, email, submissionDate string, patch models.RecordPatch) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "sqlite", OpUpdate, email)
	defer func() { endSpan(span, err) }()

	key := recordKey(email, submissionDate)

	guests, err := json.Marshal(models.CopyGuests(patch.Guests))
	if err != nil {
		return nil, NewStoreError(OpUpdate, key, fmt.Errorf("failed to encode guests: %w", err), false)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE rsvp_records
		 SET name = ?, age = ?, attend_friday = ?, attend_saturday = ?,
		     total_guests = ?, guests = ?, last_updated_date = ?
		 WHERE table_name = ? AND email = ? AND submission_date = ?`,
		patch.Name, string(patch.Age), patch.Attendance.Friday, patch.Attendance.Saturday,
		patch.TotalGuests, string(guests), nullString(patch.LastUpdatedDate),
		s.tableName, email, submissionDate,
	)
	if err != nil {
		return nil, classifySQLiteError(OpUpdate, key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, classifySQLiteError(OpUpdate, key, err)
	}
	if n == 0 {
		return nil, NewStoreError(OpUpdate, key, ErrRecordNotFound, false)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM rsvp_records
		 WHERE table_name = ? AND email = ? AND submission_date = ?`,
		s.tableName, email, submissionDate,
	)
	record, err = scanRecord(row)
	if err != nil {
		return nil, classifySQLiteError(OpUpdate, key, err)
	}
	return record, nil
}

// Scan implements RecordScanner. Rows are read fully before fn is called so
// that fn may write back through the same single-connection pool.
func (s *SQLiteRecordStore) Scan(ctx context.Context, fn func(*models.Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM rsvp_records
		 WHERE table_name = ? ORDER BY email, submission_date`,
		s.tableName,
	)
	if err != nil {
		return classifySQLiteError(OpScan, "", err)
	}

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return classifySQLiteError(OpScan, "", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return classifySQLiteError(OpScan, "", err)
	}
	rows.Close()

	for _, record := range records {
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

// OpenSQLiteRecordStore opens (and migrates) the database at path and returns
// a store that closes it on Close
func OpenSQLiteRecordStore(ctx context.Context, path, tableName string, logger *logrus.Logger) (*SQLiteRecordStore, error) {
	config := database.DefaultConnectionConfig()
	config.DatabasePath = path
	if logger != nil {
		config.Logger = logger
	}

	cm := database.NewConnectionManager(config)
	if err := cm.Connect(ctx); err != nil {
		return nil, NewStoreError("Open", path, fmt.Errorf("%w: %w", ErrStoreUnavailable, err), false)
	}

	store, err := NewSQLiteRecordStore(cm.GetDB(), tableName)
	if err != nil {
		cm.Close()
		return nil, err
	}
	store.closer = cm.Close
	store.health = cm.HealthCheck
	return store, nil
}

// HealthCheck implements HealthChecker. A store that opened its own database
// also verifies the records table; otherwise the connection is pinged.
func (s *SQLiteRecordStore) HealthCheck(ctx context.Context) error {
	check := s.health
	if check == nil {
		check = s.db.PingContext
	}
	if err := check(ctx); err != nil {
		return NewStoreError("HealthCheck", s.tableName, fmt.Errorf("%w: %w", ErrStoreUnavailable, err), true)
	}
	return nil
}

// Close implements RecordStore.Close. The database is only closed when the
// store opened it itself.
func (s *SQLiteRecordStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func (s *SQLiteRecordStore) insertArgs(record *models.Record) ([]interface{}, error) {
	guests, err := json.Marshal(models.CopyGuests(record.Guests))
	if err != nil {
		return nil, fmt.Errorf("failed to encode guests: %w", err)
	}
	return []interface{}{
		s.tableName,
		record.Email,
		record.SubmissionDate,
		record.Name,
		string(record.Age),
		record.Attendance.Friday,
		record.Attendance.Saturday,
		record.TotalGuests,
		string(guests),
		nullString(record.LastUpdatedDate),
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record      models.Record
		age         string
		guests      string
		lastUpdated sql.NullString
	)
	err := row.Scan(
		&record.Email,
		&record.SubmissionDate,
		&record.Name,
		&age,
		&record.Attendance.Friday,
		&record.Attendance.Saturday,
		&record.TotalGuests,
		&guests,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}

	record.Age = models.AgeBracket(age)
	record.LastUpdatedDate = lastUpdated.String
	if err := json.Unmarshal([]byte(guests), &record.Guests); err != nil {
		return nil, fmt.Errorf("failed to decode guests: %w", err)
	}
	if record.Guests == nil {
		record.Guests = []models.Guest{}
	}
	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func classifySQLiteError(op, key string, err error) *StoreError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contextError(op, key, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrStoreUnavailable, err), true)
		case sqlite3.ErrConstraint:
			return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrRecordExists, err), false)
		case sqlite3.ErrPerm, sqlite3.ErrReadonly, sqlite3.ErrAuth:
			return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrPermissionDenied, err), false)
		}
	}

	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return NewStoreError(op, key, fmt.Errorf("%w: %w", ErrStoreUnavailable, err), false)
	}

	return NewStoreError(op, key, err, false)
}
