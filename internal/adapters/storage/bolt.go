package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"rsvp-api/internal/models"
)

// BoltRecordStore stores records in a bbolt file. Each table is a top-level
// bucket holding one nested bucket per email, keyed by submission date.
// Submission dates sort lexically, so the last key is the latest record.
type BoltRecordStore struct {
	db     *bolt.DB
	bucket []byte
	owned  bool
}

// OpenBoltRecordStore opens (creating if needed) the bolt file at path
func OpenBoltRecordStore(path, tableName string) (*BoltRecordStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: bolt path is required", ErrInvalidStoreConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bolt directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, NewStoreError("Open", path, fmt.Errorf("%w: %w", ErrStoreUnavailable, err), false)
	}

	store, err := NewBoltRecordStore(db, tableName)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewBoltRecordStore creates a record store over an already open bolt db.
// The caller keeps ownership of db.
func NewBoltRecordStore(db *bolt.DB, tableName string) (*BoltRecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: bolt database is required", ErrInvalidStoreConfig)
	}
	if tableName == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidStoreConfig)
	}

	store := &BoltRecordStore{db: db, bucket: []byte(tableName)}
	return store, db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(store.bucket)
		return err
	})
}

// Exists implements RecordStore.Exists
func (b *BoltRecordStore) Exists(ctx context.Context, email string) (exists bool, err error) {
	ctx, span := startSpan(ctx, "bolt", OpExists, email)
	defer func() { endSpan(span, err) }()

	if err := checkContext(ctx, OpExists, email); err != nil {
		return false, err
	}

	err = b.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(b.bucket).Bucket([]byte(email))
		if records == nil {
			return nil
		}
		k, _ := records.Cursor().First()
		exists = k != nil
		return nil
	})
	if err != nil {
		return false, NewStoreError(OpExists, email, err, false)
	}
	return exists, nil
}

// Put implements RecordStore.Put
func (b *BoltRecordStore) Put(ctx context.Context, record *models.Record) (err error) {
	ctx, span := startSpan(ctx, "bolt", OpPut, record.Email)
	defer func() { endSpan(span, err) }()

	key := recordKey(record.Email, record.SubmissionDate)
	if record.Email == "" || record.SubmissionDate == "" {
		return NewStoreError(OpPut, key, ErrInvalidKey, false)
	}
	if err := checkContext(ctx, OpPut, key); err != nil {
		return err
	}

	j, err := json.Marshal(record.Clone())
	if err != nil {
		return NewStoreError(OpPut, key, err, false)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		records, err := tx.Bucket(b.bucket).CreateBucketIfNotExists([]byte(record.Email))
		if err != nil {
			return err
		}
		return records.Put([]byte(record.SubmissionDate), j)
	})
	if err != nil {
		return NewStoreError(OpPut, key, err, false)
	}
	return nil
}

// CreateIfAbsent implements ConditionalCreator. bolt serializes write
// transactions, so the check and the write cannot interleave.
func (b *BoltRecordStore) CreateIfAbsent(ctx context.Context, record *models.Record) (err error) {
	ctx, span := startSpan(ctx, "bolt", OpCreateIfAbsent, record.Email)
	defer func() { endSpan(span, err) }()

	key := recordKey(record.Email, record.SubmissionDate)
	if record.Email == "" || record.SubmissionDate == "" {
		return NewStoreError(OpCreateIfAbsent, key, ErrInvalidKey, false)
	}
	if err := checkContext(ctx, OpCreateIfAbsent, key); err != nil {
		return err
	}

	j, err := json.Marshal(record.Clone())
	if err != nil {
		return NewStoreError(OpCreateIfAbsent, key, err, false)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		table := tx.Bucket(b.bucket)
		if existing := table.Bucket([]byte(record.Email)); existing != nil {
			if k, _ := existing.Cursor().First(); k != nil {
				return ErrRecordExists
			}
		}
		records, err := table.CreateBucketIfNotExists([]byte(record.Email))
		if err != nil {
			return err
		}
		return records.Put([]byte(record.SubmissionDate), j)
	})
	if err != nil {
		return NewStoreError(OpCreateIfAbsent, key, err, false)
	}
	return nil
}

// GetLatest implements RecordStore.GetLatest
func (b *BoltRecordStore) GetLatest(ctx context.Context, email string) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "bolt", OpGetLatest, email)
	defer func() { endSpan(span, err) }()

	if err := checkContext(ctx, OpGetLatest, email); err != nil {
		return nil, err
	}

	err = b.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(b.bucket).Bucket([]byte(email))
		if records == nil {
			return ErrRecordNotFound
		}
		_, v := records.Cursor().Last()
		if v == nil {
			return ErrRecordNotFound
		}
		record, err = decodeRecord(v)
		return err
	})
	if err != nil {
		return nil, NewStoreError(OpGetLatest, email, err, false)
	}
	return record, nil
}

// Update implements RecordStore.Update
func (b *BoltRecordStore) Update(ctx context.Context, email, submissionDate string, patch models.RecordPatch) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "bolt", OpUpdate, email)
	defer func() { endSpan(span, err) }()

	key := recordKey(email, submissionDate)
	if err := checkContext(ctx, OpUpdate, key); err != nil {
		return nil, err
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(b.bucket).Bucket([]byte(email))
		if records == nil {
			return ErrRecordNotFound
		}
		v := records.Get([]byte(submissionDate))
		if v == nil {
			return ErrRecordNotFound
		}

		existing, err := decodeRecord(v)
		if err != nil {
			return err
		}
		patch.Apply(existing)

		j, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		if err := records.Put([]byte(submissionDate), j); err != nil {
			return err
		}
		record = existing
		return nil
	})
	if err != nil {
		return nil, NewStoreError(OpUpdate, key, err, false)
	}
	return record, nil
}

// Scan implements RecordScanner. Records are collected in a read transaction
// and fn is called after it ends, so fn may write to the store.
func (b *BoltRecordStore) Scan(ctx context.Context, fn func(*models.Record) error) error {
	var records []*models.Record
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).ForEachBucket(func(email []byte) error {
			return tx.Bucket(b.bucket).Bucket(email).ForEach(func(_, v []byte) error {
				record, err := decodeRecord(v)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
		})
	})
	if err != nil {
		return NewStoreError(OpScan, "", err, false)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return contextError(OpScan, "", err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

// Close implements RecordStore.Close
func (b *BoltRecordStore) Close() error {
	if !b.owned {
		return nil
	}
	if err := b.db.Close(); err != nil && !errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return err
	}
	return nil
}

func decodeRecord(v []byte) (*models.Record, error) {
	record := &models.Record{}
	if err := json.Unmarshal(v, record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if record.Guests == nil {
		record.Guests = []models.Guest{}
	}
	return record, nil
}
