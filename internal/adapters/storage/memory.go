package storage

import (
	"context"
	"sort"
	"sync"

	"rsvp-api/internal/models"
)

// Operation names used for call counting and injected failures
const (
	OpExists         = "Exists"
	OpPut            = "Put"
	OpGetLatest      = "GetLatest"
	OpUpdate         = "Update"
	OpCreateIfAbsent = "CreateIfAbsent"
	OpScan           = "Scan"
)

// MemoryRecordStore is an in-memory implementation of RecordStore. It counts
// calls per operation and can be told to fail, which makes it the store of
// choice for tests.
type MemoryRecordStore struct {
	mu       sync.RWMutex
	records  map[string][]*models.Record // by email, ascending submission date
	calls    map[string]int
	failures map[string]error
}

// NewMemoryRecordStore creates a new MemoryRecordStore instance
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records:  make(map[string][]*models.Record),
		calls:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// begin counts the call and returns the injected failure for op, if any.
// Callers must hold the write lock.
func (m *MemoryRecordStore) begin(ctx context.Context, op, key string) error {
	m.calls[op]++
	if err := checkContext(ctx, op, key); err != nil {
		return err
	}
	if err, ok := m.failures[op]; ok {
		return NewStoreError(op, key, err, IsRetryable(err))
	}
	return nil
}

// Exists implements RecordStore.Exists
func (m *MemoryRecordStore) Exists(ctx context.Context, email string) (exists bool, err error) {
	ctx, span := startSpan(ctx, "memory", OpExists, email)
	defer func() { endSpan(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpExists, email); err != nil {
		return false, err
	}
	return len(m.records[email]) > 0, nil
}

// Put implements RecordStore.Put
func (m *MemoryRecordStore) Put(ctx context.Context, record *models.Record) (err error) {
	ctx, span := startSpan(ctx, "memory", OpPut, record.Email)
	defer func() { endSpan(span, err) }()

	key := recordKey(record.Email, record.SubmissionDate)
	if record.Email == "" || record.SubmissionDate == "" {
		return NewStoreError(OpPut, key, ErrInvalidKey, false)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpPut, key); err != nil {
		return err
	}
	m.put(record)
	return nil
}

// CreateIfAbsent implements ConditionalCreator
func (m *MemoryRecordStore) CreateIfAbsent(ctx context.Context, record *models.Record) (err error) {
	ctx, span := startSpan(ctx, "memory", OpCreateIfAbsent, record.Email)
	defer func() { endSpan(span, err) }()

	key := recordKey(record.Email, record.SubmissionDate)
	if record.Email == "" || record.SubmissionDate == "" {
		return NewStoreError(OpCreateIfAbsent, key, ErrInvalidKey, false)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpCreateIfAbsent, key); err != nil {
		return err
	}
	if len(m.records[record.Email]) > 0 {
		return NewStoreError(OpCreateIfAbsent, key, ErrRecordExists, false)
	}
	m.put(record)
	return nil
}

func (m *MemoryRecordStore) put(record *models.Record) {
	rows := m.records[record.Email]
	for i, existing := range rows {
		if existing.SubmissionDate == record.SubmissionDate {
			rows[i] = record.Clone()
			return
		}
	}
	rows = append(rows, record.Clone())
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SubmissionDate < rows[j].SubmissionDate
	})
	m.records[record.Email] = rows
}

// GetLatest implements RecordStore.GetLatest
func (m *MemoryRecordStore) GetLatest(ctx context.Context, email string) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "memory", OpGetLatest, email)
	defer func() { endSpan(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpGetLatest, email); err != nil {
		return nil, err
	}
	rows := m.records[email]
	if len(rows) == 0 {
		return nil, NewStoreError(OpGetLatest, email, ErrRecordNotFound, false)
	}
	return rows[len(rows)-1].Clone(), nil
}

// Update implements RecordStore.Update
func (m *MemoryRecordStore) Update(ctx context.Context, email, submissionDate string, patch models.RecordPatch) (record *models.Record, err error) {
	ctx, span := startSpan(ctx, "memory", OpUpdate, email)
	defer func() { endSpan(span, err) }()

	key := recordKey(email, submissionDate)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(ctx, OpUpdate, key); err != nil {
		return nil, err
	}
	for _, existing := range m.records[email] {
		if existing.SubmissionDate == submissionDate {
			patch.Apply(existing)
			return existing.Clone(), nil
		}
	}
	return nil, NewStoreError(OpUpdate, key, ErrRecordNotFound, false)
}

// Scan implements RecordScanner. Records are visited in email order, oldest
// submission first. fn runs without the store lock held.
func (m *MemoryRecordStore) Scan(ctx context.Context, fn func(*models.Record) error) error {
	m.mu.Lock()
	if err := m.begin(ctx, OpScan, ""); err != nil {
		m.mu.Unlock()
		return err
	}
	emails := make([]string, 0, len(m.records))
	for email := range m.records {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	var snapshot []*models.Record
	for _, email := range emails {
		for _, r := range m.records[email] {
			snapshot = append(snapshot, r.Clone())
		}
	}
	m.mu.Unlock()

	for _, r := range snapshot {
		if err := ctx.Err(); err != nil {
			return contextError(OpScan, "", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Close implements RecordStore.Close
func (m *MemoryRecordStore) Close() error {
	return nil
}

// Testing helper methods

// CallCount returns how many times op has been invoked
func (m *MemoryRecordStore) CallCount(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// TotalCalls returns the number of calls across all operations
func (m *MemoryRecordStore) TotalCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// SetFailure makes every subsequent call to op fail with err. A nil err
// clears the failure.
func (m *MemoryRecordStore) SetFailure(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Records returns copies of every record stored for email, oldest first
func (m *MemoryRecordStore) Records(email string) []*models.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Record, 0, len(m.records[email]))
	for _, r := range m.records[email] {
		out = append(out, r.Clone())
	}
	return out
}

// Clear removes all records and resets call counters
func (m *MemoryRecordStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string][]*models.Record)
	m.calls = make(map[string]int)
}
