package services

import (
	"context"
	"time"

	"rsvp-api/internal/adapters/storage"
	"rsvp-api/internal/models"
)

// rsvpService implements the RSVPService interface
type rsvpService struct {
	store     storage.RecordStore
	validator *Validator
	observer  Observer
	now       func() time.Time
}

// Option configures the RSVP service
type Option func(*rsvpService)

// WithClock overrides the time source used for submission and update dates
func WithClock(now func() time.Time) Option {
	return func(s *rsvpService) {
		s.now = now
	}
}

// WithObserver sets the observer notified of validation and store outcomes
func WithObserver(o Observer) Option {
	return func(s *rsvpService) {
		s.observer = o
	}
}

// NewRSVPService creates a new RSVP service instance
func NewRSVPService(store storage.RecordStore, opts ...Option) RSVPService {
	s := &rsvpService{
		store:     store,
		validator: NewValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRSVP creates a new RSVP record
func (s *rsvpService) CreateRSVP(ctx context.Context, payload Payload) (*models.Record, error) {
	record, err := s.validate(ctx, OperationCreate, payload)
	if err != nil {
		return nil, err
	}

	record.SubmissionDate = models.FormatTimestamp(s.now())

	if creator, ok := s.store.(storage.ConditionalCreator); ok {
		err := creator.CreateIfAbsent(ctx, record)
		if storage.IsAlreadyExists(err) {
			return nil, s.conflict(ctx, record.Email)
		}
		if err != nil {
			return nil, s.storeFailed(ctx, OperationCreate, record.Email, err)
		}
		s.storeOK(ctx, OperationCreate, record.Email)
		return record, nil
	}

	// Without a conditional write the check and the put can race; two
	// concurrent creates may both succeed and GetLatest picks the newer.
	exists, err := s.store.Exists(ctx, record.Email)
	if err != nil {
		return nil, s.storeFailed(ctx, OperationCreate, record.Email, err)
	}
	if exists {
		return nil, s.conflict(ctx, record.Email)
	}

	if err := s.store.Put(ctx, record); err != nil {
		return nil, s.storeFailed(ctx, OperationCreate, record.Email, err)
	}

	s.storeOK(ctx, OperationCreate, record.Email)
	return record, nil
}

// LookupRSVP retrieves the latest RSVP for an email
func (s *rsvpService) LookupRSVP(ctx context.Context, payload Payload) (*models.Record, error) {
	raw, present := payload["email"]
	if !present {
		if contact, ok := payload["mainContact"].(map[string]interface{}); ok {
			raw = contact["email"]
		}
	}

	email, err := s.validator.ValidateEmail(raw)
	if err != nil {
		s.notify(ctx, TraceEvent{Stage: StageValidated, Operation: OperationLookup, Outcome: "rejected", Detail: err.(*Error).Detail})
		return nil, err
	}
	s.notify(ctx, TraceEvent{Stage: StageValidated, Operation: OperationLookup, Email: email, Outcome: "ok"})

	record, err := s.store.GetLatest(ctx, email)
	if storage.IsNotFound(err) {
		return nil, s.notFound(ctx, OperationLookup, email)
	}
	if err != nil {
		return nil, s.storeFailed(ctx, OperationLookup, email, err)
	}

	s.storeOK(ctx, OperationLookup, email)
	return record, nil
}

// UpdateRSVP replaces the mutable fields of the latest RSVP for an email
func (s *rsvpService) UpdateRSVP(ctx context.Context, payload Payload) (*models.Record, error) {
	record, err := s.validate(ctx, OperationUpdate, payload)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.GetLatest(ctx, record.Email)
	if storage.IsNotFound(err) {
		return nil, s.notFound(ctx, OperationUpdate, record.Email)
	}
	if err != nil {
		return nil, s.storeFailed(ctx, OperationUpdate, record.Email, err)
	}

	updated, err := s.store.Update(ctx, record.Email, latest.SubmissionDate, models.PatchFrom(record, s.now()))
	if storage.IsNotFound(err) {
		return nil, s.notFound(ctx, OperationUpdate, record.Email)
	}
	if err != nil {
		return nil, s.storeFailed(ctx, OperationUpdate, record.Email, err)
	}

	s.storeOK(ctx, OperationUpdate, record.Email)
	return updated, nil
}

func (s *rsvpService) validate(ctx context.Context, op string, payload Payload) (*models.Record, error) {
	record, err := s.validator.Validate(payload)
	if err != nil {
		s.notify(ctx, TraceEvent{Stage: StageValidated, Operation: op, Outcome: "rejected", Detail: err.(*Error).Detail})
		return nil, err
	}
	s.notify(ctx, TraceEvent{Stage: StageValidated, Operation: op, Email: record.Email, Outcome: "ok"})
	return record, nil
}

func (s *rsvpService) conflict(ctx context.Context, email string) *Error {
	s.notify(ctx, TraceEvent{Stage: StageStore, Operation: OperationCreate, Email: email, Outcome: "conflict"})
	return NewError(KindConflict, "An RSVP already exists for this email", EmailDetail{Email: email}, nil)
}

func (s *rsvpService) notFound(ctx context.Context, op, email string) *Error {
	s.notify(ctx, TraceEvent{Stage: StageStore, Operation: op, Email: email, Outcome: "not_found"})
	return NewError(KindNotFound, "No RSVP found for this email", EmailDetail{Email: email}, nil)
}

func (s *rsvpService) storeFailed(ctx context.Context, op, email string, err error) *Error {
	s.notify(ctx, TraceEvent{Stage: StageStore, Operation: op, Email: email, Outcome: "error", Err: err})
	return storeFailure(op, err)
}

func (s *rsvpService) storeOK(ctx context.Context, op, email string) {
	s.notify(ctx, TraceEvent{Stage: StageStore, Operation: op, Email: email, Outcome: "ok"})
}

func (s *rsvpService) notify(ctx context.Context, event TraceEvent) {
	Notify(ctx, s.observer, event)
}
