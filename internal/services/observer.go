package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Trace stages
const (
	StageReceived  = "received"
	StageValidated = "validated"
	StageStore     = "store"
	StageResponded = "responded"
)

// TraceEvent is a structured observation of one step of request handling
type TraceEvent struct {
	Stage      string
	Operation  string
	Email      string
	Outcome    string
	StatusCode int
	Detail     interface{}
	Err        error
	Duration   time.Duration
}

// Observer receives trace events. Observers must not influence handling;
// a panicking observer is recovered and ignored.
type Observer interface {
	Observe(ctx context.Context, event TraceEvent)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ctx context.Context, event TraceEvent)

// Observe implements Observer
func (f ObserverFunc) Observe(ctx context.Context, event TraceEvent) {
	f(ctx, event)
}

// Notify delivers event to o, recovering any panic
func Notify(ctx context.Context, o Observer, event TraceEvent) {
	if o == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	o.Observe(ctx, event)
}

type requestIDKey struct{}

// WithRequestID stores the request id in ctx for log correlation
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, if any
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LogObserver writes trace events to a logrus logger. Payload details are
// only logged at debug level.
type LogObserver struct {
	logger *logrus.Logger
}

// NewLogObserver creates a LogObserver
func NewLogObserver(logger *logrus.Logger) *LogObserver {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogObserver{logger: logger}
}

// Observe implements Observer
func (l *LogObserver) Observe(ctx context.Context, event TraceEvent) {
	fields := logrus.Fields{
		"stage":     event.Stage,
		"operation": event.Operation,
		"outcome":   event.Outcome,
	}
	if id := RequestIDFrom(ctx); id != "" {
		fields["request_id"] = id
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.StatusCode != 0 {
		fields["status"] = event.StatusCode
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}

	entry := l.logger.WithContext(ctx).WithFields(fields)
	if l.logger.IsLevelEnabled(logrus.DebugLevel) && event.Detail != nil {
		entry = entry.WithField("detail", event.Detail)
	}

	switch {
	case event.Err != nil && event.Outcome == "error":
		entry.WithError(event.Err).Error("RSVP request step failed")
	case event.Stage == StageResponded:
		entry.Info("RSVP request completed")
	default:
		entry.Debug("RSVP request step")
	}
}
