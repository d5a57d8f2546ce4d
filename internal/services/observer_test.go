package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLogObserver(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	observer := NewLogObserver(logger)
	ctx := WithRequestID(context.Background(), "req-1")

	observer.Observe(ctx, TraceEvent{
		Stage:      StageResponded,
		Operation:  "create",
		Outcome:    "ok",
		StatusCode: 200,
		Duration:   15 * time.Millisecond,
		Detail:     map[string]string{"email": "a@b.c"},
	})

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected a log entry")
	}
	if entry.Level != logrus.InfoLevel {
		t.Errorf("Expected info level, got %s", entry.Level)
	}
	if entry.Data["request_id"] != "req-1" {
		t.Errorf("Expected request id req-1, got %v", entry.Data["request_id"])
	}
	if entry.Data["status"] != 200 {
		t.Errorf("Expected status 200, got %v", entry.Data["status"])
	}
	if entry.Data["duration_ms"] != int64(15) {
		t.Errorf("Expected duration 15ms, got %v", entry.Data["duration_ms"])
	}
	if _, ok := entry.Data["detail"]; !ok {
		t.Error("Expected detail at debug level")
	}
}

func TestLogObserver_Levels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	observer := NewLogObserver(logger)

	observer.Observe(context.Background(), TraceEvent{
		Stage:   StageStore,
		Outcome: "error",
		Err:     errors.New("boom"),
		Detail:  "payload",
	})
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("Expected an error entry, got %+v", entry)
	}
	if _, ok := entry.Data["detail"]; ok {
		t.Error("Detail must not be logged above debug level")
	}

	hook.Reset()
	observer.Observe(context.Background(), TraceEvent{Stage: StageValidated, Outcome: "ok"})
	if len(hook.Entries) != 0 {
		t.Errorf("Expected intermediate steps at debug level only, got %d entries", len(hook.Entries))
	}
}

func TestNotify_RecoversPanics(t *testing.T) {
	called := false
	Notify(context.Background(), ObserverFunc(func(ctx context.Context, event TraceEvent) {
		called = true
		panic("observer failure")
	}), TraceEvent{Stage: StageReceived})

	if !called {
		t.Error("Expected the observer to be called")
	}

	Notify(context.Background(), nil, TraceEvent{Stage: StageReceived})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"service error", BadRequest("bad", nil), KindBadRequest},
		{"wrapped service error", errors.Join(errors.New("ctx"), NewError(KindConflict, "dup", nil, nil)), KindConflict},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"other", errors.New("disk full"), KindStoreError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
