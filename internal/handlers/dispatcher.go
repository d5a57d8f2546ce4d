package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"rsvp-api/internal/config"
	"rsvp-api/internal/models"
	"rsvp-api/internal/services"
	"rsvp-api/pkg/lambda"
)

// Route suffixes
const (
	lookupSuffix = "/lookup"
	updateSuffix = "/update"
)

const allowMethods = "OPTIONS,POST"

// Dispatcher is the single entry point for RSVP requests. It routes by path
// suffix, runs the matching service operation and shapes every outcome into
// a JSON response. It never returns an error.
type Dispatcher struct {
	service  services.RSVPService
	cors     config.CORSConfig
	observer services.Observer
	initErr  *services.Error
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithObserver sets the observer notified when a request is received and
// when its response is ready
func WithObserver(o services.Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// NewDispatcher creates a dispatcher backed by service
func NewDispatcher(service services.RSVPService, cors config.CORSConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		service: service,
		cors:    withCORSDefaults(cors),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewFailedDispatcher creates a dispatcher for a service that could not be
// configured. Pre-flight requests are still answered; every other request
// fails with ConfigurationError.
func NewFailedDispatcher(err error, cors config.CORSConfig, opts ...Option) *Dispatcher {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) || svcErr.Kind != services.KindConfigurationError {
		svcErr = services.ConfigurationError(err)
	}

	d := NewDispatcher(nil, cors, opts...)
	d.initErr = svcErr
	return d
}

func withCORSDefaults(cors config.CORSConfig) config.CORSConfig {
	if cors.AllowOrigin == "" {
		cors.AllowOrigin = config.DefaultCORSAllowOrigin
	}
	if cors.AllowHeaders == "" {
		cors.AllowHeaders = config.DefaultCORSAllowHeaders
	}
	return cors
}

// Handle processes one request
func (d *Dispatcher) Handle(ctx context.Context, req *lambda.Request) *lambda.Response {
	start := time.Now()
	if req.RequestID != "" {
		ctx = services.WithRequestID(ctx, req.RequestID)
	}

	if strings.EqualFold(req.Method, http.MethodOptions) {
		return d.respond(http.StatusOK, nil)
	}

	op := operationFor(req.Path)
	received := map[string]interface{}{"method": req.Method, "path": req.Path, "bytes": len(req.Body)}

	var (
		payload   services.Payload
		decodeErr error
	)
	if d.initErr == nil {
		payload, decodeErr = decodePayload(req.Body)
		if decodeErr == nil {
			received["payload"] = payload
		}
	}

	services.Notify(ctx, d.observer, services.TraceEvent{
		Stage:     services.StageReceived,
		Operation: op,
		Outcome:   "ok",
		Detail:    received,
	})

	status, body := d.dispatch(ctx, op, payload, decodeErr)
	resp := d.respondJSON(status, body)

	services.Notify(ctx, d.observer, services.TraceEvent{
		Stage:      services.StageResponded,
		Operation:  op,
		Outcome:    outcomeFor(status),
		StatusCode: status,
		Duration:   time.Since(start),
	})

	return resp
}

// HandlerFunc exposes the dispatcher as a transport-neutral handler
func (d *Dispatcher) HandlerFunc() lambda.HandlerFunc {
	return d.Handle
}

func (d *Dispatcher) dispatch(ctx context.Context, op string, payload services.Payload, decodeErr error) (int, interface{}) {
	if d.initErr != nil {
		return errorResponseFor(d.initErr)
	}
	if decodeErr != nil {
		return errorResponseFor(decodeErr)
	}

	var (
		record *models.Record
		err    error
	)
	switch op {
	case services.OperationLookup:
		record, err = d.service.LookupRSVP(ctx, payload)
		if err != nil {
			return errorResponseFor(err)
		}
		return http.StatusOK, record

	case services.OperationUpdate:
		record, err = d.service.UpdateRSVP(ctx, payload)
		if err != nil {
			return errorResponseFor(err)
		}
		return http.StatusOK, SuccessResponse{Message: MessageUpdated, ConfirmationID: record.ConfirmationID()}

	default:
		record, err = d.service.CreateRSVP(ctx, payload)
		if err != nil {
			return errorResponseFor(err)
		}
		return http.StatusOK, SuccessResponse{Message: MessageCreated, ConfirmationID: record.ConfirmationID()}
	}
}

// operationFor routes by path suffix; anything else is a create
func operationFor(path string) string {
	path = strings.TrimRight(strings.TrimSpace(path), "/")
	switch {
	case strings.HasSuffix(path, lookupSuffix):
		return services.OperationLookup
	case strings.HasSuffix(path, updateSuffix):
		return services.OperationUpdate
	default:
		return services.OperationCreate
	}
}

// decodePayload parses the body as a single JSON object. Numbers are kept
// as json.Number so integer checks see the literal the client sent.
func decodePayload(raw []byte) (services.Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, services.BadRequest("Missing request body", map[string]interface{}{
			"reason": "request body is empty",
		})
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, services.BadRequest("Invalid JSON in request body", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, services.BadRequest("Invalid JSON in request body", map[string]interface{}{
			"reason": "unexpected data after JSON value",
		})
	}

	payload, ok := value.(map[string]interface{})
	if !ok {
		return nil, services.BadRequest("Request body must be a JSON object", map[string]interface{}{
			"reason": "request body must be a JSON object",
		})
	}
	return services.Payload(payload), nil
}

func (d *Dispatcher) headers() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  d.cors.AllowOrigin,
		"Access-Control-Allow-Methods": allowMethods,
		"Access-Control-Allow-Headers": d.cors.AllowHeaders,
		"Content-Type":                 "application/json",
	}
}

func (d *Dispatcher) respond(status int, body []byte) *lambda.Response {
	if body == nil {
		body = []byte{}
	}
	return &lambda.Response{
		StatusCode: status,
		Headers:    d.headers(),
		Body:       body,
	}
}

func (d *Dispatcher) respondJSON(status int, body interface{}) *lambda.Response {
	encoded, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		encoded = []byte(`{"message":"Error processing RSVP","error":"StoreError","detail":{}}`)
	}
	return d.respond(status, encoded)
}

func outcomeFor(status int) string {
	switch {
	case status >= 500:
		return "error"
	case status >= 400:
		return "rejected"
	default:
		return "ok"
	}
}
