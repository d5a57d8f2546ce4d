package main

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rsvp-api/internal/config"
	"rsvp-api/internal/handlers"
	"rsvp-api/internal/telemetry"
	"rsvp-api/pkg/lambda"
)

const serviceName = "rsvp-api"

var (
	dispatcher     *handlers.Dispatcher
	dispatcherOnce sync.Once
	tracing        *telemetry.Provider
)

// getDispatcher builds the dispatcher on the first invocation. A
// configuration failure yields a dispatcher that answers every request
// with ConfigurationError instead of crashing the execution environment.
func getDispatcher(ctx context.Context) *handlers.Dispatcher {
	dispatcherOnce.Do(func() {
		cm := lambda.GetConnectionManager()
		container, err := cm.GetContainer(ctx)

		cors := config.CORSConfig{}
		if cfg := cm.Config(); cfg != nil {
			cors = cfg.CORS
		}

		if err != nil {
			cm.Logger().WithError(err).Error("Failed to initialize RSVP service")
			dispatcher = handlers.NewFailedDispatcher(err, cors)
			return
		}

		provider, err := telemetry.Setup(ctx, container.Config.Telemetry, serviceName, container.Logger)
		if err != nil {
			container.Logger.WithError(err).Warn("Tracing disabled")
		}
		tracing = provider

		dispatcher = handlers.NewDispatcher(container.Service, cors, handlers.WithObserver(container.Observer))
	})
	return dispatcher
}

func handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			logrus.WithError(err).Warn("Invalid base64 request body")
			decoded = nil
		}
		body = decoded
	}

	requestID := event.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	req := &lambda.Request{
		Method:      event.HTTPMethod,
		Path:        event.Path,
		Headers:     event.Headers,
		QueryParams: event.QueryStringParameters,
		Body:        body,
		RequestID:   requestID,
	}

	cm := lambda.GetConnectionManager()
	coldStart := !cm.IsWarm()

	resp := getDispatcher(ctx).Handle(ctx, req)

	logger := cm.Logger()

	// The execution environment may be frozen as soon as we return
	if err := tracing.ForceFlush(ctx); err != nil {
		logger.WithError(err).Warn("Failed to flush spans")
	}

	logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"status":     resp.StatusCode,
		"cold_start": coldStart,
	}).Debug("Invocation completed")

	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       string(resp.Body),
	}, nil
}

// shutdown runs when Lambda retires the execution environment
func shutdown() {
	cm := lambda.GetConnectionManager()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := tracing.Shutdown(ctx); err != nil {
		cm.Logger().WithError(err).Warn("Failed to shut down tracing")
	}
	if err := cm.Cleanup(); err != nil {
		cm.Logger().WithError(err).Warn("Failed to close record store")
	}
}

func main() {
	awslambda.StartWithOptions(handler, awslambda.WithEnableSIGTERM(shutdown))
}
