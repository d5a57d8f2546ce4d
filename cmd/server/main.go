package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rsvp-api/internal/config"
	"rsvp-api/internal/handlers"
	"rsvp-api/internal/telemetry"
	"rsvp-api/pkg/server"
)

const (
	serviceName = "rsvp-api"
	version     = "1.0.0"
)

// @title RSVP API
// @version 1.0
// @description Event RSVP intake: record, look up and update RSVPs
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8081
// @BasePath /
func main() {
	// Load configuration. An invalid config still starts the server so the
	// failure is visible to the form as a ConfigurationError.
	cfg, cfgErr := config.Load()
	logger := config.NewLogger(cfg.Log)

	ctx := context.Background()

	tracing, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName, logger)
	if err != nil {
		logger.WithError(err).Warn("Tracing disabled")
	}
	defer tracing.Shutdown(context.Background())

	var (
		dispatcher  *handlers.Dispatcher
		healthCheck func(ctx context.Context) error
	)
	if cfgErr != nil {
		logger.WithError(cfgErr).Error("Invalid configuration, every RSVP request will fail")
		dispatcher = handlers.NewFailedDispatcher(cfgErr, cfg.CORS)
	} else {
		container, err := server.NewContainer(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize container")
		}
		defer container.Close()
		healthCheck = container.HealthCheck

		dispatcher = handlers.NewDispatcher(container.Service, cfg.CORS, handlers.WithObserver(container.Observer))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlers.SetupRoutes(router, &handlers.RouterConfig{
		Dispatcher:  dispatcher,
		Logger:      logger,
		ServiceName: serviceName,
		Version:     version,
		HealthCheck: healthCheck,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"store_type":  cfg.Store.Type,
		"mode":        config.GetDeploymentMode(),
		"swagger_url": "/swagger/index.html",
	}).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
