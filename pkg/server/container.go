package server

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"rsvp-api/internal/adapters/storage"
	"rsvp-api/internal/config"
	"rsvp-api/internal/services"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Store    storage.RecordStore
	Service  services.RSVPService
	Observer services.Observer
}

// Option customizes container construction
type Option func(*containerOptions)

type containerOptions struct {
	factory *storage.Factory
	store   storage.RecordStore
}

// WithFactory overrides the store factory, e.g. to enable retries
func WithFactory(f *storage.Factory) Option {
	return func(o *containerOptions) {
		o.factory = f
	}
}

// WithStore uses an existing store instead of building one from config
func WithStore(store storage.RecordStore) Option {
	return func(o *containerOptions) {
		o.store = store
	}
}

// NewContainer creates a new dependency injection container. The config
// must be valid; a *config.Error is returned otherwise.
func NewContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = config.NewLogger(cfg.Log)
	}

	options := &containerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	store := options.store
	if store == nil {
		factory := options.factory
		if factory == nil {
			factory = storage.DefaultFactory(logger)
		}

		var err error
		store, err = factory.Create(ctx, StoreConfigFrom(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create record store: %w", err)
		}
	}

	observer := services.NewLogObserver(logger)

	logger.WithFields(logrus.Fields{
		"store_type":  cfg.Store.Type,
		"table_name":  cfg.Store.TableName,
		"environment": cfg.Environment,
	}).Info("Service container initialized")

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Service:  services.NewRSVPService(store, services.WithObserver(observer)),
		Observer: observer,
	}, nil
}

// StoreConfigFrom maps application config to the record store config
func StoreConfigFrom(cfg *config.Config) *storage.StoreConfig {
	return &storage.StoreConfig{
		Type:       cfg.Store.Type,
		TableName:  cfg.Store.TableName,
		Region:     cfg.Store.Region,
		Endpoint:   cfg.Store.Endpoint,
		SQLitePath: cfg.Store.SQLitePath,
		BoltPath:   cfg.Store.BoltPath,
	}
}

// HealthCheck verifies the record store when it supports health checks.
// Stores without a check are assumed healthy.
func (c *Container) HealthCheck(ctx context.Context) error {
	if checker, ok := c.Store.(storage.HealthChecker); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}

// Close cleans up all resources
func (c *Container) Close() error {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			return fmt.Errorf("failed to close record store: %w", err)
		}
	}
	return nil
}
