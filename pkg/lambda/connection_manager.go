package lambda

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rsvp-api/internal/config"
	"rsvp-api/pkg/server"
)

// ConnectionManager owns the service container for the lifetime of a Lambda
// execution environment. The container is built on first use and reused by
// every warm invocation.
type ConnectionManager struct {
	container *server.Container
	config    *config.Config
	initErr   error
	lastUsed  time.Time
	mu        sync.RWMutex
	initOnce  sync.Once
	load      func() (*config.Config, error)
	build     func(ctx context.Context, cfg *config.Config) (*server.Container, error)
}

var (
	globalConnectionManager *ConnectionManager
	connectionManagerOnce   sync.Once
)

// GetConnectionManager returns the global connection manager instance
func GetConnectionManager() *ConnectionManager {
	connectionManagerOnce.Do(func() {
		globalConnectionManager = NewConnectionManager(nil)
	})
	return globalConnectionManager
}

// NewConnectionManager creates a connection manager. A nil loader uses
// config.GetOptimizedConfig.
func NewConnectionManager(load func() (*config.Config, error)) *ConnectionManager {
	if load == nil {
		load = config.GetOptimizedConfig
	}
	return &ConnectionManager{
		load: load,
		build: func(ctx context.Context, cfg *config.Config) (*server.Container, error) {
			return server.NewContainer(ctx, cfg, config.NewLogger(cfg.Log))
		},
	}
}

// GetContainer returns the service container, initializing it on first use.
// A failed initialization is remembered; the configuration of an execution
// environment does not change between invocations.
func (cm *ConnectionManager) GetContainer(ctx context.Context) (*server.Container, error) {
	cm.initOnce.Do(func() {
		cfg, err := cm.load()

		cm.mu.Lock()
		defer cm.mu.Unlock()

		cm.config = cfg
		if err != nil {
			cm.initErr = err
			return
		}

		container, err := cm.build(ctx, cfg)
		if err != nil {
			cm.initErr = err
			return
		}
		cm.container = container
	})

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.lastUsed = time.Now()
	return cm.container, cm.initErr
}

// Config returns the loaded configuration, which may be partial when
// initialization failed. It is nil before the first GetContainer call.
func (cm *ConnectionManager) Config() *config.Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// IsWarm reports whether the container is initialized and was used in the
// last five minutes
func (cm *ConnectionManager) IsWarm() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.container == nil {
		return false
	}
	return time.Since(cm.lastUsed) < 5*time.Minute
}

// Cleanup closes the container
func (cm *ConnectionManager) Cleanup() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.container != nil {
		if err := cm.container.Close(); err != nil {
			return err
		}
		cm.container = nil
	}
	return nil
}

// Logger returns the container logger, or a standalone one if the container
// could not be built
func (cm *ConnectionManager) Logger() *logrus.Logger {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.container != nil {
		return cm.container.Logger
	}
	if cm.config != nil {
		return config.NewLogger(cm.config.Log)
	}
	return logrus.StandardLogger()
}
