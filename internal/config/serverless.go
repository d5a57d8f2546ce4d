package config

import (
	"os"
	"path/filepath"
	"sync"
)

// lambdaTmpDir is the only writable location inside a Lambda sandbox
const lambdaTmpDir = "/tmp"

// ServerlessConfig holds serverless-specific configuration
type ServerlessConfig struct {
	IsLambda     bool
	FunctionName string
	Region       string
	Stage        string
}

// Global serverless configuration
var (
	serverlessConfig *ServerlessConfig
	serverlessOnce   sync.Once
)

// GetServerlessConfig returns the serverless configuration
func GetServerlessConfig() *ServerlessConfig {
	serverlessOnce.Do(func() {
		serverlessConfig = detectServerless()
	})
	return serverlessConfig
}

func detectServerless() *ServerlessConfig {
	return &ServerlessConfig{
		IsLambda:     isRunningInLambda(),
		FunctionName: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
		Region:       os.Getenv("AWS_REGION"),
		Stage:        GetEnv("STAGE", "dev"),
	}
}

// isRunningInLambda detects if the application is running in AWS Lambda
func isRunningInLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// IsServerlessMode returns true if running in serverless mode
func IsServerlessMode() bool {
	return GetServerlessConfig().IsLambda
}

// GetDeploymentMode returns the current deployment mode
func GetDeploymentMode() string {
	if IsServerlessMode() {
		return "serverless"
	}
	return "server"
}

// AdaptConfigForServerless modifies configuration for serverless deployment
func AdaptConfigForServerless(config *Config, sc *ServerlessConfig) *Config {
	if sc == nil || !sc.IsLambda {
		return config
	}

	if config.Log.Format == "" {
		config.Log.Format = "json"
	}

	// Local stores must live under /tmp; the rest of the sandbox is read-only
	if config.Store.SQLitePath == DefaultSQLitePath {
		config.Store.SQLitePath = filepath.Join(lambdaTmpDir, filepath.Base(DefaultSQLitePath))
	}
	if config.Store.BoltPath == DefaultBoltPath {
		config.Store.BoltPath = filepath.Join(lambdaTmpDir, filepath.Base(DefaultBoltPath))
	}

	if config.Store.Region == "" {
		config.Store.Region = sc.Region
	}

	return config
}

// GetOptimizedConfig returns configuration optimized for the current
// deployment mode. Like Load, it returns the config even when it is invalid.
func GetOptimizedConfig() (*Config, error) {
	config, err := Load()
	config = AdaptConfigForServerless(config, GetServerlessConfig())

	if config.Log.Format == "" && config.IsProduction() {
		config.Log.Format = "json"
	}

	return config, err
}
