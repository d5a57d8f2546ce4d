package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Setting names
const (
	KeyTableName        = "RSVP_TABLE_NAME"
	KeyStoreType        = "RSVP_STORE_TYPE"
	KeyRegion           = "AWS_REGION"
	KeyDynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	KeySQLitePath       = "SQLITE_PATH"
	KeyBoltPath         = "BOLT_PATH"
	KeyCORSAllowOrigin  = "CORS_ALLOW_ORIGIN"
	KeyCORSAllowHeaders = "CORS_ALLOW_HEADERS"
	KeyPort             = "PORT"
	KeyEnvironment      = "ENVIRONMENT"
	KeyLogLevel         = "LOG_LEVEL"
	KeyLogFormat        = "LOG_FORMAT"
	KeyDebug            = "RSVP_DEBUG"
	KeyOTelEndpoint     = "OTEL_EXPORTER_OTLP_ENDPOINT"
	KeyOTelEnabled      = "OTEL_ENABLED"
)

// Default values
const (
	DefaultStoreType        = "dynamodb"
	DefaultRegion           = "us-east-1"
	DefaultSQLitePath       = "./data/rsvp.db"
	DefaultBoltPath         = "./data/rsvp.bolt"
	DefaultCORSAllowOrigin  = "*"
	DefaultCORSAllowHeaders = "Content-Type,X-Amz-Date,Authorization,X-Api-Key"
	DefaultPort             = "8081"
	DefaultEnvironment      = "development"
)

// ErrMissingTableName is returned when no record table is configured
var ErrMissingTableName = errors.New("record table name is not configured")

// Error reports an invalid or missing setting
type Error struct {
	Setting string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error for %s: %v", e.Setting, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds all configuration for the application
type Config struct {
	Environment string `setting:"ENVIRONMENT" validate:"required"`
	Port        string `setting:"PORT" validate:"required,numeric"`
	Debug       bool
	Store       StoreConfig
	CORS        CORSConfig
	Log         LogConfig
	Telemetry   TelemetryConfig
}

// StoreConfig selects and locates the record store
type StoreConfig struct {
	Type       string `setting:"RSVP_STORE_TYPE" validate:"oneof=dynamodb sqlite bolt memory"`
	TableName  string `setting:"RSVP_TABLE_NAME" validate:"required"`
	Region     string `setting:"AWS_REGION"`
	Endpoint   string `setting:"DYNAMODB_ENDPOINT" validate:"omitempty,url"`
	SQLitePath string `setting:"SQLITE_PATH"`
	BoltPath   string `setting:"BOLT_PATH"`
}

// CORSConfig holds the cross-origin response headers
type CORSConfig struct {
	AllowOrigin  string `setting:"CORS_ALLOW_ORIGIN" validate:"required"`
	AllowHeaders string `setting:"CORS_ALLOW_HEADERS" validate:"required"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `setting:"LOG_LEVEL"`
	Format string `setting:"LOG_FORMAT" validate:"omitempty,oneof=json text"`
}

// TelemetryConfig holds OpenTelemetry exporter configuration
type TelemetryConfig struct {
	Enabled  bool
	Endpoint string `setting:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"omitempty,url"`
}

// Load loads configuration from the environment and an optional .env file.
// On a validation failure the loaded config is still returned together with
// a *Error, so callers can keep serving CORS headers and logging.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(KeyStoreType, DefaultStoreType)
	v.SetDefault(KeyRegion, DefaultRegion)
	v.SetDefault(KeySQLitePath, DefaultSQLitePath)
	v.SetDefault(KeyBoltPath, DefaultBoltPath)
	v.SetDefault(KeyCORSAllowOrigin, DefaultCORSAllowOrigin)
	v.SetDefault(KeyCORSAllowHeaders, DefaultCORSAllowHeaders)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyEnvironment, DefaultEnvironment)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyOTelEnabled, true)

	config := &Config{
		Environment: v.GetString(KeyEnvironment),
		Port:        v.GetString(KeyPort),
		Debug:       v.GetBool(KeyDebug),
		Store: StoreConfig{
			Type:       strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreType))),
			TableName:  strings.TrimSpace(v.GetString(KeyTableName)),
			Region:     v.GetString(KeyRegion),
			Endpoint:   v.GetString(KeyDynamoDBEndpoint),
			SQLitePath: v.GetString(KeySQLitePath),
			BoltPath:   v.GetString(KeyBoltPath),
		},
		CORS: CORSConfig{
			AllowOrigin:  v.GetString(KeyCORSAllowOrigin),
			AllowHeaders: v.GetString(KeyCORSAllowHeaders),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
		},
		Telemetry: TelemetryConfig{
			Enabled:  v.GetBool(KeyOTelEnabled),
			Endpoint: v.GetString(KeyOTelEndpoint),
		},
	}

	if config.Debug {
		config.Log.Level = "debug"
	}

	return config, config.Validate()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("setting"); name != "" {
			return name
		}
		return field.Name
	})
	return v
}

// Validate checks the configuration and returns the first failing setting
// as a *Error
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}

	// Report the table name first: without it no store can be built
	for _, fe := range fieldErrs {
		if fe.Field() == KeyTableName {
			return &Error{Setting: KeyTableName, Err: ErrMissingTableName}
		}
	}

	fe := fieldErrs[0]
	return &Error{
		Setting: fe.Field(),
		Err:     fmt.Errorf("invalid value %q (rule %s)", fmt.Sprint(fe.Value()), fe.Tag()),
	}
}

// IsProduction reports whether the service runs in a production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
