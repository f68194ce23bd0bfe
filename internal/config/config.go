package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"       validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database"     validate:"required"`
	Auth         AuthConfig         `mapstructure:"auth"         validate:"required"`
	Runway       RunwayConfig       `mapstructure:"runway"       validate:"required"`
	Polling      PollingConfig      `mapstructure:"polling"      validate:"required"`
	Notification NotificationConfig `mapstructure:"notification"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains the settings used to verify bearer tokens.
// Tokens are issued by the identity service; this service only validates them.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// RunwayConfig configures the client for the remote generation API.
type RunwayConfig struct {
	APIKey           string        `mapstructure:"api_key"            validate:"required"`
	BaseURL          string        `mapstructure:"base_url"           validate:"required,url"`
	APIVersion       string        `mapstructure:"api_version"        validate:"required"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"    validate:"gt=0"`
	CreateMaxRetries int           `mapstructure:"create_max_retries" validate:"gte=0,lte=10"`
}

// PollingConfig controls the schedule of the remote task poller.
type PollingConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"        validate:"gt=0"`
	InitialDelay       time.Duration `mapstructure:"initial_delay"        validate:"gte=0"`
	MaxDelay           time.Duration `mapstructure:"max_delay"            validate:"gtefield=InitialDelay"`
	GrowthFactor       float64       `mapstructure:"growth_factor"        validate:"gte=1"`
	MaxRetries         int           `mapstructure:"max_retries"          validate:"gte=1"`
	MaxConcurrentPolls int           `mapstructure:"max_concurrent_polls" validate:"gte=1"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout"         validate:"gt=0"`
}

// NotificationConfig configures push notifications sent when a job succeeds.
// When disabled, notifications are only logged.
type NotificationConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file" validate:"required_if=Enabled true"`
	Sound           string `mapstructure:"sound"`
}

// CatalogConfig points at an optional task-kind catalog file.
// An empty path selects the built-in catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}
