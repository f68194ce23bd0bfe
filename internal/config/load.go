package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load,
// e.g. GENFLOW_DATABASE_URL for database.url.
const EnvPrefix = "GENFLOW"

// configPathEnv names an explicit config file, overriding the search path.
const configPathEnv = EnvPrefix + "_CONFIG_PATH"

// secretKeys have no default and must be bound explicitly so that
// environment variables are visible to Unmarshal.
var secretKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"runway.api_key",
	"notification.credentials_file",
	"catalog.path",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(configPathEnv); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("runway.base_url", "https://api.dev.runwayml.com/v1")
	v.SetDefault("runway.api_version", "2024-11-06")
	v.SetDefault("runway.request_timeout", "30s")
	v.SetDefault("runway.create_max_retries", 2)

	v.SetDefault("polling.tick_interval", "1s")
	v.SetDefault("polling.initial_delay", "5s")
	v.SetDefault("polling.max_delay", "30s")
	v.SetDefault("polling.growth_factor", 1.5)
	v.SetDefault("polling.max_retries", 120)
	v.SetDefault("polling.max_concurrent_polls", 16)
	v.SetDefault("polling.poll_timeout", "20s")

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.sound", "sound.caf")
}
