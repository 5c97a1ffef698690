// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.sheetsage/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Model: Gemini model selection, temperature, max tokens, rate limit
//   - Storage: PostgreSQL connection (see storage.go)
//   - History: Redis conversation context
//   - Server/Client: listen address and remote API base URL
//   - Tracing: OTLP exporter settings (see observability.go)
//
// Security: sensitive values (passwords, API keys) are never logged; the
// config directory uses 0750 permissions.
//
// Error handling uses sentinel errors checked with errors.Is(); wrap with
// fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidListenAddr indicates the server listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidAPIBaseURL indicates the client API base URL is invalid.
	ErrInvalidAPIBaseURL = errors.New("invalid API base URL")

	// ErrInvalidHistoryLimit indicates the history limit is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrInvalidPageSize indicates the table page size is out of range.
	ErrInvalidPageSize = errors.New("invalid page size")

	// ErrInvalidRateLimit indicates the model rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

const (
	// DefaultModelName is the default Gemini model for SQL and answer
	// generation.
	DefaultModelName = "gemini-2.0-flash"

	// DefaultHistoryLimit is how many prior exchanges feed the prompt.
	DefaultHistoryLimit = 20

	// MaxHistoryLimit caps the history window.
	MaxHistoryLimit = 200

	// DefaultPageSize is the default rows-per-page for table views.
	DefaultPageSize = 20
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update
// MarshalJSON.
type Config struct {
	// Model configuration
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// ModelRPM throttles Gemini calls, requests per minute.
	ModelRPM int `mapstructure:"model_rpm" json:"model_rpm"`

	// Server configuration
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Client configuration: where the ask/upload commands reach the API.
	APIBaseURL string `mapstructure:"api_base_url" json:"api_base_url"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Conversation history configuration
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`
	HistoryLimit  int    `mapstructure:"history_limit" json:"history_limit"`

	// Presentation configuration
	PageSize int `mapstructure:"page_size" json:"page_size"`

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sheetsage")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* values.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.1)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("model_rpm", 30)

	viper.SetDefault("listen_addr", ":8000")
	viper.SetDefault("api_base_url", "http://localhost:8000")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "sheetsage")
	viper.SetDefault("postgres_password", "sheetsage_dev_password")
	viper.SetDefault("postgres_db_name", "sheetsage")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("redis_addr", "localhost:6379")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("history_limit", DefaultHistoryLimit)

	viper.SetDefault("page_size", DefaultPageSize)

	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "sheetsage")
}

// bindEnvVariables binds environment variables explicitly.
//
// GEMINI_API_KEY is read directly by the genai client, not via Viper;
// Validate() only checks its presence.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "SHEETSAGE_MODEL_NAME")
	mustBind("listen_addr", "SHEETSAGE_LISTEN_ADDR")
	mustBind("api_base_url", "SHEETSAGE_API_URL")
	mustBind("redis_addr", "SHEETSAGE_REDIS_ADDR")
	mustBind("redis_password", "SHEETSAGE_REDIS_PASSWORD")
	mustBind("tracing.enabled", "SHEETSAGE_TRACING")
	mustBind("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) cannot collide with password substrings.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of eight bytes
// or fewer are fully masked; longer ones keep the first and last two
// characters for debug utility.
//
// This defends against accidental logging of real secrets, nothing more. If
// logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - RedisPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
