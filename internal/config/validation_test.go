package config

import (
	"errors"
	"testing"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		ModelName:        "gemini-2.0-flash",
		Temperature:      0.1,
		MaxTokens:        2048,
		ModelRPM:         30,
		ListenAddr:       ":8000",
		APIBaseURL:       "http://localhost:8000",
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "sheetsage",
		PostgresPassword: "long_enough_password",
		PostgresDBName:   "sheetsage",
		PostgresSSLMode:  "disable",
		RedisAddr:        "localhost:6379",
		HistoryLimit:     20,
		PageSize:         20,
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	t.Run("valid config passes", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"empty model name", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"rpm zero", func(c *Config) { c.ModelRPM = 0 }, ErrInvalidRateLimit},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, ErrInvalidListenAddr},
		{"api url without scheme", func(c *Config) { c.APIBaseURL = "localhost:8000" }, ErrInvalidAPIBaseURL},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"postgres port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"short password", func(c *Config) { c.PostgresPassword = "short" }, ErrInvalidPostgresPassword},
		{"bad ssl mode", func(c *Config) { c.PostgresSSLMode = "prefer" }, ErrInvalidPostgresSSLMode},
		{"history limit zero", func(c *Config) { c.HistoryLimit = 0 }, ErrInvalidHistoryLimit},
		{"history limit too large", func(c *Config) { c.HistoryLimit = 500 }, ErrInvalidHistoryLimit},
		{"page size zero", func(c *Config) { c.PageSize = 0 }, ErrInvalidPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	var c *Config
	if err := c.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() on nil = %v, want ErrConfigNil", err)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if err := validConfig().Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}
