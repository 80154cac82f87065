// Package config loads and validates the service configuration from the
// environment.
//
// Variables are read with the OFFICEPASS_ prefix; a double underscore
// separates nesting levels so single underscores survive inside key names,
// e.g. OFFICEPASS_STORAGE__MYSQL__CONNECTION_LIMIT →
// storage.mysql.connection_limit. A .env file is honored for local runs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/officepass/officepass/internal/database"
	"github.com/officepass/officepass/internal/database/adapter"
)

const envPrefix = "OFFICEPASS_"

// Config is the root configuration object.
type Config struct {
	Primary    Primary          `koanf:"primary"`
	Storage    StorageConfig    `koanf:"storage" validate:"required"`
	Resilience ResilienceConfig `koanf:"resilience"`
	Timeouts   TimeoutConfig    `koanf:"timeouts"`
}

// Primary holds top-level runtime information.
type Primary struct {
	Env      string `koanf:"env"`
	LogLevel string `koanf:"log_level"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend string       `koanf:"backend" validate:"required,oneof=mysql sqlite"`
	MySQL   MySQLConfig  `koanf:"mysql"`
	SQLite  SQLiteConfig `koanf:"sqlite"`
}

// MySQLConfig contains the pooled networked backend settings.
type MySQLConfig struct {
	Host               string `koanf:"host"`
	Port               int    `koanf:"port" validate:"omitempty,gte=1,lte=65535"`
	User               string `koanf:"user"`
	Password           string `koanf:"password"`
	Database           string `koanf:"database"`
	ConnectionLimit    int    `koanf:"connection_limit"`
	AcquireTimeoutMS   int    `koanf:"acquire_timeout_ms"`
	TimeoutMS          int    `koanf:"timeout_ms"`
	MultipleStatements bool   `koanf:"multiple_statements"`
}

// SQLiteConfig contains the embedded backend settings.
type SQLiteConfig struct {
	Path    string            `koanf:"path"`
	Mode    string            `koanf:"mode"`
	Pragmas map[string]string `koanf:"pragmas"`
}

// ResilienceConfig tunes the connection service's retry and health behavior.
type ResilienceConfig struct {
	MaxRetries        int `koanf:"max_retries"`
	RetryBaseDelayMS  int `koanf:"retry_base_delay_ms"`
	ConnectTimeoutMS  int `koanf:"connect_timeout_ms"`
	HealthIntervalSec int `koanf:"health_interval_sec"`
}

// TimeoutConfig tunes the timeout/retry manager.
type TimeoutConfig struct {
	MaxRetries        int     `koanf:"max_retries"`
	BaseDelayMS       int     `koanf:"base_delay_ms"`
	BackoffMultiplier float64 `koanf:"backoff_multiplier"`
	QueryBudgetMS     int     `koanf:"query_budget_ms"`
}

// Load reads the environment into a validated Config.
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.AdapterConfig().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AdapterConfig builds the backend configuration union from the loaded
// settings. Only the selected variant is populated.
func (c *Config) AdapterConfig() adapter.Config {
	backend, _ := adapter.ParseBackendType(c.Storage.Backend)
	cfg := adapter.Config{Type: backend}

	switch backend {
	case adapter.BackendMySQL:
		cfg.MySQL = &adapter.MySQLConfig{
			Host:               c.Storage.MySQL.Host,
			Port:               c.Storage.MySQL.Port,
			User:               c.Storage.MySQL.User,
			Password:           c.Storage.MySQL.Password,
			Database:           c.Storage.MySQL.Database,
			ConnectionLimit:    c.Storage.MySQL.ConnectionLimit,
			AcquireTimeout:     time.Duration(c.Storage.MySQL.AcquireTimeoutMS) * time.Millisecond,
			Timeout:            time.Duration(c.Storage.MySQL.TimeoutMS) * time.Millisecond,
			MultipleStatements: c.Storage.MySQL.MultipleStatements,
		}
	case adapter.BackendSQLite:
		cfg.SQLite = &adapter.SQLiteConfig{
			Path:    c.Storage.SQLite.Path,
			Mode:    c.Storage.SQLite.Mode,
			Pragmas: c.Storage.SQLite.Pragmas,
		}
	}
	return cfg
}

// ServiceOptions builds the resilience service settings, falling back to
// defaults for anything unset.
func (c *Config) ServiceOptions() database.ServiceOptions {
	opts := database.DefaultServiceOptions()
	if c.Resilience.MaxRetries > 0 {
		opts.MaxRetries = c.Resilience.MaxRetries
	}
	if c.Resilience.RetryBaseDelayMS > 0 {
		opts.RetryBaseDelay = time.Duration(c.Resilience.RetryBaseDelayMS) * time.Millisecond
	}
	if c.Resilience.ConnectTimeoutMS > 0 {
		opts.ConnectTimeout = time.Duration(c.Resilience.ConnectTimeoutMS) * time.Millisecond
	}
	if c.Resilience.HealthIntervalSec > 0 {
		opts.HealthInterval = time.Duration(c.Resilience.HealthIntervalSec) * time.Second
	}
	return opts
}

// TimeoutOptions builds the timeout manager settings, falling back to
// defaults for anything unset.
func (c *Config) TimeoutOptions() database.TimeoutOptions {
	opts := database.DefaultTimeoutOptions()
	if c.Timeouts.MaxRetries > 0 {
		opts.MaxRetries = c.Timeouts.MaxRetries
	}
	if c.Timeouts.BaseDelayMS > 0 {
		opts.BaseDelay = time.Duration(c.Timeouts.BaseDelayMS) * time.Millisecond
	}
	if c.Timeouts.BackoffMultiplier > 1 {
		opts.BackoffMultiplier = c.Timeouts.BackoffMultiplier
	}
	if c.Timeouts.QueryBudgetMS > 0 {
		opts.Budgets[database.OpQuery] = time.Duration(c.Timeouts.QueryBudgetMS) * time.Millisecond
	}
	return opts
}
