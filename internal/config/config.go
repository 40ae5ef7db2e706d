// Package config manages application configuration from a YAML file,
// environment variables, and default values.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration indicates an invalid or unloadable configuration.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration. Values can be set via
// environment variables prefixed with WEBHOOKD_ (e.g. WEBHOOKD_WEBHOOK_SECRET)
// or through the YAML config file.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"      validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"required,min=1s,max=5m"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"required,min=1s,max=5m"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,min=1s,max=5m"`
}

// DatabaseConfig controls SQLite storage.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`

	// OpTimeout bounds every storage call; expiry surfaces as a store
	// unavailable error.
	OpTimeout time.Duration `mapstructure:"op_timeout" validate:"required,min=100ms,max=1m"`
}

// WebhookConfig holds the shared secret used to verify inbound signatures.
// The service refuses to start without it.
type WebhookConfig struct {
	Secret string `mapstructure:"secret" validate:"required"`
}

// MaintenanceConfig controls the scheduled VACUUM job.
type MaintenanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// Default configuration values for optional parameters.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultListenAddr      = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultDBPath      = "webhookd.db"
	DefaultDBOpTimeout = 5 * time.Second

	DefaultMaintenanceSchedule = "0 4 * * *"
)
