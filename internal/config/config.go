// Package config holds the server configuration and loads it from file,
// environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	serial "github.com/nostoslabs/serial-mcp-server"
	"github.com/nostoslabs/serial-mcp-server/internal/logger"
)

// Config is the complete server configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig describes the MCP server identity
type ServerConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version" validate:"required"`
}

// SerialConfig holds connection limits and per-tool defaults
type SerialConfig struct {
	MaxConnections    int           `mapstructure:"max_connections" validate:"min=1,max=1000"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" validate:"gt=0"`
	DefaultBaudRate   int           `mapstructure:"default_baud_rate" validate:"gt=0"`
	DefaultTimeoutMs  int           `mapstructure:"default_timeout_ms" validate:"min=0,max=600000"`
	MaxBufferSize     int           `mapstructure:"max_buffer_size" validate:"min=1,max=1048576"`
	MaxDataSize       int           `mapstructure:"max_data_size" validate:"min=1,max=1048576"`
}

// SecurityConfig restricts which devices may be opened
type SecurityConfig struct {
	AllowedPorts    []string `mapstructure:"allowed_ports"`
	BlockedPorts    []string `mapstructure:"blocked_ports"`
	StrictPortNames bool     `mapstructure:"strict_port_names"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	File       string `mapstructure:"file"`
	Pretty     bool   `mapstructure:"pretty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Path string `mapstructure:"path" validate:"startswith=/"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "serial-mcp-server",
			Version: "0.1.0",
		},
		Serial: SerialConfig{
			MaxConnections:    serial.DefaultMaxSessions,
			ConnectionTimeout: 30 * time.Second,
			DefaultBaudRate:   serial.Baud115200.Int(),
			DefaultTimeoutMs:  1000,
			MaxBufferSize:     serial.DefaultMaxReadBytes,
			MaxDataSize:       serial.MaxBufferSize,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", serial.ErrInvalidConfiguration, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value: %v)", configKey(fe), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", serial.ErrInvalidConfiguration, strings.Join(msgs, "; "))
}

// configKey turns "Config.Serial.MaxBufferSize" into "serial.MaxBufferSize".
func configKey(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return strings.ToLower(ns[:i]) + ns[i:]
	}
	return ns
}

// ManagerOptions converts the configuration into connection manager options.
func (c *Config) ManagerOptions() []serial.Option {
	return []serial.Option{
		serial.WithMaxSessions(c.Serial.MaxConnections),
		serial.WithMaxReadBytes(c.Serial.MaxBufferSize),
		serial.WithMaxWriteBytes(c.Serial.MaxDataSize),
		serial.WithPortPolicy(serial.PortPolicy{
			Allowed:     c.Security.AllowedPorts,
			Blocked:     c.Security.BlockedPorts,
			StrictNames: c.Security.StrictPortNames,
		}),
	}
}

// LoggerConfig converts the logging section for the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		Console:    true,
		Pretty:     c.Logging.Pretty,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// DefaultTimeout is the read window used when a caller gives none.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Serial.DefaultTimeoutMs) * time.Millisecond
}

// Settings returns the configuration as flat viper keys, e.g.
// "serial.max_connections".
func (c *Config) Settings() map[string]any {
	return toMap(c)
}
