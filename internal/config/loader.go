package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SERIAL_MCP_SERIAL_MAX_CONNECTIONS.
const EnvPrefix = "SERIAL_MCP"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path loads defaults and
// environment overrides only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

func (l *Loader) newViper() *viper.Viper {
	v := viper.New()
	for key, val := range toMap(DefaultConfig()) {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the file (TOML, JSON or YAML by extension), applies environment
// overrides and validates the result. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	v := l.newViper()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			v.SetConfigFile(l.configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to the loader's path in the format its extension names.
func (l *Loader) Save(cfg *Config) error {
	if l.configPath == "" {
		return errors.New("no config path given")
	}
	if err := os.MkdirAll(filepath.Dir(l.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, val := range toMap(cfg) {
		v.Set(key, val)
	}
	if err := v.WriteConfigAs(l.configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	return l.configPath
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Generate writes the default configuration to path.
func Generate(path string) error {
	return NewLoader(path).Save(DefaultConfig())
}

// toMap flattens cfg into viper keys. Durations are written as strings so
// every supported format can read them back.
func toMap(cfg *Config) map[string]any {
	return map[string]any{
		"server.name":    cfg.Server.Name,
		"server.version": cfg.Server.Version,

		"serial.max_connections":    cfg.Serial.MaxConnections,
		"serial.connection_timeout": cfg.Serial.ConnectionTimeout.String(),
		"serial.default_baud_rate":  cfg.Serial.DefaultBaudRate,
		"serial.default_timeout_ms": cfg.Serial.DefaultTimeoutMs,
		"serial.max_buffer_size":    cfg.Serial.MaxBufferSize,
		"serial.max_data_size":      cfg.Serial.MaxDataSize,

		"security.allowed_ports":     nonNil(cfg.Security.AllowedPorts),
		"security.blocked_ports":     nonNil(cfg.Security.BlockedPorts),
		"security.strict_port_names": cfg.Security.StrictPortNames,

		"logging.level":        cfg.Logging.Level,
		"logging.file":         cfg.Logging.File,
		"logging.pretty":       cfg.Logging.Pretty,
		"logging.max_size_mb":  cfg.Logging.MaxSizeMB,
		"logging.max_backups":  cfg.Logging.MaxBackups,
		"logging.max_age_days": cfg.Logging.MaxAgeDays,
		"logging.compress":     cfg.Logging.Compress,

		"metrics.addr": cfg.Metrics.Addr,
		"metrics.path": cfg.Metrics.Path,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
