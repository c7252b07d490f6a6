package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.toml")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.toml", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nonexistent.toml")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		def := DefaultConfig()
		assert.Equal(t, def.Serial, cfg.Serial)
		assert.Equal(t, def.Logging, cfg.Logging)
		assert.Empty(t, cfg.Security.AllowedPorts)
	})

	t.Run("load default config without a path", func(t *testing.T) {
		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Serial.MaxConnections)
	})

	t.Run("load config from TOML", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `
[serial]
max_connections = 3
connection_timeout = "5s"
max_buffer_size = 2048

[security]
blocked_ports = ["/dev/ttyS0"]

[logging]
level = "debug"
`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o644))

		cfg, err := Load(configPath)

		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Serial.MaxConnections)
		assert.Equal(t, 5*time.Second, cfg.Serial.ConnectionTimeout)
		assert.Equal(t, 2048, cfg.Serial.MaxBufferSize)
		assert.Equal(t, []string{"/dev/ttyS0"}, cfg.Security.BlockedPorts)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// Unset keys keep their defaults
		assert.Equal(t, 115200, cfg.Serial.DefaultBaudRate)
	})

	t.Run("load config from JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		testConfig := `{"serial": {"default_baud_rate": 9600}, "metrics": {"addr": "127.0.0.1:9100"}}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0o644))

		cfg, err := Load(configPath)

		require.NoError(t, err)
		assert.Equal(t, 9600, cfg.Serial.DefaultBaudRate)
		assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("serial:\n  max_connections: 3\n"), 0o644))
		t.Setenv("SERIAL_MCP_SERIAL_MAX_CONNECTIONS", "7")
		t.Setenv("SERIAL_MCP_LOGGING_LEVEL", "warn")

		cfg, err := Load(configPath)

		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Serial.MaxConnections)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(configPath, []byte("[serial]\nmax_buffer_size = 4194304\n"), 0o644))

		_, err := Load(configPath)
		assert.Error(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0o644))

		_, err := Load(configPath)
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	for _, ext := range []string{"toml", "json", "yaml"} {
		t.Run(ext, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "sub", "config."+ext)

			cfg := DefaultConfig()
			cfg.Serial.MaxConnections = 4
			cfg.Serial.ConnectionTimeout = 12 * time.Second
			cfg.Security.AllowedPorts = []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}

			require.NoError(t, NewLoader(configPath).Save(cfg))

			loaded, err := Load(configPath)
			require.NoError(t, err)
			assert.Equal(t, 4, loaded.Serial.MaxConnections)
			assert.Equal(t, 12*time.Second, loaded.Serial.ConnectionTimeout)
			assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, loaded.Security.AllowedPorts)
		})
	}

	t.Run("no path", func(t *testing.T) {
		assert.Error(t, NewLoader("").Save(DefaultConfig()))
	})
}

func TestGenerate(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "serial-mcp.toml")

	require.NoError(t, Generate(configPath))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Serial, cfg.Serial)
}
