// Package cli implements the serial-mcp-server command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	serial "github.com/nostoslabs/serial-mcp-server"
	"github.com/nostoslabs/serial-mcp-server/internal/config"
	"github.com/nostoslabs/serial-mcp-server/internal/dispatcher"
	"github.com/nostoslabs/serial-mcp-server/internal/logger"
)

const version = "0.1.0"

// settings holds flag values shared by all commands.
type settings struct {
	cfgFile          string
	logLevel         string
	logFile          string
	maxConnections   int
	defaultBaudRate  int
	defaultTimeoutMs int
	maxBufferSize    int
	metricsAddr      string

	generateConfig string
	validateConfig bool
	showConfig     bool

	// test seams
	opener    serial.Opener
	listPorts func(context.Context) ([]serial.PortDescriptor, error)
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&settings{listPorts: serial.ListPorts})
}

func newRootCmd(s *settings) *cobra.Command {
	root := &cobra.Command{
		Use:   "serial-mcp-server",
		Short: "Serial port access for AI agents over MCP",
		Long: `serial-mcp-server exposes the host's serial ports as MCP tools.

Agents can list ports, open connections, write and read data, and close
connections. The MCP protocol is spoken on stdin/stdout; logs go to stderr.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          s.runServe,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.cfgFile, "config", "", "config file (TOML, JSON or YAML)")
	pf.StringVar(&s.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&s.logFile, "log-file", "", "also log to this file, rotated by size")
	pf.IntVar(&s.maxConnections, "max-connections", 0, "maximum open connections")
	pf.IntVar(&s.defaultBaudRate, "default-baud-rate", 0, "baud rate used when open omits one")
	pf.IntVar(&s.defaultTimeoutMs, "default-timeout-ms", 0, "read timeout used when read omits one")
	pf.IntVar(&s.maxBufferSize, "max-buffer-size", 0, "largest single read in bytes")

	f := root.Flags()
	f.StringVar(&s.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.StringVar(&s.generateConfig, "generate-config", "", "write a default config file to this path and exit")
	f.BoolVar(&s.validateConfig, "validate-config", false, "validate the configuration and exit")
	f.BoolVar(&s.showConfig, "show-config", false, "print the effective configuration and exit")

	root.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	root.AddCommand(newPortsCmd(s), newConsoleCmd(s))
	return root
}

// loadConfig reads the config file and applies explicitly set flags.
func (s *settings) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(s.cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = s.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = s.logFile
	}
	if flags.Changed("max-connections") {
		cfg.Serial.MaxConnections = s.maxConnections
	}
	if flags.Changed("default-baud-rate") {
		cfg.Serial.DefaultBaudRate = s.defaultBaudRate
	}
	if flags.Changed("default-timeout-ms") {
		cfg.Serial.DefaultTimeoutMs = s.defaultTimeoutMs
	}
	if flags.Changed("max-buffer-size") {
		cfg.Serial.MaxBufferSize = s.maxBufferSize
	}
	if flags.Lookup("metrics-addr") != nil && flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = s.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *settings) newManager(cfg *config.Config, log zerolog.Logger) *serial.Manager {
	opts := append(cfg.ManagerOptions(), serial.WithLogger(log))
	if s.opener != nil {
		opts = append(opts, serial.WithOpener(s.opener))
	}
	return serial.NewManager(opts...)
}

func (s *settings) runServe(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if s.generateConfig != "" {
		if err := config.Generate(s.generateConfig); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote default configuration to %s\n", s.generateConfig)
		return nil
	}

	cfg, err := s.loadConfig(cmd)
	if err != nil {
		return err
	}
	if s.validateConfig {
		fmt.Fprintln(out, "Configuration is valid")
		return nil
	}
	if s.showConfig {
		kv := cfg.Settings()
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s = %v\n", k, kv[k])
		}
		return nil
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := s.newManager(cfg, log.Logger)
	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics, m, log.Logger)
		defer shutdownMetricsServer(srv, log.Logger)
	}

	serveErr := dispatcher.New(m, cfg, log.Logger).ServeStdio(ctx, cmd.InOrStdin(), out)
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Serial.ConnectionTimeout)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("closing connections")
		serveErr = errors.Join(serveErr, err)
	}
	log.Info().Msg("server stopped")
	return serveErr
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
