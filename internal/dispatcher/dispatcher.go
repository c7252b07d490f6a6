// Package dispatcher exposes the connection manager as MCP tools.
package dispatcher

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	serial "github.com/nostoslabs/serial-mcp-server"
	"github.com/nostoslabs/serial-mcp-server/internal/config"
)

// idleReadsPerSecond bounds how often a handle that just returned no data
// may be read again.
const idleReadsPerSecond = 10

// Dispatcher translates tool calls into Manager operations and formats the
// results for the calling agent.
type Dispatcher struct {
	manager *serial.Manager
	cfg     *config.Config
	logger  zerolog.Logger
	server  *server.MCPServer

	mu     sync.Mutex
	pacers map[serial.Handle]ratelimit.Limiter
}

func New(m *serial.Manager, cfg *config.Config, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		manager: m,
		cfg:     cfg,
		logger:  logger,
		pacers:  make(map[serial.Handle]ratelimit.Limiter),
	}
	d.server = server.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	d.registerTools()
	return d
}

// Server returns the underlying MCP server.
func (d *Dispatcher) Server() *server.MCPServer { return d.server }

// ServeStdio speaks MCP over in/out until ctx ends or in is closed.
func (d *Dispatcher) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	d.logger.Info().Str("name", d.cfg.Server.Name).Str("version", d.cfg.Server.Version).Msg("serving MCP over stdio")
	return server.NewStdioServer(d.server).Listen(ctx, in, out)
}

// pace blocks when the previous read on h came back empty, so an agent
// polling a silent device cannot spin. A request already abandoned is not
// made to wait.
func (d *Dispatcher) pace(ctx context.Context, h serial.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	l := d.pacers[h]
	d.mu.Unlock()
	if l != nil {
		l.Take()
	}
	return ctx.Err()
}

// afterRead arms pacing for h after an empty read and disarms it otherwise.
func (d *Dispatcher) afterRead(h serial.Handle, empty bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !empty {
		delete(d.pacers, h)
		return
	}
	if _, ok := d.pacers[h]; !ok {
		l := ratelimit.New(idleReadsPerSecond, ratelimit.WithoutSlack)
		l.Take() // first call never waits; it marks the empty read
		d.pacers[h] = l
	}
}

func (d *Dispatcher) forget(h serial.Handle) {
	d.mu.Lock()
	delete(d.pacers, h)
	d.mu.Unlock()
}

// opContext bounds how long a call may wait for a busy session.
func (d *Dispatcher) opContext(ctx context.Context, extra time.Duration) (context.Context, context.CancelFunc) {
	bound := d.cfg.Serial.ConnectionTimeout
	if extra > math.MaxInt64-bound {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, bound+extra)
}
