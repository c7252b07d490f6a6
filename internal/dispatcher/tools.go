package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	serial "github.com/nostoslabs/serial-mcp-server"
)

func (d *Dispatcher) registerTools() {
	d.server.AddTool(mcp.NewTool("list_ports",
		mcp.WithDescription("List all available serial ports on the system"),
	), d.handleListPorts)

	d.server.AddTool(mcp.NewTool("open",
		mcp.WithDescription("Open a serial port connection with specified configuration"),
		mcp.WithString("port", mcp.Required(), mcp.Description("Device path, e.g. /dev/ttyUSB0 or COM3")),
		mcp.WithNumber("baud_rate", mcp.Description(fmt.Sprintf("Baud rate (default %d)", d.cfg.Serial.DefaultBaudRate))),
		mcp.WithString("data_bits", mcp.Description("Data bits: 5, 6, 7 or 8 (default 8)")),
		mcp.WithString("stop_bits", mcp.Description("Stop bits: 1, 1.5 or 2 (default 1)")),
		mcp.WithString("parity", mcp.Description("Parity: none, odd, even, mark or space (default none)")),
		mcp.WithString("flow_control", mcp.Description("Flow control: none, hardware or software (default none)")),
	), d.handleOpen)

	d.server.AddTool(mcp.NewTool("write",
		mcp.WithDescription("Write data to a serial port connection"),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Handle returned by open")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Payload in the chosen encoding")),
		mcp.WithString("encoding", mcp.Description("utf8, hex, base64 or raw (default utf8)")),
	), d.handleWrite)

	d.server.AddTool(mcp.NewTool("read",
		mcp.WithDescription("Read data from a serial port connection"),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Handle returned by open")),
		mcp.WithNumber("timeout_ms", mcp.Description(fmt.Sprintf("How long to wait for data (default %d)", d.cfg.Serial.DefaultTimeoutMs))),
		mcp.WithNumber("max_bytes", mcp.Description("Maximum bytes to return (default 1024)")),
		mcp.WithString("encoding", mcp.Description("utf8, hex, base64 or raw (default utf8)")),
	), d.handleRead)

	d.server.AddTool(mcp.NewTool("close",
		mcp.WithDescription("Close an open serial port connection"),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Handle returned by open")),
	), d.handleClose)

	d.server.AddTool(mcp.NewTool("list_connections",
		mcp.WithDescription("List open serial connections"),
	), d.handleListConnections)

	d.server.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Show connection manager health, or details of one connection"),
		mcp.WithString("connection_id", mcp.Description("Handle returned by open; omit for overall status")),
	), d.handleStatus)
}

const defaultMaxBytes = 1024

const maxTimeout = time.Duration(math.MaxInt64)

// millis converts a millisecond count to a Duration, saturating instead of
// wrapping for counts too large to represent.
func millis(ms int) time.Duration {
	if int64(ms) > int64(maxTimeout/time.Millisecond) {
		return maxTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

func (d *Dispatcher) handleListPorts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ports, err := d.manager.ListPorts(ctx)
	if err != nil {
		return d.toolError("Failed to list ports", err), nil
	}
	if len(ports) == 0 {
		return mcp.NewToolResultText("No serial ports found on the system"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d serial ports:", len(ports))
	for _, p := range ports {
		fmt.Fprintf(&b, "\n- %s: %s", p.Name, p.Description)
		if p.SerialNumber != "" {
			fmt.Fprintf(&b, " (serial %s)", p.SerialNumber)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (d *Dispatcher) handleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, err := req.RequireString("port")
	if err != nil {
		return mcp.NewToolResultError("Error: InvalidConfiguration: " + err.Error()), nil
	}
	cfg, err := d.lineConfig(req)
	if err != nil {
		return d.toolError("Failed to open port "+port, err), nil
	}

	ctx, cancel := d.opContext(ctx, 0)
	defer cancel()
	h, err := d.manager.Open(ctx, port, cfg)
	if err != nil {
		return d.toolError("Failed to open port "+port, err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Serial connection opened\nConnection ID: %s\nPort: %s\nBaud rate: %d\nConfig: %s flow=%s",
		h, port, cfg.BaudRate, cfg, cfg.FlowControl)), nil
}

// lineConfig builds a Config from open arguments, filling defaults.
func (d *Dispatcher) lineConfig(req mcp.CallToolRequest) (serial.Config, error) {
	cfg := serial.DefaultConfig()
	cfg.BaudRate = req.GetInt("baud_rate", d.cfg.Serial.DefaultBaudRate)

	dataBits, err := serial.ParseDataBits(stringArg(req, "data_bits", "8"))
	if err != nil {
		return cfg, err
	}
	stopBits, err := serial.ParseStopBits(stringArg(req, "stop_bits", "1"))
	if err != nil {
		return cfg, err
	}
	parity, err := serial.ParseParity(stringArg(req, "parity", "none"))
	if err != nil {
		return cfg, err
	}
	flow, err := serial.ParseFlowControl(stringArg(req, "flow_control", "none"))
	if err != nil {
		return cfg, err
	}
	cfg.DataBits = dataBits
	cfg.StopBits = stopBits
	cfg.Parity = parity
	cfg.FlowControl = flow
	return cfg, nil
}

func (d *Dispatcher) handleWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, err := handleArg(req)
	if err != nil {
		return mcp.NewToolResultError("Error: InvalidConfiguration: " + err.Error()), nil
	}
	data, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError("Error: InvalidConfiguration: " + err.Error()), nil
	}
	enc, err := serial.ParseEncoding(req.GetString("encoding", "utf8"))
	if err != nil {
		return d.toolError("Data decoding failed", err), nil
	}

	ctx, cancel := d.opContext(ctx, 0)
	defer cancel()
	n, err := d.manager.Write(ctx, h, []byte(data), enc)
	if err != nil {
		d.forgetIfGone(h, err)
		return d.toolError("Data sending failed", err), nil
	}
	d.logger.Debug().Str("handle", h.String()).Int("bytes", n).Str("encoding", string(enc)).Msg("write")

	return mcp.NewToolResultText(fmt.Sprintf(
		"Data sent successfully\nConnection ID: %s\nBytes written: %d\nData: %q", h, n, data)), nil
}

func (d *Dispatcher) handleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, err := handleArg(req)
	if err != nil {
		return mcp.NewToolResultError("Error: InvalidConfiguration: " + err.Error()), nil
	}
	enc, err := serial.ParseEncoding(req.GetString("encoding", "utf8"))
	if err != nil {
		return d.toolError("Data reading failed", err), nil
	}
	timeoutMs := req.GetInt("timeout_ms", d.cfg.Serial.DefaultTimeoutMs)
	maxBytes := req.GetInt("max_bytes", defaultMaxBytes)
	timeout := millis(timeoutMs)

	ctx, cancel := d.opContext(ctx, max(timeout, 0))
	defer cancel()
	if err := d.pace(ctx, h); err != nil {
		return d.toolError("Data reading failed", err), nil
	}
	data, err := d.manager.Read(ctx, h, maxBytes, timeout)
	if err != nil {
		d.forgetIfGone(h, err)
		return d.toolError("Data reading failed", err), nil
	}
	d.afterRead(h, len(data) == 0)

	if len(data) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Read timeout\nConnection ID: %s\nTimeout: %dms\nBytes read: 0", h, timeoutMs)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Data read successfully\nConnection ID: %s\nBytes read: %d\nData: %q", h, len(data), enc.Encode(data))), nil
}

func (d *Dispatcher) handleClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, err := handleArg(req)
	if err != nil {
		return mcp.NewToolResultError("Error: InvalidConfiguration: " + err.Error()), nil
	}

	ctx, cancel := d.opContext(ctx, 0)
	defer cancel()
	err = d.manager.Close(ctx, h)
	d.forgetIfGone(h, err)
	if err != nil {
		return d.toolError("Failed to close connection "+h.String(), err), nil
	}
	return mcp.NewToolResultText("Serial connection closed\nConnection ID: " + h.String()), nil
}

func (d *Dispatcher) handleListConnections(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := d.manager.Sessions()
	if len(sessions) == 0 {
		return mcp.NewToolResultText("No open connections"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d open connections:", len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(&b, "\n- %s: %s (%s) sent=%d received=%d idle=%s",
			s.Handle, s.DevicePath, s.Config, s.BytesSent, s.BytesReceived,
			time.Since(s.LastActivity).Truncate(time.Millisecond))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (d *Dispatcher) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var v any
	if id := req.GetString("connection_id", ""); id != "" {
		info, err := d.manager.Session(serial.Handle(id))
		if err != nil {
			return d.toolError("Connection ID "+id+" not found", err), nil
		}
		v = info
	} else {
		v = d.manager.Stats()
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError renders err as "Error: <what> - <Kind>: <detail>".
func (d *Dispatcher) toolError(what string, err error) *mcp.CallToolResult {
	kind := serial.KindOf(err)
	d.logger.Debug().Str("kind", kind).Err(err).Msg(what)
	return mcp.NewToolResultError(fmt.Sprintf("Error: %s - %s: %v", what, kind, err))
}

// forgetIfGone drops pacing state for handles that no longer exist.
func (d *Dispatcher) forgetIfGone(h serial.Handle, err error) {
	if err == nil || serial.KindOf(err) == serial.KindHandleNotFound || serial.KindOf(err) == serial.KindConnectionLost {
		d.forget(h)
	}
}

func handleArg(req mcp.CallToolRequest) (serial.Handle, error) {
	id, err := req.RequireString("connection_id")
	if err != nil {
		return "", err
	}
	return serial.Handle(id), nil
}

// stringArg reads key as text, accepting JSON numbers too (data_bits: 8).
func stringArg(req mcp.CallToolRequest, key, def string) string {
	switch v := req.GetArguments()[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return def
}
