package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	serial "github.com/nostoslabs/serial-mcp-server"
)

type consoleOptions struct {
	baud        int
	dataBits    string
	parity      string
	stopBits    string
	flowControl string
	encoding    string
	eol         string
	command     string
	listen      bool
	readTimeout time.Duration
}

func newConsoleCmd(s *settings) *cobra.Command {
	o := &consoleOptions{}

	cmd := &cobra.Command{
		Use:   "console <port>",
		Short: "Talk to a serial device interactively",
		Long: `Open a serial port and exchange data with it from the terminal.

Each input line is sent with the configured line ending and the device's
response is printed. Use --cmd for a single exchange or --listen to print
incoming data until interrupted.

Example usage:
  serial-mcp-server console /dev/ttyUSB0
  serial-mcp-server console /dev/ttyACM0 --baud 9600 --cmd help
  serial-mcp-server console COM3 --listen --encoding hex`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runConsole(cmd, args[0], o)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&o.baud, "baud", "b", 0, "baud rate (default from config)")
	f.StringVar(&o.dataBits, "data-bits", "8", "data bits (5-8)")
	f.StringVar(&o.parity, "parity", "none", "parity (none, odd, even, mark, space)")
	f.StringVar(&o.stopBits, "stop-bits", "1", "stop bits (1, 1.5, 2)")
	f.StringVar(&o.flowControl, "flow-control", "none", "flow control (none, hardware, software)")
	f.StringVarP(&o.encoding, "encoding", "e", "utf8", "encoding for input and output (utf8, hex, base64, raw)")
	f.StringVar(&o.eol, "eol", "crlf", "line ending appended to each utf8 line (crlf, lf, cr, none)")
	f.StringVarP(&o.command, "cmd", "c", "", "single command to send; if empty, read commands from stdin")
	f.BoolVarP(&o.listen, "listen", "l", false, "listen-only mode: print incoming data until interrupted")
	f.DurationVarP(&o.readTimeout, "read-timeout", "t", 0, "how long to wait for a response (default from config)")
	return cmd
}

func (o *consoleOptions) lineConfig(defaultBaud int) (serial.Config, error) {
	cfg := serial.DefaultConfig()
	cfg.BaudRate = defaultBaud
	if o.baud > 0 {
		cfg.BaudRate = o.baud
	}

	var err error
	if cfg.DataBits, err = serial.ParseDataBits(o.dataBits); err != nil {
		return cfg, err
	}
	if cfg.Parity, err = serial.ParseParity(o.parity); err != nil {
		return cfg, err
	}
	if cfg.StopBits, err = serial.ParseStopBits(o.stopBits); err != nil {
		return cfg, err
	}
	if cfg.FlowControl, err = serial.ParseFlowControl(o.flowControl); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func lineEnding(name string) (string, error) {
	switch strings.ToLower(name) {
	case "crlf":
		return "\r\n", nil
	case "lf":
		return "\n", nil
	case "cr":
		return "\r", nil
	case "none", "":
		return "", nil
	}
	return "", fmt.Errorf("unsupported line ending %q (use crlf, lf, cr or none)", name)
}

func (s *settings) runConsole(cmd *cobra.Command, port string, o *consoleOptions) error {
	cfg, err := s.loadConfig(cmd)
	if err != nil {
		return err
	}
	lineCfg, err := o.lineConfig(cfg.Serial.DefaultBaudRate)
	if err != nil {
		return err
	}
	enc, err := serial.ParseEncoding(o.encoding)
	if err != nil {
		return err
	}
	eol, err := lineEnding(o.eol)
	if err != nil {
		return err
	}
	timeout := o.readTimeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := s.newManager(cfg, zerolog.Nop())
	defer m.Shutdown(context.Background())

	h, err := m.Open(ctx, port, lineCfg)
	if err != nil {
		return err
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	exchange := func(line string) error {
		payload := line
		if enc == serial.EncodingUTF8 || enc == serial.EncodingRaw {
			payload += eol
		}
		if _, err := m.Write(ctx, h, []byte(payload), enc); err != nil {
			return err
		}
		resp, err := m.Read(ctx, h, m.MaxReadBytes(), timeout)
		if err != nil {
			return err
		}
		if len(resp) > 0 {
			fmt.Fprintln(out, enc.Encode(resp))
		}
		return nil
	}

	switch {
	case o.listen:
		fmt.Fprintf(errOut, "listening on %s (%s)...\n", port, lineCfg)
		for {
			resp, err := m.Read(ctx, h, m.MaxReadBytes(), timeout)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if len(resp) > 0 {
				fmt.Fprint(out, enc.Encode(resp))
			}
		}

	case o.command != "":
		return exchange(o.command)
	}

	// Interactive mode: read commands from stdin line by line.
	scanner := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprintf(errOut, "Connected to %s (%s). Type commands, Ctrl+D to exit.\n", port, lineCfg)
	for {
		fmt.Fprint(errOut, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := exchange(line); err != nil {
			if serial.KindOf(err) == serial.KindConnectionLost {
				return err
			}
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
}
