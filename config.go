package serial

import (
	"fmt"

	gobug "go.bug.st/serial"
)

// Config is the line configuration of one session. It is fixed for the
// session's lifetime; changing it requires a close and a new open.
type Config struct {
	BaudRate    int         `json:"baud_rate" validate:"gt=0"`
	DataBits    DataBits    `json:"data_bits" validate:"min=5,max=8"`
	Parity      Parity      `json:"parity" validate:"min=0,max=4"`
	StopBits    StopBits    `json:"stop_bits" validate:"min=0,max=2"`
	FlowControl FlowControl `json:"flow_control" validate:"min=0,max=2"`
}

// DefaultConfig returns 115200 baud, 8N1, no flow control.
func DefaultConfig() Config {
	return Config{
		BaudRate:    Baud115200.Int(),
		DataBits:    DataBits8,
		Parity:      ParityNone,
		StopBits:    StopBits1,
		FlowControl: FlowNone,
	}
}

// String renders the config as "115200 8N1" style shorthand.
func (c Config) String() string {
	p := "N"
	switch c.Parity {
	case ParityOdd:
		p = "O"
	case ParityEven:
		p = "E"
	case ParityMark:
		p = "M"
	case ParitySpace:
		p = "S"
	}
	return fmt.Sprintf("%d %d%s%s", c.BaudRate, c.DataBits.Int(), p, c.StopBits)
}

func (c Config) mode() *gobug.Mode {
	return &gobug.Mode{
		BaudRate: BaudRate(c.BaudRate).Int(),
		DataBits: c.DataBits.Int(),
		Parity:   c.Parity.Get(),
		StopBits: c.StopBits.Get(),
	}
}
