package serial

import (
	"fmt"
	"strings"
)

type FlowControl int

const (
	FlowNone FlowControl = iota
	// FlowHardware asserts RTS and DTR once the port is open.
	FlowHardware
	// FlowSoftware is recorded on the session; XON/XOFF is left to the device.
	FlowSoftware
)

func (f FlowControl) String() string {
	switch f {
	case FlowNone:
		return "none"
	case FlowHardware:
		return "hardware"
	case FlowSoftware:
		return "software"
	}
	return fmt.Sprintf("flow(%d)", int(f))
}

func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return FlowNone, nil
	case "hardware", "rts/cts", "rtscts":
		return FlowHardware, nil
	case "software", "xon/xoff", "xonxoff":
		return FlowSoftware, nil
	}
	return 0, fmt.Errorf("%w: invalid flow control %q, must be none, hardware or software", ErrInvalidConfiguration, s)
}
