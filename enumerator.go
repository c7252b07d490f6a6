package serial

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortDescriptor describes one serial device currently present on the host.
type PortDescriptor struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts queries the OS for attached serial devices. Nothing is cached.
// When the detailed enumerator is unavailable it falls back to bare names.
func ListPorts(ctx context.Context) ([]PortDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, detailErr := getDetailedPortList()
	if detailErr == nil {
		out := make([]PortDescriptor, 0, len(details))
		for _, d := range details {
			if d == nil {
				continue
			}
			out = append(out, describe(d))
		}
		return out, nil
	}

	names, err := getPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}
	out := make([]PortDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, PortDescriptor{Name: n})
	}
	return out, nil
}

func describe(d *enumerator.PortDetails) PortDescriptor {
	pd := PortDescriptor{
		Name:         d.Name,
		IsUSB:        d.IsUSB,
		SerialNumber: d.SerialNumber,
		Product:      d.Product,
	}
	if d.IsUSB {
		pd.VID = strings.ToLower(d.VID)
		pd.PID = strings.ToLower(d.PID)
		switch {
		case d.Product != "":
			pd.Description = fmt.Sprintf("USB %s (%s:%s)", d.Product, pd.VID, pd.PID)
		default:
			pd.Description = fmt.Sprintf("USB device (%s:%s)", pd.VID, pd.PID)
		}
	}
	return pd
}
