package serial

import (
	"fmt"
	"strings"
)

// PortPolicy restricts which device paths may be opened.
// Patterns are plain substrings; Blocked wins over Allowed.
type PortPolicy struct {
	Allowed []string
	Blocked []string
	// StrictNames rejects names that do not look like serial devices
	// (COMn on Windows, /dev/tty* or /dev/cu* elsewhere).
	StrictNames bool
}

func (pp PortPolicy) check(portName string) error {
	if strings.TrimSpace(portName) == "" {
		return fmt.Errorf("%w: port name cannot be empty", ErrInvalidConfiguration)
	}
	// Security: Prevent path traversal attacks
	if strings.Contains(portName, "..") {
		return fmt.Errorf("%w: invalid port name: contains path traversal", ErrInvalidConfiguration)
	}
	if pp.StrictNames && !isValidPortPattern(portName) {
		return fmt.Errorf("%w: port name doesn't match expected pattern: %s", ErrInvalidConfiguration, portName)
	}
	for _, b := range pp.Blocked {
		if b != "" && strings.Contains(portName, b) {
			return fmt.Errorf("%w: %s matches blocked pattern %q", ErrPortNotAllowed, portName, b)
		}
	}
	if len(pp.Allowed) == 0 {
		return nil
	}
	for _, a := range pp.Allowed {
		if a != "" && strings.Contains(portName, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not in the allowed list", ErrPortNotAllowed, portName)
}

func isValidPortPattern(portName string) bool {
	// Windows: COM1-COM999 (must have at least one digit after COM)
	if strings.HasPrefix(portName, "COM") && len(portName) >= 4 && len(portName) <= 6 {
		return true
	}
	// Unix/Linux: /dev/tty* or /dev/cu* (macOS)
	if strings.HasPrefix(portName, "/dev/tty") || strings.HasPrefix(portName, "/dev/cu") {
		return true
	}
	return false
}
