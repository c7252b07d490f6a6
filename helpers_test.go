package serial

import (
	"errors"
	"testing"
)

func TestPortPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  PortPolicy
		port    string
		wantErr error
	}{
		{"open policy", PortPolicy{}, "/dev/ttyUSB0", nil},
		{"empty name", PortPolicy{}, "  ", ErrInvalidConfiguration},
		{"traversal", PortPolicy{}, "/dev/../../etc/shadow", ErrInvalidConfiguration},
		{"blocked", PortPolicy{Blocked: []string{"ttyS"}}, "/dev/ttyS0", ErrPortNotAllowed},
		{"allowed", PortPolicy{Allowed: []string{"ttyUSB", "ttyACM"}}, "/dev/ttyACM1", nil},
		{"not allowed", PortPolicy{Allowed: []string{"ttyUSB"}}, "/dev/ttyACM1", ErrPortNotAllowed},
		{"blocked wins", PortPolicy{Allowed: []string{"ttyUSB"}, Blocked: []string{"ttyUSB9"}}, "/dev/ttyUSB9", ErrPortNotAllowed},
		{"strict ok", PortPolicy{StrictNames: true}, "COM4", nil},
		{"strict mac", PortPolicy{StrictNames: true}, "/dev/cu.usbserial-1410", nil},
		{"strict reject", PortPolicy{StrictNames: true}, "/tmp/fake", ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		err := tt.policy.check(tt.port)
		if tt.wantErr == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.wantErr, err)
		}
	}
}

func TestIsValidPortPattern(t *testing.T) {
	valid := []string{"COM1", "COM999", "/dev/ttyUSB0", "/dev/tty.usbmodem1", "/dev/cu.SLAB_USBtoUART"}
	for _, p := range valid {
		if !isValidPortPattern(p) {
			t.Fatalf("%q should be valid", p)
		}
	}
	invalid := []string{"COM", "COM10000", "/dev/sda", "ttyUSB0", ""}
	for _, p := range invalid {
		if isValidPortPattern(p) {
			t.Fatalf("%q should be invalid", p)
		}
	}
}
