package serial

import (
	"context"
	"errors"
	"fmt"

	gobug "go.bug.st/serial"
)

// handleOpenError closes a freshly opened port whose setup failed and joins
// any error from closing with the original error.
func handleOpenError(h Port, err error) error {
	if h == nil {
		return err
	}
	if e := h.Close(); e != nil {
		err = errors.Join(err, e)
	}
	return err
}

// closeWithoutLock releases the device. The caller must hold the session lock.
func (s *Session) closeWithoutLock() error {
	h := s.port
	s.port = nil
	if h != nil {
		return h.Close()
	}
	return nil
}

// classifyOpenError maps driver errors from opening a device onto the
// manager's error kinds.
func classifyOpenError(path string, err error) error {
	var pe *gobug.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case gobug.InvalidSpeed, gobug.InvalidDataBits, gobug.InvalidParity,
			gobug.InvalidStopBits, gobug.InvalidTimeoutValue:
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, path, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
