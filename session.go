package serial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Handle is the opaque identifier of one open session.
type Handle string

func (h Handle) String() string { return string(h) }

type sessionState int32

const (
	stateOpen sessionState = iota
	stateClosed
	stateDead
)

const (
	// readPollInterval bounds a single device read so cancellation is noticed.
	readPollInterval = 100 * time.Millisecond
	// maxStalledWrites is how many consecutive zero-byte device writes are
	// tolerated before the device is considered gone.
	maxStalledWrites = 3
)

// Session is one open serial device. All device I/O happens while the
// session lock is held, so at most one read, write or close runs at a time.
type Session struct {
	handle     Handle
	devicePath string
	config     Config
	createdAt  time.Time

	// lock is a one-slot semaphore rather than a sync.Mutex so that waiting
	// for it can be abandoned when the caller's context ends.
	lock chan struct{}
	port Port // guarded by lock

	state         atomic.Int32
	lastActivity  atomic.Time
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// SessionInfo is a read-only view of a session for diagnostics.
type SessionInfo struct {
	Handle        Handle    `json:"handle"`
	DevicePath    string    `json:"device_path"`
	Config        Config    `json:"config"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	BytesSent     uint64    `json:"bytes_sent"`
	BytesReceived uint64    `json:"bytes_received"`
}

func newSession(devicePath string, cfg Config, port Port) *Session {
	now := time.Now()
	s := &Session{
		devicePath: devicePath,
		config:     cfg,
		createdAt:  now,
		lock:       make(chan struct{}, 1),
		port:       port,
	}
	s.state.Store(int32(stateOpen))
	s.lastActivity.Store(now)
	return s
}

func (s *Session) Handle() Handle     { return s.handle }
func (s *Session) DevicePath() string { return s.devicePath }
func (s *Session) Config() Config     { return s.config }

func (s *Session) LastActivity() time.Time { return s.lastActivity.Load() }

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Handle:        s.handle,
		DevicePath:    s.devicePath,
		Config:        s.config,
		CreatedAt:     s.createdAt,
		LastActivity:  s.lastActivity.Load(),
		BytesSent:     s.bytesSent.Load(),
		BytesReceived: s.bytesReceived.Load(),
	}
}

func (s *Session) isOpen() bool {
	return sessionState(s.state.Load()) == stateOpen
}

// acquire takes the session lock or gives up when ctx ends.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.lock
}

// write sends b in full, retrying partial writes. It returns the number of
// bytes the device accepted. The caller must hold the session lock.
func (s *Session) write(ctx context.Context, b []byte) (total int, partials int, err error) {
	stalls := 0
	for total < len(b) {
		if err = ctx.Err(); err != nil {
			if total > 0 {
				err = fmt.Errorf("write to %s interrupted after %d of %d bytes: %w", s.devicePath, total, len(b), err)
			}
			return total, partials, err
		}
		n, werr := s.port.Write(b[total:])
		if n > 0 {
			total += n
			s.bytesSent.Add(uint64(n))
		}
		if werr != nil {
			return total, partials, fmt.Errorf("%w: %s: %v", ErrConnectionLost, s.devicePath, werr)
		}
		if n == 0 {
			// Prevent infinite loop if Write returns 0
			stalls++
			if stalls >= maxStalledWrites {
				return total, partials, fmt.Errorf("%w: %s: device stopped accepting data after %d of %d bytes",
					ErrConnectionLost, s.devicePath, total, len(b))
			}
			continue
		}
		stalls = 0
		if total < len(b) {
			partials++
		}
	}
	s.lastActivity.Store(time.Now())
	return total, partials, nil
}

// read waits up to timeout for data, then drains whatever else is
// immediately available into buf. A silent device yields (0, nil).
// The caller must hold the session lock.
func (s *Session) read(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	total := 0
	for total == 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		wait := time.Until(deadline)
		if wait < 0 {
			wait = 0
		}
		if wait > readPollInterval {
			wait = readPollInterval
		}
		n, err := s.readOnce(buf, wait)
		if err != nil {
			return 0, err
		}
		total = n
		if total == 0 && !time.Now().Before(deadline) {
			return 0, nil
		}
	}

	// Data arrived; take what is already buffered without waiting for more.
	for total < len(buf) {
		n, err := s.readOnce(buf[total:], 0)
		if err != nil || n == 0 {
			// A fault here surfaces on the next operation.
			break
		}
		total += n
	}

	s.bytesReceived.Add(uint64(total))
	s.lastActivity.Store(time.Now())
	return total, nil
}

func (s *Session) readOnce(buf []byte, wait time.Duration) (int, error) {
	if err := s.port.SetReadTimeout(wait); err != nil {
		return 0, fmt.Errorf("%w: %s: setting read timeout: %v", ErrConnectionLost, s.devicePath, err)
	}
	n, err := s.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrConnectionLost, s.devicePath, err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// applyFlowControl sets the modem control lines implied by fc.
func applyFlowControl(h Port, fc FlowControl) error {
	if fc != FlowHardware {
		return nil
	}
	if err := h.SetRTS(true); err != nil {
		return errors.Join(errors.New("asserting RTS"), err)
	}
	if err := h.SetDTR(true); err != nil {
		return errors.Join(errors.New("asserting DTR"), err)
	}
	return nil
}
