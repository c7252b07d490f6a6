package serial

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gobug "go.bug.st/serial"
)

// mockPort is an in-memory serial device. Reads honour the timeout set with
// SetReadTimeout; every Read and Write is instrumented so tests can assert
// that the device never sees overlapping I/O.
type mockPort struct {
	incoming chan []byte

	mu          sync.Mutex
	readTimeout time.Duration
	pending     []byte
	written     []byte
	writeChunks []int // per-call accept sizes; empty accepts everything
	writeErr    error
	readErr     error
	rts, dtr    bool
	onWrite     func(m *mockPort, p []byte)

	ioDelay time.Duration

	closed         atomic.Bool
	closeCalls     atomic.Int32
	active         atomic.Int32
	overlaps       atomic.Int32
	closedDuringIO atomic.Bool
	reads          atomic.Int32
}

func newMockPort() *mockPort {
	return &mockPort{incoming: make(chan []byte, 64)}
}

func (m *mockPort) enter() {
	if m.active.Add(1) > 1 {
		m.overlaps.Add(1)
	}
}

func (m *mockPort) exit() {
	if m.closed.Load() {
		m.closedDuringIO.Store(true)
	}
	m.active.Add(-1)
}

// emit queues bytes the device will "send" to the host.
func (m *mockPort) emit(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	m.incoming <- cp
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.enter()
	defer m.exit()
	m.reads.Add(1)

	if m.ioDelay > 0 {
		time.Sleep(m.ioDelay)
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	if len(m.pending) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	timeout := m.readTimeout
	m.mu.Unlock()

	var chunk []byte
	if timeout <= 0 {
		select {
		case chunk = <-m.incoming:
		default:
			return 0, nil
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case chunk = <-m.incoming:
		case <-timer.C:
			return 0, nil
		}
	}

	n := copy(p, chunk)
	if n < len(chunk) {
		m.mu.Lock()
		m.pending = append(m.pending, chunk[n:]...)
		m.mu.Unlock()
	}
	return n, nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.enter()
	defer m.exit()

	if m.ioDelay > 0 {
		time.Sleep(m.ioDelay)
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	n := len(p)
	if len(m.writeChunks) > 0 {
		n = min(m.writeChunks[0], len(p))
		m.writeChunks = m.writeChunks[1:]
	}
	m.written = append(m.written, p[:n]...)
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil && n > 0 {
		hook(m, p[:n])
	}
	return n, nil
}

func (m *mockPort) Close() error {
	m.closeCalls.Add(1)
	m.closed.Store(true)
	return nil
}

func (m *mockPort) SetReadTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = d
	return nil
}

func (m *mockPort) SetDTR(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dtr = v
	return nil
}

func (m *mockPort) SetRTS(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rts = v
	return nil
}

func (m *mockPort) writtenBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

func (m *mockPort) setReadErr(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

func (m *mockPort) setWriteErr(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// mockDevices replaces openPort for the duration of a test. Paths that are
// not registered behave like missing devices.
type mockDevices struct {
	mu     sync.Mutex
	ports  map[string]*mockPort
	modes  map[string]gobug.Mode
	opened atomic.Int32
}

func installMockDevices(t testing.TB, names ...string) *mockDevices {
	t.Helper()
	d := &mockDevices{
		ports: make(map[string]*mockPort),
		modes: make(map[string]gobug.Mode),
	}
	for _, n := range names {
		d.ports[n] = newMockPort()
	}

	orig := openPort
	openPort = func(name string, mode *gobug.Mode) (Port, error) {
		d.opened.Add(1)
		d.mu.Lock()
		defer d.mu.Unlock()
		p, ok := d.ports[name]
		if !ok {
			return nil, errors.New("open " + name + ": no such file or directory")
		}
		if p.closed.Load() {
			// Reopening a device gives a fresh port, like the OS would.
			p = newMockPort()
			d.ports[name] = p
		}
		d.modes[name] = *mode
		return p, nil
	}
	t.Cleanup(func() { openPort = orig })
	return d
}

func (d *mockDevices) port(name string) *mockPort {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ports[name]
}

func (d *mockDevices) mode(name string) gobug.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modes[name]
}
