// Package serialtest provides in-memory serial devices for tests of code
// built on the connection manager.
package serialtest

import (
	"errors"
	"sync"
	"time"

	serial "github.com/nostoslabs/serial-mcp-server"
)

// Port is an in-memory device. Data queued with Emit is returned by Read;
// everything written is kept for inspection.
type Port struct {
	incoming chan []byte

	mu          sync.Mutex
	readTimeout time.Duration
	pending     []byte
	written     []byte
	readErr     error
	writeErr    error
	closed      bool
	onWrite     func(p *Port, b []byte)
}

func NewPort() *Port {
	return &Port{incoming: make(chan []byte, 64)}
}

// Emit queues bytes the device sends to the host.
func (p *Port) Emit(b []byte) {
	p.incoming <- append([]byte(nil), b...)
}

// OnWrite registers a hook run after every accepted write, e.g. to answer
// a command.
func (p *Port) OnWrite(fn func(p *Port, b []byte)) {
	p.mu.Lock()
	p.onWrite = fn
	p.mu.Unlock()
}

func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Fail makes every subsequent read and write return err.
func (p *Port) Fail(err error) {
	p.mu.Lock()
	p.readErr, p.writeErr = err, err
	p.mu.Unlock()
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return 0, errors.New("port closed")
	case p.readErr != nil:
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	case len(p.pending) > 0:
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	var chunk []byte
	if timeout <= 0 {
		select {
		case chunk = <-p.incoming:
		default:
			return 0, nil
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case chunk = <-p.incoming:
		case <-timer.C:
			return 0, nil
		}
	}

	n := copy(b, chunk)
	if n < len(chunk) {
		p.mu.Lock()
		p.pending = append(p.pending, chunk[n:]...)
		p.mu.Unlock()
	}
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}
	p.written = append(p.written, b...)
	hook := p.onWrite
	p.mu.Unlock()

	if hook != nil {
		hook(p, b)
	}
	return len(b), nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *Port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	p.readTimeout = d
	p.mu.Unlock()
	return nil
}

func (p *Port) SetDTR(bool) error { return nil }
func (p *Port) SetRTS(bool) error { return nil }

// Devices is a set of named fake devices usable as a serial.Opener.
type Devices struct {
	mu      sync.Mutex
	ports   map[string]*Port
	configs map[string]serial.Config
}

func NewDevices(names ...string) *Devices {
	d := &Devices{
		ports:   make(map[string]*Port),
		configs: make(map[string]serial.Config),
	}
	for _, n := range names {
		d.ports[n] = NewPort()
	}
	return d
}

// Open implements serial.Opener. Unknown paths fail like a missing device;
// reopening a closed path yields a fresh port.
func (d *Devices) Open(path string, cfg serial.Config) (serial.Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.ports[path]
	if !ok {
		return nil, errors.New("open " + path + ": no such file or directory")
	}
	if p.Closed() {
		p = NewPort()
		d.ports[path] = p
	}
	d.configs[path] = cfg
	return p, nil
}

func (d *Devices) Port(path string) *Port {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ports[path]
}

// Config returns the settings path was last opened with.
func (d *Devices) Config(path string) serial.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configs[path]
}
