package serial

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

const (
	// MaxBufferSize is the default limit for a single decoded write payload.
	MaxBufferSize = 64 * 1024 // 64KB

	// AbsoluteMaxBufferSize is the hard ceiling for any read buffer,
	// whatever the configured limit.
	AbsoluteMaxBufferSize = 1024 * 1024 // 1MB

	DefaultMaxReadBytes = 8192
	DefaultMaxSessions  = 10
)

// Manager owns the table of open sessions. The table lock only guards map
// access; device I/O runs under each session's own lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[Handle]*Session
	issued   map[Handle]struct{} // every handle ever handed out
	opening  map[string]struct{} // device paths with an open in flight
	closed   bool

	maxSessions   int
	maxReadBytes  int
	maxWriteBytes int
	policy        PortPolicy
	logger        zerolog.Logger
	metrics       *Metrics
	pools         *BufferPoolManager
	open          Opener
	newHandle     func() Handle
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMaxSessions limits concurrently open sessions. Zero or less means unlimited.
func WithMaxSessions(n int) Option {
	return func(m *Manager) { m.maxSessions = n }
}

// WithMaxReadBytes caps the size of a single read. Values above
// AbsoluteMaxBufferSize are clamped.
func WithMaxReadBytes(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxReadBytes = min(n, AbsoluteMaxBufferSize)
		}
	}
}

// WithMaxWriteBytes caps the decoded size of a single write.
func WithMaxWriteBytes(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxWriteBytes = min(n, AbsoluteMaxBufferSize)
		}
	}
}

func WithPortPolicy(p PortPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithOpener replaces the function used to claim devices.
func WithOpener(o Opener) Option {
	return func(m *Manager) {
		if o != nil {
			m.open = o
		}
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:      make(map[Handle]*Session),
		issued:        make(map[Handle]struct{}),
		opening:       make(map[string]struct{}),
		maxSessions:   DefaultMaxSessions,
		maxReadBytes:  DefaultMaxReadBytes,
		maxWriteBytes: MaxBufferSize,
		logger:        zerolog.Nop(),
		metrics:       newMetrics(),
		open:          defaultOpener,
		newHandle:     func() Handle { return Handle(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pools = NewBufferPoolManager(m.metrics)
	return m
}

// ListPorts enumerates the devices present right now.
func (m *Manager) ListPorts(ctx context.Context) ([]PortDescriptor, error) {
	ports, err := ListPorts(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("port enumeration failed")
		return nil, err
	}
	return ports, nil
}

// Open claims devicePath exclusively and returns a new handle for it.
func (m *Manager) Open(ctx context.Context, devicePath string, cfg Config) (h Handle, err error) {
	defer func() { m.metrics.recordOpen(err) }()

	if err = ValidateConfig(cfg); err != nil {
		return "", err
	}
	if err = m.policy.check(devicePath); err != nil {
		return "", err
	}
	if err = ctx.Err(); err != nil {
		return "", err
	}
	if !BaudRate(cfg.BaudRate).IsStandard() {
		m.logger.Debug().Str("port", devicePath).Int("baud", cfg.BaudRate).Msg("non-standard baud rate requested")
	}

	if err = m.reserve(devicePath); err != nil {
		return "", err
	}

	port, openErr := m.open(devicePath, cfg)
	if openErr != nil {
		m.unreserve(devicePath)
		err = classifyOpenError(devicePath, openErr)
		m.logger.Warn().Str("port", devicePath).Err(openErr).Msg("open failed")
		return "", err
	}
	if fcErr := applyFlowControl(port, cfg.FlowControl); fcErr != nil {
		m.unreserve(devicePath)
		return "", fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, devicePath, handleOpenError(port, fcErr))
	}

	s := newSession(devicePath, cfg, port)

	m.mu.Lock()
	delete(m.opening, devicePath)
	if m.closed {
		m.mu.Unlock()
		return "", handleOpenError(port, ErrManagerClosed)
	}
	h = m.allocHandleLocked()
	s.handle = h
	m.sessions[h] = s
	m.mu.Unlock()

	m.logger.Info().
		Str("handle", h.String()).
		Str("port", devicePath).
		Str("config", cfg.String()).
		Str("flow", cfg.FlowControl.String()).
		Msg("session opened")
	return h, nil
}

// Write decodes data with enc and sends it in full to the session's device.
func (m *Manager) Write(ctx context.Context, h Handle, data []byte, enc Encoding) (n int, err error) {
	start := time.Now()
	defer func() { m.metrics.recordWrite(n, err, time.Since(start)) }()

	payload, err := enc.Decode(data)
	if err != nil {
		return 0, err
	}
	if len(payload) > m.maxWriteBytes {
		return 0, fmt.Errorf("%w: payload of %d bytes exceeds limit of %d", ErrBufferTooLarge, len(payload), m.maxWriteBytes)
	}

	s, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	if err = s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()

	if !s.isOpen() {
		return 0, fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	if len(payload) == 0 {
		return 0, nil
	}

	written, partials, err := s.write(ctx, payload)
	m.metrics.PartialWrites.Add(int64(partials))
	if err != nil {
		if errors.Is(err, ErrConnectionLost) {
			m.markDeadLocked(s, err)
		}
		m.logger.Debug().Str("handle", h.String()).Int("written", written).Err(err).Msg("write failed")
		return 0, err
	}
	return written, nil
}

// Read returns up to maxBytes bytes, waiting at most timeout for the first
// byte. An empty result means the device was silent for the whole window.
// maxBytes above the manager's read limit is clamped to it.
func (m *Manager) Read(ctx context.Context, h Handle, maxBytes int, timeout time.Duration) (data []byte, err error) {
	start := time.Now()
	defer func() { m.metrics.recordRead(len(data), err, time.Since(start)) }()

	if maxBytes <= 0 {
		return nil, fmt.Errorf("%w: max bytes must be positive, got: %d", ErrInvalidConfiguration, maxBytes)
	}
	if timeout < 0 {
		return nil, fmt.Errorf("%w: read timeout cannot be negative: %v", ErrInvalidConfiguration, timeout)
	}
	maxBytes = min(maxBytes, m.maxReadBytes)

	s, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	if err = s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if !s.isOpen() {
		return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}

	buf, cleanup := m.pools.GetPooledBuffer(maxBytes)
	if buf == nil {
		return nil, fmt.Errorf("%w: read of %d bytes", ErrBufferTooLarge, maxBytes)
	}
	defer cleanup()

	n, err := s.read(ctx, buf, timeout)
	if err != nil {
		if errors.Is(err, ErrConnectionLost) {
			m.markDeadLocked(s, err)
		}
		return nil, err
	}

	data = make([]byte, n)
	copy(data, buf[:n])
	return data, nil
}

// Close waits for any in-flight operation on h, releases the device and
// forgets the handle. Closing an unknown or already closed handle fails
// with ErrHandleNotFound.
func (m *Manager) Close(ctx context.Context, h Handle) error {
	s, err := m.lookup(h)
	if err != nil {
		m.metrics.recordError(err)
		return err
	}
	return m.closeSession(ctx, s)
}

func (m *Manager) closeSession(ctx context.Context, s *Session) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if !s.isOpen() {
		return fmt.Errorf("%w: %s", ErrHandleNotFound, s.handle)
	}
	s.state.Store(int32(stateClosed))
	if err := s.closeWithoutLock(); err != nil {
		// The handle is gone either way; the OS error is only worth a log line.
		m.logger.Warn().Str("handle", s.handle.String()).Str("port", s.devicePath).Err(err).Msg("closing device")
	}
	m.remove(s)
	m.metrics.recordClose(false)

	m.logger.Info().Str("handle", s.handle.String()).Str("port", s.devicePath).Msg("session closed")
	return nil
}

// Shutdown closes every session and refuses further opens. It waits for
// in-flight operations until ctx ends. Calling it again is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info().Int("sessions", len(sessions)).Msg("shutting down connection manager")

	var (
		wg     sync.WaitGroup
		errMu  sync.Mutex
		result *multierror.Error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			err := m.closeSession(ctx, s)
			if err == nil || errors.Is(err, ErrHandleNotFound) {
				return
			}
			if isContextErr(err) {
				m.retireLater(s)
			}
			errMu.Lock()
			result = multierror.Append(result, fmt.Errorf("%s (%s): %w", s.handle, s.devicePath, err))
			errMu.Unlock()
		}(s)
	}
	wg.Wait()
	return result.ErrorOrNil()
}

// retireLater takes s out of service without its lock: the handle is gone at
// once and the device is released when the in-flight operation finishes.
func (m *Manager) retireLater(s *Session) {
	if !s.state.CompareAndSwap(int32(stateOpen), int32(stateClosed)) {
		return
	}
	m.remove(s)
	m.logger.Warn().Str("handle", s.handle.String()).Str("port", s.devicePath).Msg("session busy at shutdown; closing when idle")

	go func() {
		s.lock <- struct{}{}
		defer s.release()
		if s.port == nil {
			// The in-flight operation already retired it as lost.
			return
		}
		if err := s.closeWithoutLock(); err != nil {
			m.logger.Warn().Str("handle", s.handle.String()).Str("port", s.devicePath).Err(err).Msg("closing device")
		}
		m.metrics.recordClose(false)
		m.logger.Info().Str("handle", s.handle.String()).Str("port", s.devicePath).Msg("session closed")
	}()
}

// Sessions lists open sessions, oldest first.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Session returns diagnostics for one open handle.
func (m *Manager) Session(h Handle) (SessionInfo, error) {
	s, err := m.lookup(h)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.Info(), nil
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) Metrics() *Metrics { return m.metrics }

func (m *Manager) Stats() *Snapshot { return m.metrics.Snapshot() }

// MaxReadBytes is the largest read the manager will serve.
func (m *Manager) MaxReadBytes() int { return m.maxReadBytes }

// GetBufferPoolStats returns buffer pool statistics for this manager
func (m *Manager) GetBufferPoolStats() []PoolStats {
	return m.pools.GetAllPoolStats()
}

func (m *Manager) lookup(h Handle) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[h]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, h)
	}
	return s, nil
}

// reserve marks devicePath as being opened so a concurrent open of the same
// path fails fast instead of racing the OS for it.
func (m *Manager) reserve(devicePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.maxSessions > 0 && len(m.sessions)+len(m.opening) >= m.maxSessions {
		return fmt.Errorf("%w: %d sessions open (max %d)", ErrSessionLimit, len(m.sessions), m.maxSessions)
	}
	if _, busy := m.opening[devicePath]; busy {
		return fmt.Errorf("%w: %s: open already in progress", ErrDeviceUnavailable, devicePath)
	}
	for h, s := range m.sessions {
		if s.devicePath == devicePath {
			return fmt.Errorf("%w: %s: already open as %s", ErrDeviceUnavailable, devicePath, h)
		}
	}
	m.opening[devicePath] = struct{}{}
	return nil
}

func (m *Manager) unreserve(devicePath string) {
	m.mu.Lock()
	delete(m.opening, devicePath)
	m.mu.Unlock()
}

func (m *Manager) allocHandleLocked() Handle {
	for {
		h := m.newHandle()
		if _, dup := m.issued[h]; dup || h == "" {
			continue
		}
		m.issued[h] = struct{}{}
		return h
	}
}

// markDeadLocked retires a session after a device fault. The caller must
// hold the session lock.
func (m *Manager) markDeadLocked(s *Session, cause error) {
	s.state.Store(int32(stateDead))
	if err := s.closeWithoutLock(); err != nil {
		m.logger.Debug().Str("handle", s.handle.String()).Err(err).Msg("closing dead device")
	}
	m.remove(s)
	m.metrics.recordClose(true)
	m.logger.Warn().Str("handle", s.handle.String()).Str("port", s.devicePath).Err(cause).Msg("connection lost")
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.handle]; ok && cur == s {
		delete(m.sessions, s.handle)
	}
	m.mu.Unlock()
}
