package serial

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Metrics tracks connection manager health statistics across all sessions
type Metrics struct {
	// Connection Statistics
	OpenAttempts    atomic.Int64 // Total open attempts
	SuccessfulOpens atomic.Int64 // Successful opens
	OpenFailures    atomic.Int64 // Failed opens
	Closes          atomic.Int64 // Explicit closes and shutdown closes
	ConnectionsLost atomic.Int64 // Sessions destroyed by device faults
	ActiveSessions  atomic.Int64 // Currently open sessions
	LastOpenTime    atomic.Int64 // Unix timestamp of last open
	LastCloseTime   atomic.Int64 // Unix timestamp of last close
	StartTime       atomic.Int64 // When the manager was created (ns)

	// Read Operations
	ReadOperations  atomic.Int64 // Total read attempts
	SuccessfulReads atomic.Int64 // Reads that returned data or an empty window
	EmptyReads      atomic.Int64 // Reads whose window elapsed with no data
	ReadErrors      atomic.Int64 // Failed reads
	BytesRead       atomic.Int64 // Total bytes read
	TotalReadTime   atomic.Int64 // Total time spent reading (ns)
	MaxReadTime     atomic.Int64 // Slowest read operation (ns)
	LastReadTime    atomic.Int64 // Timestamp of last read

	// Write Operations
	WriteOperations  atomic.Int64 // Total write attempts
	SuccessfulWrites atomic.Int64 // Successful writes
	PartialWrites    atomic.Int64 // Device writes that accepted fewer bytes than offered
	WriteErrors      atomic.Int64 // Failed writes
	BytesWritten     atomic.Int64 // Total bytes written
	TotalWriteTime   atomic.Int64 // Total time spent writing (ns)
	MaxWriteTime     atomic.Int64 // Slowest write operation (ns)
	LastWriteTime    atomic.Int64 // Timestamp of last write

	// Buffer Pool Metrics
	BufferPoolHits   atomic.Int64 // Buffer pool cache hits
	BufferPoolMisses atomic.Int64 // Buffer pool cache misses

	// Error Categories
	ConfigurationErrors atomic.Int64 // Invalid configuration or policy rejections
	EncodingErrors      atomic.Int64 // Malformed payloads
	HandleErrors        atomic.Int64 // Unknown or stale handles
	DeviceErrors        atomic.Int64 // Device unavailable or connection lost
	CanceledOperations  atomic.Int64 // Operations abandoned by the caller

	// Health Indicators
	ConsecutiveFailures atomic.Int64 // Consecutive operation failures
	LastErrorTime       atomic.Int64 // Timestamp of last error
	ErrorRate           atomic.Int64 // Errors per thousand operations
}

// HealthStatus represents the overall health of serial communication
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusIdle      HealthStatus = "idle"
)

func newMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordOpen(err error) {
	m.OpenAttempts.Add(1)
	if err != nil {
		m.OpenFailures.Add(1)
		m.recordError(err)
		return
	}
	m.SuccessfulOpens.Add(1)
	m.ActiveSessions.Add(1)
	m.LastOpenTime.Store(time.Now().Unix())
}

func (m *Metrics) recordClose(lost bool) {
	if lost {
		m.ConnectionsLost.Add(1)
	} else {
		m.Closes.Add(1)
	}
	m.ActiveSessions.Add(-1)
	m.LastCloseTime.Store(time.Now().Unix())
}

func (m *Metrics) recordWrite(bytesWritten int, err error, duration time.Duration) {
	m.WriteOperations.Add(1)
	m.LastWriteTime.Store(time.Now().Unix())
	m.TotalWriteTime.Add(duration.Nanoseconds())
	storeMax(&m.MaxWriteTime, duration.Nanoseconds())

	if err != nil {
		m.WriteErrors.Add(1)
		m.ConsecutiveFailures.Add(1)
		m.recordError(err)
		return
	}
	m.SuccessfulWrites.Add(1)
	m.BytesWritten.Add(int64(bytesWritten))
	m.ConsecutiveFailures.Store(0)
}

func (m *Metrics) recordRead(bytesRead int, err error, duration time.Duration) {
	m.ReadOperations.Add(1)
	m.LastReadTime.Store(time.Now().Unix())
	m.TotalReadTime.Add(duration.Nanoseconds())
	storeMax(&m.MaxReadTime, duration.Nanoseconds())

	if err != nil {
		m.ReadErrors.Add(1)
		m.ConsecutiveFailures.Add(1)
		m.recordError(err)
		return
	}
	m.SuccessfulReads.Add(1)
	if bytesRead == 0 {
		m.EmptyReads.Add(1)
	}
	m.BytesRead.Add(int64(bytesRead))
	m.ConsecutiveFailures.Store(0)
}

func (m *Metrics) recordError(err error) {
	m.LastErrorTime.Store(time.Now().Unix())

	// Categorize errors
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.CanceledOperations.Add(1)
	case errors.Is(err, ErrInvalidConfiguration), errors.Is(err, ErrPortNotAllowed),
		errors.Is(err, ErrBufferTooLarge), errors.Is(err, ErrSessionLimit):
		m.ConfigurationErrors.Add(1)
	case errors.Is(err, ErrEncoding):
		m.EncodingErrors.Add(1)
	case errors.Is(err, ErrHandleNotFound):
		m.HandleErrors.Add(1)
	default:
		m.DeviceErrors.Add(1)
	}

	// Update error rate (errors per 1000 operations)
	totalOps := m.ReadOperations.Load() + m.WriteOperations.Load()
	totalErrors := m.ReadErrors.Load() + m.WriteErrors.Load()
	if totalOps > 0 {
		m.ErrorRate.Store((totalErrors * 1000) / totalOps)
	}
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		current := v.Load()
		if n <= current {
			return
		}
		if v.CompareAndSwap(current, n) {
			return
		}
	}
}

// Metrics calculation methods

func (m *Metrics) calculateOpenSuccessRate() float64 {
	attempts := m.OpenAttempts.Load()
	if attempts == 0 {
		return 100.0
	}
	return float64(m.SuccessfulOpens.Load()) / float64(attempts) * 100
}

func (m *Metrics) calculateReadSuccessRate() float64 {
	reads := m.ReadOperations.Load()
	if reads == 0 {
		return 100.0
	}
	return float64(m.SuccessfulReads.Load()) / float64(reads) * 100
}

func (m *Metrics) calculateWriteSuccessRate() float64 {
	writes := m.WriteOperations.Load()
	if writes == 0 {
		return 100.0
	}
	return float64(m.SuccessfulWrites.Load()) / float64(writes) * 100
}

func (m *Metrics) calculateAverageReadLatency() time.Duration {
	reads := m.ReadOperations.Load()
	if reads == 0 {
		return 0
	}
	return time.Duration(m.TotalReadTime.Load() / reads)
}

func (m *Metrics) calculateAverageWriteLatency() time.Duration {
	writes := m.WriteOperations.Load()
	if writes == 0 {
		return 0
	}
	return time.Duration(m.TotalWriteTime.Load() / writes)
}

func (m *Metrics) calculateEmptyReadRate() float64 {
	reads := m.ReadOperations.Load()
	if reads == 0 {
		return 0.0
	}
	return float64(m.EmptyReads.Load()) / float64(reads) * 100
}

func (m *Metrics) calculateBufferPoolHitRatio() float64 {
	total := m.BufferPoolHits.Load() + m.BufferPoolMisses.Load()
	if total == 0 {
		return 100.0
	}
	return float64(m.BufferPoolHits.Load()) / float64(total) * 100
}

func (m *Metrics) calculateUptime() float64 {
	start := m.StartTime.Load()
	if start == 0 {
		return 0.0
	}
	d := time.Now().UnixNano() - start
	if d <= 0 {
		return 0.0
	}
	return float64(d) / float64(time.Second)
}

func (m *Metrics) assessHealthStatus(s *Snapshot) HealthStatus {
	if s.ActiveSessions == 0 {
		return HealthStatusIdle
	}

	// Check for critical issues
	if s.ErrorRate > 50.0 || s.ConsecutiveFailures > 5 {
		return HealthStatusUnhealthy
	}

	// Check for performance degradation
	if s.ErrorRate > 10.0 || s.ConsecutiveFailures > 3 {
		return HealthStatusDegraded
	}

	return HealthStatusHealthy
}

func (m *Metrics) calculateHealthScore(s *Snapshot) float64 {
	if s.ActiveSessions == 0 {
		return 100.0
	}

	score := 100.0
	score -= s.ErrorRate * 2
	// Consecutive failures weigh more than the running rate
	score -= float64(s.ConsecutiveFailures) * 10

	if score < 0 {
		score = 0
	}
	return score
}
