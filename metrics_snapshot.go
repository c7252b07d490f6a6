package serial

import "time"

// Snapshot is a point-in-time view of Metrics with derived rates.
type Snapshot struct {
	Timestamp    time.Time    `json:"timestamp"`
	HealthStatus HealthStatus `json:"health_status"`
	HealthScore  float64      `json:"health_score"`

	ActiveSessions  int64 `json:"active_sessions"`
	TotalOpens      int64 `json:"total_opens"`
	TotalCloses     int64 `json:"total_closes"`
	ConnectionsLost int64 `json:"connections_lost"`

	OpenSuccessRate     float64       `json:"open_success_rate"`
	ReadSuccessRate     float64       `json:"read_success_rate"`
	WriteSuccessRate    float64       `json:"write_success_rate"`
	EmptyReadRate       float64       `json:"empty_read_rate"`
	ErrorRate           float64       `json:"error_rate"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	AverageReadLatency  time.Duration `json:"average_read_latency"`
	AverageWriteLatency time.Duration `json:"average_write_latency"`
	MaxReadLatency      time.Duration `json:"max_read_latency"`
	MaxWriteLatency     time.Duration `json:"max_write_latency"`
	BufferPoolHitRatio  float64       `json:"buffer_pool_hit_ratio"`
	UptimeSeconds       float64       `json:"uptime_seconds"`

	TotalReads        int64 `json:"total_reads"`
	TotalWrites       int64 `json:"total_writes"`
	TotalBytesRead    int64 `json:"total_bytes_read"`
	TotalBytesWritten int64 `json:"total_bytes_written"`
	TotalErrors       int64 `json:"total_errors"`
}

// Snapshot computes the current view. Safe for concurrent use.
func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:       time.Now(),
		ActiveSessions:  m.ActiveSessions.Load(),
		TotalOpens:      m.SuccessfulOpens.Load(),
		TotalCloses:     m.Closes.Load(),
		ConnectionsLost: m.ConnectionsLost.Load(),
	}

	s.OpenSuccessRate = m.calculateOpenSuccessRate()
	s.ReadSuccessRate = m.calculateReadSuccessRate()
	s.WriteSuccessRate = m.calculateWriteSuccessRate()
	s.EmptyReadRate = m.calculateEmptyReadRate()
	s.ErrorRate = float64(m.ErrorRate.Load()) / 10.0 // per-1000 to percentage
	s.ConsecutiveFailures = m.ConsecutiveFailures.Load()
	s.AverageReadLatency = m.calculateAverageReadLatency()
	s.AverageWriteLatency = m.calculateAverageWriteLatency()
	s.MaxReadLatency = time.Duration(m.MaxReadTime.Load())
	s.MaxWriteLatency = time.Duration(m.MaxWriteTime.Load())
	s.BufferPoolHitRatio = m.calculateBufferPoolHitRatio()
	s.UptimeSeconds = m.calculateUptime()

	s.TotalReads = m.ReadOperations.Load()
	s.TotalWrites = m.WriteOperations.Load()
	s.TotalBytesRead = m.BytesRead.Load()
	s.TotalBytesWritten = m.BytesWritten.Load()
	s.TotalErrors = m.ReadErrors.Load() + m.WriteErrors.Load()

	s.HealthStatus = m.assessHealthStatus(s)
	s.HealthScore = m.calculateHealthScore(s)
	return s
}
