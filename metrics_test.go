package serial

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ----- Core Metrics Tests -----

func TestMetrics_Initialization(t *testing.T) {
	m := NewManager()

	if m.metrics == nil {
		t.Fatal("Metrics not initialized")
	}
	if m.metrics.StartTime.Load() == 0 {
		t.Fatal("Start time not recorded")
	}
	if m.pools == nil {
		t.Fatal("Buffer pool manager not initialized")
	}

	s := m.Stats()
	if s.HealthStatus != HealthStatusIdle {
		t.Fatalf("Expected idle status with no sessions, got %s", s.HealthStatus)
	}
}

func TestMetrics_OpenAndClose(t *testing.T) {
	installMockDevices(t, "COM1")
	m := NewManager()

	h := mustOpen(t, m, "COM1", DefaultConfig())
	if _, err := m.Open(context.Background(), "COM9", DefaultConfig()); err == nil {
		t.Fatal("Expected open of missing device to fail")
	}

	if got := m.metrics.OpenAttempts.Load(); got != 2 {
		t.Fatalf("Expected 2 open attempts, got %d", got)
	}
	if got := m.metrics.SuccessfulOpens.Load(); got != 1 {
		t.Fatalf("Expected 1 successful open, got %d", got)
	}
	if got := m.metrics.DeviceErrors.Load(); got != 1 {
		t.Fatalf("Expected 1 device error, got %d", got)
	}
	if got := m.metrics.ActiveSessions.Load(); got != 1 {
		t.Fatalf("Expected 1 active session, got %d", got)
	}

	if err := m.Close(context.Background(), h); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := m.metrics.ActiveSessions.Load(); got != 0 {
		t.Fatalf("Expected 0 active sessions, got %d", got)
	}
	if got := m.metrics.Closes.Load(); got != 1 {
		t.Fatalf("Expected 1 close, got %d", got)
	}
	if m.metrics.LastCloseTime.Load() == 0 {
		t.Fatal("Expected last close time to be set")
	}
}

func TestMetrics_WritesAndReads(t *testing.T) {
	devs := installMockDevices(t, "COM1")
	m := NewManager()
	h := mustOpen(t, m, "COM1", DefaultConfig())
	ctx := context.Background()

	if _, err := m.Write(ctx, h, []byte("hello"), EncodingUTF8); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	devs.port("COM1").emit([]byte("test"))
	if _, err := m.Read(ctx, h, 10, time.Second); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if _, err := m.Read(ctx, h, 10, 0); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if got := m.metrics.BytesWritten.Load(); got != 5 {
		t.Fatalf("Expected 5 bytes written, got %d", got)
	}
	if got := m.metrics.BytesRead.Load(); got != 4 {
		t.Fatalf("Expected 4 bytes read, got %d", got)
	}
	if got := m.metrics.EmptyReads.Load(); got != 1 {
		t.Fatalf("Expected 1 empty read, got %d", got)
	}
	if m.metrics.MaxReadTime.Load() <= 0 {
		t.Fatal("Expected max read time to be recorded")
	}

	s := m.Stats()
	if s.HealthStatus != HealthStatusHealthy {
		t.Fatalf("Expected healthy status, got %s", s.HealthStatus)
	}
	if s.HealthScore < 90 {
		t.Fatalf("Expected high health score, got %.1f", s.HealthScore)
	}
	if s.TotalReads != 2 || s.TotalWrites != 1 {
		t.Fatalf("Expected 2 reads and 1 write, got %d and %d", s.TotalReads, s.TotalWrites)
	}
	if s.ReadSuccessRate != 100.0 || s.WriteSuccessRate != 100.0 {
		t.Fatalf("Expected 100%% success rates, got %.1f / %.1f", s.ReadSuccessRate, s.WriteSuccessRate)
	}
	if s.EmptyReadRate != 50.0 {
		t.Fatalf("Expected 50%% empty reads, got %.1f", s.EmptyReadRate)
	}
}

func TestMetrics_ErrorCategories(t *testing.T) {
	installMockDevices(t, "COM1")
	m := NewManager()
	h := mustOpen(t, m, "COM1", DefaultConfig())
	ctx := context.Background()

	_, _ = m.Write(ctx, h, []byte("zz"), EncodingHex)
	_, _ = m.Write(ctx, "missing", []byte("x"), EncodingUTF8)
	_, _ = m.Read(ctx, h, 0, 0)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, _ = m.Read(canceled, h, 10, time.Second)

	if got := m.metrics.EncodingErrors.Load(); got != 1 {
		t.Fatalf("Expected 1 encoding error, got %d", got)
	}
	if got := m.metrics.HandleErrors.Load(); got != 1 {
		t.Fatalf("Expected 1 handle error, got %d", got)
	}
	if got := m.metrics.ConfigurationErrors.Load(); got != 1 {
		t.Fatalf("Expected 1 configuration error, got %d", got)
	}
	if got := m.metrics.CanceledOperations.Load(); got != 1 {
		t.Fatalf("Expected 1 canceled operation, got %d", got)
	}
	if got := m.metrics.ConsecutiveFailures.Load(); got != 4 {
		t.Fatalf("Expected 4 consecutive failures, got %d", got)
	}
}

func TestMetrics_SnapshotUnhealthyConditions(t *testing.T) {
	installMockDevices(t, "COM1")
	m := NewManager()
	mustOpen(t, m, "COM1", DefaultConfig())

	// Simulate consecutive failures
	m.metrics.ConsecutiveFailures.Store(6) // Above unhealthy threshold
	m.metrics.ReadOperations.Store(1)
	m.metrics.WriteOperations.Store(1)

	s := m.Stats()
	if s.HealthStatus != HealthStatusUnhealthy {
		t.Fatalf("Expected unhealthy status, got %s", s.HealthStatus)
	}
	if s.HealthScore > 50 {
		t.Fatalf("Expected low health score, got %.1f", s.HealthScore)
	}

	m.metrics.ConsecutiveFailures.Store(4)
	if s := m.Stats(); s.HealthStatus != HealthStatusDegraded {
		t.Fatalf("Expected degraded status, got %s", s.HealthStatus)
	}
}

func TestMetrics_ConnectionLost(t *testing.T) {
	devs := installMockDevices(t, "COM1")
	m := NewManager()
	h := mustOpen(t, m, "COM1", DefaultConfig())

	devs.port("COM1").setWriteErr(errors.New("gone"))
	_, _ = m.Write(context.Background(), h, []byte("x"), EncodingUTF8)

	if got := m.metrics.ConnectionsLost.Load(); got != 1 {
		t.Fatalf("Expected 1 lost connection, got %d", got)
	}
	if got := m.metrics.ActiveSessions.Load(); got != 0 {
		t.Fatalf("Expected 0 active sessions, got %d", got)
	}
	if got := m.metrics.WriteErrors.Load(); got != 1 {
		t.Fatalf("Expected 1 write error, got %d", got)
	}
}

// ----- Buffer Pool Integration Tests -----

func TestMetrics_BufferPoolIntegration(t *testing.T) {
	m := NewManager()

	buf1, cleanup1 := m.pools.GetPooledBuffer(256)
	if len(buf1) != 256 {
		t.Fatalf("Expected buffer size 256, got %d", len(buf1))
	}
	cleanup1()

	buf2, cleanup2 := m.pools.GetPooledBuffer(512)
	if len(buf2) != 512 {
		t.Fatalf("Expected buffer size 512, got %d", len(buf2))
	}
	cleanup2()

	if m.metrics.BufferPoolHits.Load() != 2 {
		t.Fatalf("Expected 2 buffer pool hits, got %d", m.metrics.BufferPoolHits.Load())
	}

	stats := m.GetBufferPoolStats()
	if len(stats) != 3 {
		t.Fatalf("Expected 3 pools, got %d", len(stats))
	}
	if stats[0].Size != 256 || stats[0].Gets != 1 || stats[0].Puts != 1 {
		t.Fatalf("Unexpected small pool stats: %+v", stats[0])
	}
	if stats[1].Size != 1024 || stats[1].Gets != 1 {
		t.Fatalf("Unexpected medium pool stats: %+v", stats[1])
	}

	// Oversized buffers bypass the pools
	bigBuf, cleanup3 := m.pools.GetPooledBuffer(MaxBufferSize + 1)
	if len(bigBuf) != MaxBufferSize+1 {
		t.Fatalf("Expected buffer size %d, got %d", MaxBufferSize+1, len(bigBuf))
	}
	cleanup3()

	if m.metrics.BufferPoolMisses.Load() != 1 {
		t.Fatalf("Expected 1 buffer pool miss, got %d", m.metrics.BufferPoolMisses.Load())
	}

	if nilBuf, _ := m.pools.GetPooledBuffer(AbsoluteMaxBufferSize + 1); nilBuf != nil {
		t.Fatal("Expected nil buffer above the absolute limit")
	}
}

// ----- Concurrent Access Tests -----

func TestMetrics_ConcurrentAccess(t *testing.T) {
	installMockDevices(t, "COM1", "COM2")
	m := NewManager()
	a := mustOpen(t, m, "COM1", DefaultConfig())
	b := mustOpen(t, m, "COM2", DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, h := range []Handle{a, b} {
		wg.Add(2)
		go func(h Handle) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, _ = m.Write(ctx, h, []byte("test"), EncodingUTF8)
			}
		}(h)
		go func(h Handle) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, _ = m.Read(ctx, h, 10, 0)
			}
		}(h)
	}
	wg.Wait()

	totalOps := m.metrics.ReadOperations.Load() + m.metrics.WriteOperations.Load()
	if totalOps != 40 {
		t.Fatalf("Expected 40 total operations, got %d", totalOps)
	}
	if got := m.metrics.BytesWritten.Load(); got != 80 {
		t.Fatalf("Expected 80 bytes written, got %d", got)
	}
}
