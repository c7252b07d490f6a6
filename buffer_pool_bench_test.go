package serial

import (
	"context"
	"fmt"
	"testing"
)

// BenchmarkGetPooledBuffer measures buffer pool allocation performance
func BenchmarkGetPooledBuffer(b *testing.B) {
	pools := NewBufferPoolManager(newMetrics())

	sizes := []int{256, 1024, 4096}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Size%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buf, cleanup := pools.GetPooledBuffer(size)
				_ = buf
				cleanup()
			}
		})
	}
}

// BenchmarkDirectAllocation measures direct allocation performance for comparison
func BenchmarkDirectAllocation(b *testing.B) {
	sizes := []int{256, 1024, 4096}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("Size%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buf := make([]byte, size)
				_ = buf
			}
		})
	}
}

// BenchmarkManagerRead drives the full read path against an idle device.
func BenchmarkManagerRead(b *testing.B) {
	installMockDevices(b, "COM1")
	m := NewManager()
	h, err := m.Open(context.Background(), "COM1", DefaultConfig())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Read(ctx, h, 1024, 0)
	}
}

// BenchmarkManagerWrite measures the write path including encoding.
func BenchmarkManagerWrite(b *testing.B) {
	installMockDevices(b, "COM1")
	m := NewManager()
	h, err := m.Open(context.Background(), "COM1", DefaultConfig())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	payload := []byte("48 65 6c 70 0d 0a")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Write(ctx, h, payload, EncodingHex); err != nil {
			b.Fatalf("Write failed: %v", err)
		}
	}
}

// BenchmarkBufferPoolConcurrency tests pool performance under concurrent load
func BenchmarkBufferPoolConcurrency(b *testing.B) {
	pools := NewBufferPoolManager(newMetrics())

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf, cleanup := pools.GetPooledBuffer(1024)
			buf[0] = 1
			cleanup()
		}
	})
}
