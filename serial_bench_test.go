package serial

import (
	"context"
	"testing"
	"time"
)

// BenchmarkExchange measures a write followed by the read of its response.
func BenchmarkExchange(b *testing.B) {
	devs := installMockDevices(b, "mock")
	m := NewManager()
	h, err := m.Open(context.Background(), "mock", DefaultConfig())
	if err != nil {
		b.Fatalf("Open error: %v", err)
	}
	devs.port("mock").onWrite = func(p *mockPort, _ []byte) { p.emit([]byte("OK;")) }

	ctx := context.Background()
	cmd := []byte("FA;")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := m.Write(ctx, h, cmd, EncodingUTF8); err != nil {
			b.Fatalf("Write error: %v", err)
		}
		if _, err := m.Read(ctx, h, 64, time.Second); err != nil {
			b.Fatalf("Read error: %v", err)
		}
	}
}

// BenchmarkReadStream focuses on the read path by feeding many small chunks.
func BenchmarkReadStream(b *testing.B) {
	devs := installMockDevices(b, "mock")
	m := NewManager()
	h, err := m.Open(context.Background(), "mock", DefaultConfig())
	if err != nil {
		b.Fatalf("Open error: %v", err)
	}
	port := devs.port("mock")

	// Feed data in another goroutine.
	go func() {
		for i := 0; i < b.N; i++ {
			port.emit([]byte("RSP;"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b.ResetTimer()
	for read := 0; read < 4*b.N; {
		data, err := m.Read(ctx, h, 256, time.Second)
		if err != nil {
			b.Fatalf("Read error: %v", err)
		}
		read += len(data)
	}
}
