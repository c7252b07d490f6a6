package serial

import (
	"sync"
	"sync/atomic"
)

// BufferPool manages reusable byte buffers for I/O operations
type BufferPool struct {
	pool sync.Pool
	size int
	// Metrics for monitoring pool efficiency
	gets    atomic.Int64
	puts    atomic.Int64
	creates atomic.Int64
}

// NewBufferPool creates a buffer pool with fixed-size buffers
func NewBufferPool(bufferSize int) *BufferPool {
	bp := &BufferPool{
		size: bufferSize,
	}
	bp.pool = sync.Pool{
		New: func() any {
			bp.creates.Add(1)
			return make([]byte, bufferSize)
		},
	}
	return bp
}

// Get retrieves a buffer from the pool
func (bp *BufferPool) Get() []byte {
	bp.gets.Add(1)
	return bp.pool.Get().([]byte)
}

// Put returns a buffer to the pool (clears it first for security)
func (bp *BufferPool) Put(buf []byte) {
	if len(buf) != bp.size {
		return // Don't pool incorrectly sized buffers
	}
	bp.puts.Add(1)

	clear(buf)
	bp.pool.Put(buf)
}

// Stats returns pool usage statistics
func (bp *BufferPool) Stats() PoolStats {
	return PoolStats{
		Size:    bp.size,
		Gets:    bp.gets.Load(),
		Puts:    bp.puts.Load(),
		Creates: bp.creates.Load(),
	}
}

// PoolStats contains buffer pool usage statistics
type PoolStats struct {
	Size    int   // Buffer size managed by this pool
	Gets    int64 // Number of Get() calls
	Puts    int64 // Number of Put() calls
	Creates int64 // Number of new buffers created
}

// poolSizes are the pooled buffer classes. Larger reads allocate directly.
var poolSizes = []int{256, 1024, 4096}

// BufferPoolManager hands out read buffers for every session of a Manager.
type BufferPoolManager struct {
	pools   []*BufferPool // ascending by size
	metrics *Metrics      // hit/miss accounting, may be nil
}

// NewBufferPoolManager creates a new buffer pool manager
func NewBufferPoolManager(metrics *Metrics) *BufferPoolManager {
	bpm := &BufferPoolManager{metrics: metrics}
	for _, size := range poolSizes {
		bpm.pools = append(bpm.pools, NewBufferPool(size))
	}
	return bpm
}

func (bpm *BufferPoolManager) record(hit bool) {
	if bpm.metrics == nil {
		return
	}
	if hit {
		bpm.metrics.BufferPoolHits.Add(1)
	} else {
		bpm.metrics.BufferPoolMisses.Add(1)
	}
}

// GetPooledBuffer returns a buffer of len size and a func that gives it back.
// Sizes above AbsoluteMaxBufferSize yield a nil buffer.
func (bpm *BufferPoolManager) GetPooledBuffer(size int) ([]byte, func()) {
	if size > AbsoluteMaxBufferSize {
		// Prevent memory exhaustion from oversized requests
		bpm.record(false)
		return nil, func() {}
	}
	if size <= 0 {
		size = 1
	}

	for _, p := range bpm.pools {
		if size <= p.size {
			bpm.record(true)
			buf := p.Get()[:size]
			return buf, func() { p.Put(buf[:cap(buf)]) }
		}
	}

	bpm.record(false)
	return make([]byte, size), func() {}
}

// GetAllPoolStats returns statistics for all pools
func (bpm *BufferPoolManager) GetAllPoolStats() []PoolStats {
	stats := make([]PoolStats, 0, len(bpm.pools))
	for _, p := range bpm.pools {
		stats = append(stats, p.Stats())
	}
	return stats
}
