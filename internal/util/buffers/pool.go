// Package buffers provides reusable chunk buffers for uploads. Reusing
// buffers across tasks keeps GC pressure flat when many uploads run.
package buffers

import (
	"sync"
	"sync/atomic"
)

// Pool hands out byte buffers of one fixed size.
type Pool struct {
	size        int
	pool        sync.Pool
	allocations atomic.Int64
	gets        atomic.Int64
}

// NewPool creates a pool of size-byte buffers.
func NewPool(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() interface{} {
		p.allocations.Add(1)
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get retrieves a buffer from the pool. Return it with Put when done.
//
// Usage:
//
//	buf := pool.Get()
//	defer pool.Put(buf)
//	n, err := io.ReadFull(file, *buf)
//	// Use (*buf)[:n] for actual data
func (p *Pool) Get() *[]byte {
	p.gets.Add(1)
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer for reuse. Buffers of another size are dropped.
// The buffer is cleared so file contents do not persist across uses.
func (p *Pool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != p.size {
		return
	}
	clear(*buf)
	p.pool.Put(buf)
}

// Size returns the buffer size in bytes.
func (p *Pool) Size() int {
	return p.size
}

// Stats reports pool usage.
type Stats struct {
	BufferSize  int   // Size of each buffer (bytes)
	Gets        int64 // Buffers handed out
	Allocations int64 // Buffers created because the pool was empty
}

// ReuseRate returns the fraction of gets served without allocating.
func (s Stats) ReuseRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.Allocations) / float64(s.Gets)
}

// GetStats returns current pool statistics.
func (p *Pool) GetStats() Stats {
	return Stats{
		BufferSize:  p.size,
		Gets:        p.gets.Load(),
		Allocations: p.allocations.Load(),
	}
}
