// ABOUTME: BufferPool recycles page-sized buffers across transactions
// ABOUTME: (§5 "VStore writes use page-sized buffers pooled across transactions")

package pager

import "sync"

// BufferPool is a capped reuse list of page-sized byte slices, grounded on
// original_source's storage/btree/tree/definition/buffer_pool.rs
// (BufferPool{buffers, max_buffers}, acquire/acquire_with_capacity/release).
// AllocatePage draws from it instead of a fresh make() per call, and
// WriteGuard returns buffers to it when a transaction's staged pages are
// discarded (Abort) rather than published into the cache.
type BufferPool struct {
	mu      sync.Mutex
	buffers [][]byte
	max     int
}

// NewBufferPool creates a pool that retains at most maxBuffers released
// slices for reuse; further releases are simply dropped for the GC to
// reclaim, matching the Rust original's capped Vec<Vec<u8>>.
func NewBufferPool(maxBuffers int) *BufferPool {
	if maxBuffers < 1 {
		maxBuffers = 1
	}
	return &BufferPool{max: maxBuffers}
}

// Acquire returns a zeroed buffer of exactly size bytes, reusing a pooled
// slice when one of sufficient capacity is available.
func (p *BufferPool) Acquire(size int) []byte {
	p.mu.Lock()
	n := len(p.buffers)
	if n == 0 {
		p.mu.Unlock()
		return make([]byte, size)
	}
	buf := p.buffers[n-1]
	p.buffers = p.buffers[:n-1]
	p.mu.Unlock()

	if cap(buf) < size {
		return make([]byte, size)
	}
	buf = buf[:size]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Release returns buf to the pool for future Acquire calls, up to max
// retained buffers; beyond that it is dropped so the pool cannot grow
// unbounded under bursty allocation.
func (p *BufferPool) Release(buf []byte) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffers) >= p.max {
		return
	}
	p.buffers = append(p.buffers, buf)
}

// Len reports how many buffers are currently retained, for diagnostics.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}
