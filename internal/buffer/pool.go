// Package buffer implements the fixed-size buffer pool and the logical ring
// buffer the rest of the CORE builds on: a Pipeline pulls a PooledBuffer
// per chunk instead of allocating, and releases it back to the pool once
// every subscribed session is done with it.
package buffer

import "sync"

// Pool is a fixed pool of poolSize buffers, each bufferSize bytes.
// Allocate is O(poolSize) first-fit and returns ok=false when every buffer
// is in use; callers must treat that as backpressure and drop the chunk
// rather than block (see streamerr.ResourceExhausted).
type Pool struct {
	mu         sync.Mutex
	bufferSize int
	slots      []slot
}

type slot struct {
	data []byte
	free bool
}

// New creates a Pool of poolSize buffers, each bufferSize bytes.
func New(poolSize, bufferSize int) *Pool {
	p := &Pool{
		bufferSize: bufferSize,
		slots:      make([]slot, poolSize),
	}
	for i := range p.slots {
		p.slots[i] = slot{data: make([]byte, bufferSize), free: true}
	}
	return p
}

// PooledBuffer is a move-only handle onto one of the Pool's backing
// buffers. It must be released exactly once via Release; a zero-value
// PooledBuffer (returned alongside ok=false from Allocate) must not be used.
type PooledBuffer struct {
	pool  *Pool
	index int
	Bytes []byte // usable storage; callers may reslice Bytes[:n] to the fill length
}

// Allocate returns a free buffer, or ok=false if the pool is exhausted.
func (p *Pool) Allocate() (*PooledBuffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		if p.slots[i].free {
			p.slots[i].free = false
			return &PooledBuffer{pool: p, index: i, Bytes: p.slots[i].data}, true
		}
	}
	return nil, false
}

// Release returns the buffer's slot to the free list. Releasing the same
// PooledBuffer twice is a caller bug; Release guards against it by checking
// the slot is not already free, so a double-release is a silent no-op
// rather than corrupting pool accounting.
func (b *PooledBuffer) Release() {
	if b == nil || b.pool == nil {
		return
	}
	p := b.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.slots[b.index].free {
		p.slots[b.index].free = true
	}
	b.pool = nil
}

// Available returns the number of currently free buffers.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s.free {
			n++
		}
	}
	return n
}

// Capacity returns the total number of buffers in the pool.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// BufferSize returns the fixed size, in bytes, of every buffer in the pool.
func (p *Pool) BufferSize() int {
	return p.bufferSize
}
