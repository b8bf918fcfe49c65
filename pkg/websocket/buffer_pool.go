package websocket

import (
	"sync"
)

const (
	defaultBufferSize = 4 << 10
	maxPooledBuffer   = 1 << 20
)

// BufferPool recycles outbound frame buffers.
type BufferPool struct {
	pool *sync.Pool
}

// DefaultBufferPool returns a pool of 4 KiB buffers.
func DefaultBufferPool() *BufferPool {
	return NewBufferPool(defaultBufferSize)
}

// NewBufferPool creates a pool whose fresh buffers have the given capacity.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &BufferPool{
		pool: &sync.Pool{
			New: func() any {
				return make([]byte, 0, size)
			},
		},
	}
}

// Get returns a buffer with length size. Requests larger than a pooled
// buffer get a fresh allocation.
func (p *BufferPool) Get(size int) []byte {
	if size < 0 {
		size = 0
	}
	buf := p.pool.Get().([]byte)
	if cap(buf) < size {
		p.pool.Put(buf[:0])
		return make([]byte, size)
	}
	return buf[:size]
}

// Put returns a buffer to the pool. Oversized buffers are left to the GC.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) == 0 || cap(buf) > maxPooledBuffer {
		return
	}
	p.pool.Put(buf[:0])
}
