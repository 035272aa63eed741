// Package pool provides reusable byte buffers for streaming file I/O.
//
// sync.Pool caches allocated but unused objects for later reuse, relieving
// pressure on the garbage collector. Items are dropped on garbage collection,
// which makes it suitable for short-lived buffers but not for persistent resources.
package pool

import (
	"fmt"
	"io"
	"sync"
)

// FixedBufferPool hands out byte slices of one fixed size.
type FixedBufferPool struct {
	size int64
	pool sync.Pool
}

// NewFixedBufferPool creates a pool of buffers of exactly size bytes.
func NewFixedBufferPool(size int64) *FixedBufferPool {
	if size <= 0 {
		panic(fmt.Sprintf("buffer size %d must be positive", size))
	}
	return &FixedBufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, int(size))
				return &b
			},
		},
	}
}

// Size returns the length of the buffers handed out by this pool.
func (fp *FixedBufferPool) Size() int64 {
	return fp.size
}

// Get returns a buffer with len == cap == Size().
func (fp *FixedBufferPool) Get() *[]byte {
	b := fp.pool.Get().(*[]byte)
	*b = (*b)[:fp.size]
	return b
}

// Put returns b to the pool. Buffers of a foreign size are dropped.
func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || int64(cap(*b)) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}

// Copy streams src into dst through a buffer borrowed from the pool.
func (fp *FixedBufferPool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	b := fp.Get()
	defer fp.Put(b)
	return io.CopyBuffer(dst, src, *b)
}
