// Package pool provides object and buffer pooling for parquetry. Pooling keeps
// the per-page and per-chunk scratch buffers of the encode pipeline off the
// garbage collector's books.
//
// The package provides:
//   - Generic type-safe object pooling with Pool[T]
//   - Buffer pooling with size-based buckets
//   - Statistics for monitoring hit rates
//
// Example usage:
//
//	buf := pool.GlobalBufferPool.Get(64 * 1024)
//	defer pool.GlobalBufferPool.Put(buf)
//
//	scratch := pool.New(
//	    func() *[]byte { b := make([]byte, 0, 4096); return &b },
//	    func(b *[]byte) { *b = (*b)[:0] },
//	)
//	b := scratch.Get()
//	defer scratch.Put(b)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and automatic reset.
// The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		hits      int64
		misses    int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function, if any, is called before an object goes back to the pool.
//
// Example:
//
//	pool := New(
//	    func() *Buffer { return &Buffer{data: make([]byte, 0, 1024)} },
//	    func(b *Buffer) { b.data = b.data[:0] },
//	)
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		atomic.AddInt64(&p.stats.misses, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	misses := atomic.LoadInt64(&p.stats.misses)
	obj := p.pool.Get().(T)
	if atomic.LoadInt64(&p.stats.misses) == misses {
		atomic.AddInt64(&p.stats.hits, 1)
	}
	return obj
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns the pool statistics.
//
// Returns:
//   - allocated: Total number of objects created by the pool
//   - inUse: Number of objects currently checked out from the pool
//   - hits: Number of Get calls served from the pool
//   - misses: Number of times a new object had to be created
func (p *Pool[T]) Stats() (allocated, inUse, hits, misses int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.hits),
		atomic.LoadInt64(&p.stats.misses)
}

// BufferPool manages byte buffer pooling with size-based buckets.
// It maintains one pool per bucket size and selects the smallest bucket
// that fits a request.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a new buffer pool with predefined size buckets.
// Buffers larger than the biggest bucket are allocated directly.
//
// The predefined sizes are:
//   - 512B, 1KB, 4KB, 16KB, 64KB, 256KB, 1MB, 4MB, 16MB, 64MB
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,      // 512B
		1024,     // 1KB
		4096,     // 4KB
		16384,    // 16KB
		65536,    // 64KB
		262144,   // 256KB
		1048576,  // 1MB
		4194304,  // 4MB
		16777216, // 16MB
		67108864, // 64MB
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = New(
			func() []byte {
				return make([]byte, size)
			},
			nil,
		)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer of length size. Its capacity may be larger.
//
// Example:
//
//	buf := bufferPool.Get(2048)  // Returns a 4KB buffer with length 2048
//	defer bufferPool.Put(buf)
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}

	return make([]byte, size)
}

// Put returns a buffer to the pool. Buffers whose capacity does not match a
// bucket are left to the garbage collector. The content is not cleared.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)

	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}

// Stats returns per-bucket statistics keyed by bucket size.
func (p *BufferPool) Stats() map[int]Stats {
	out := make(map[int]Stats, len(p.sizes))
	for i, s := range p.sizes {
		a, u, h, m := p.pools[i].Stats()
		out[s] = Stats{Allocated: a, InUse: u, Hits: h, Misses: m}
	}
	return out
}

// GlobalBufferPool provides size-based byte buffer pooling for staging and
// arena memory.
var GlobalBufferPool = NewBufferPool()

// Stats represents pool statistics for monitoring and optimization.
type Stats struct {
	// Allocated is the total number of objects created by the pool
	Allocated int64
	// InUse is the current number of objects checked out from the pool
	InUse int64
	// Hits is the number of successful pool retrievals
	Hits int64
	// Misses is the number of times a new object had to be created
	Misses int64
}
