// Package pool recycles the part-sized buffers the copy engine streams
// through, so a long multipart transfer allocates at most a handful of
// chunks regardless of object size.
package pool

import (
	"sync"
)

// ChunkPool hands out byte slices of a requested size. Buffers are pooled per
// capacity, so sessions using different part sizes do not evict each other.
type ChunkPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

// NewChunkPool creates an empty ChunkPool.
func NewChunkPool() *ChunkPool {
	return &ChunkPool{pools: make(map[int]*sync.Pool)}
}

func (p *ChunkPool) pool(size int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.pools[size]
	if !ok {
		sp = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
		p.pools[size] = sp
	}
	return sp
}

// Get returns a buffer of length size.
// The caller is responsible for calling Put to return the buffer to the pool.
func (p *ChunkPool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	bufPtr := p.pool(size).Get().(*[]byte)
	return (*bufPtr)[:size]
}

// Put returns a buffer obtained from Get. The buffer must not be used after
// calling Put.
func (p *ChunkPool) Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:cap(buf)]
	p.pool(cap(buf)).Put(&buf)
}

// Sizes returns the number of distinct buffer sizes the pool has served.
func (p *ChunkPool) Sizes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pools)
}
