package proxy

import (
	"net/http/httputil"
	"sync"
)

// proxyBufferSize is the copy buffer size used by the reverse proxy.
const proxyBufferSize = 32 << 10

type bufferPool struct {
	size int
	pool sync.Pool
}

// newBufferPool returns a pool of size-byte buffers. Buffers of any other
// size are dropped on Put.
func newBufferPool(size int) httputil.BufferPool {
	return &bufferPool{size: size}
}

func (p *bufferPool) Get() []byte {
	if b, ok := p.pool.Get().(*[]byte); ok {
		return *b
	}
	return make([]byte, p.size)
}

func (p *bufferPool) Put(b []byte) {
	if cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
