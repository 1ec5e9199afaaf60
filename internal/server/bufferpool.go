package server

import "sync"

// bufferPool hands out read buffers of one fixed size
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

func (p *bufferPool) get() []byte {
	buf := p.pool.Get().(*[]byte)
	return (*buf)[:p.size]
}

func (p *bufferPool) put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:p.size]
	clear(buf)
	p.pool.Put(&buf)
}
