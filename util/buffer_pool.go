package util

import (
	pool "github.com/libp2p/go-buffer-pool"
)

// BufferPool hands out fixed size read windows.
type BufferPool struct {
	bufferSize int
}

func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		bufferSize: size,
	}
}

func (b *BufferPool) Get() []byte {
	return pool.Get(b.bufferSize)
}

func (b *BufferPool) Put(buf []byte) {
	pool.Put(buf)
}
