package source

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultSoftLimit is the number of outstanding buffers above which the pool
// starts warning. Lossless pipelines may legitimately exceed it when the
// consumer falls behind, so it is never enforced.
const DefaultSoftLimit = 500

// BufferPool recycles frame payload buffers. The free list is owned by a
// single goroutine; Get and Put talk to it over channels.
type BufferPool struct {
	// SoftLimit overrides DefaultSoftLimit when non-zero. Set before first use.
	SoftLimit int

	log log.FieldLogger

	get  chan getRequest
	free chan []byte
	stat chan chan PoolStats
	done chan struct{}
	once sync.Once

	allocated int
	available [][]byte
}

type getRequest struct {
	size  int
	reply chan []byte
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	// Allocated counts buffers created and not yet discarded.
	Allocated int
	// Available counts buffers sitting on the free list.
	Available int
}

func NewBufferPool(logger log.FieldLogger) *BufferPool {
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &BufferPool{
		log:  logger,
		get:  make(chan getRequest),
		free: make(chan []byte),
		stat: make(chan chan PoolStats),
		done: make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *BufferPool) loop() {
	warned := false
	for {
		select {
		case <-p.done:
			p.available = nil
			return
		case b := <-p.free:
			p.available = append(p.available, b)
		case r := <-p.get:
			var b []byte
			for len(p.available) > 0 && b == nil {
				b, p.available = p.available[0], p.available[1:]
				if cap(b) < r.size {
					// Geometry changed; let the old buffer go.
					b = nil
					p.allocated--
				}
			}
			if b == nil {
				b = make([]byte, r.size)
				p.allocated++
				limit := p.SoftLimit
				if limit == 0 {
					limit = DefaultSoftLimit
				}
				if p.allocated > limit && !warned {
					p.log.Warnf("Buffer pool holds %d allocations. Perhaps a frame isn't being released?", p.allocated)
					warned = true
				}
			}
			r.reply <- b[:r.size]
		case c := <-p.stat:
			c <- PoolStats{Allocated: p.allocated, Available: len(p.available)}
		}
	}
}

// Get returns a buffer of length size. After Close it falls back to plain
// allocation.
func (p *BufferPool) Get(size int) []byte {
	r := getRequest{size: size, reply: make(chan []byte, 1)}
	select {
	case p.get <- r:
		return <-r.reply
	case <-p.done:
		return make([]byte, size)
	}
}

// Put hands a buffer back for reuse. Buffers returned after Close are left to
// the garbage collector.
func (p *BufferPool) Put(b []byte) {
	select {
	case p.free <- b:
	case <-p.done:
	}
}

// Stats reports the current usage. It returns zero values after Close.
func (p *BufferPool) Stats() PoolStats {
	c := make(chan PoolStats, 1)
	select {
	case p.stat <- c:
		return <-c
	case <-p.done:
		return PoolStats{}
	}
}

// NewFrame allocates a frame with the geometry of meta and a payload of
// meta.Size() bytes. Releasing the frame returns its payload to the pool.
func (p *BufferPool) NewFrame(meta Frame) *Frame {
	f := meta.Geometry()
	f.Data = p.Get(f.Size())
	f.release = p.releaseFrame
	return &f
}

// CopyFrame deep-copies src into a pooled frame. The copy is independent of
// src, which the caller may release immediately.
func (p *BufferPool) CopyFrame(src *Frame) *Frame {
	f := src.Geometry()
	f.Data = p.Get(len(src.Data))
	copy(f.Data, src.Data)
	f.release = p.releaseFrame
	return &f
}

func (p *BufferPool) releaseFrame(f *Frame) {
	b := f.Data
	f.Data = nil
	if b != nil {
		p.Put(b)
	}
}

// Close frees the free list and stops the pool goroutine.
func (p *BufferPool) Close() {
	p.once.Do(func() { close(p.done) })
}
