// Package memory provides an opaque pooled-heap provider: two handle
// shapes (span-only and memory-backed) wrapping byte slices drawn from a
// [sync.Pool] of buckets.
//
// This is deliberately thin. Go's garbage collector and sync.Pool already
// do the work of an unmanaged allocator, so Manager is a bucketed façade
// over sync.Pool rather than a custom heap.
package memory

import (
	"fmt"
	"sync"
)

// Kind distinguishes the two handle shapes a Manager can vend.
type Kind int

const (
	// SpanOnly handles are only guaranteed valid while not suspended
	// (i.e. within a single synchronous call chain); they never cross an
	// await/suspension point.
	SpanOnly Kind = iota
	// MemoryBacked handles may additionally be held across suspension
	// points, such as a response buffer awaited by a Request.
	MemoryBacked
)

// Handle is a single allocation vended by a Manager. Every Alloc must be
// paired with exactly one Free; using a Handle after Free, or sharing one
// concurrently, is a program error the Manager does not attempt to detect.
type Handle struct {
	Kind Kind
	buf  []byte
	pool *sync.Pool
}

// Bytes returns the handle's backing storage.
func (h *Handle) Bytes() []byte {
	return h.buf
}

// Manager allocates and releases byte-slice buffers from a small set of
// fixed-size pools ("buckets"), so repeated alloc/free cycles of the same
// size class do not churn the garbage collector.
type Manager struct {
	buckets map[int]*sync.Pool
	mu      sync.Mutex
}

// NewManager returns a Manager with no pre-warmed buckets; buckets are
// created lazily per distinct size on first Alloc.
func NewManager() *Manager {
	return &Manager{buckets: make(map[int]*sync.Pool)}
}

func (m *Manager) bucket(size int) *sync.Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.buckets[size]
	if !ok {
		p = &sync.Pool{New: func() any { return make([]byte, size) }}
		m.buckets[size] = p
	}
	return p
}

// InitHandle allocates a memory-backed handle of size bytes.
func (m *Manager) InitHandle(size int) *Handle {
	return m.alloc(MemoryBacked, size)
}

// InitSpanOnly allocates a span-only handle of size bytes.
func (m *Manager) InitSpanOnly(size int) *Handle {
	return m.alloc(SpanOnly, size)
}

// AllocBuffer is an alias of InitHandle/InitSpanOnly depending on kind, as
// a single verb parameterized on the handle shape; Go's value semantics
// make it a constructor rather than a mutator.
func (m *Manager) AllocBuffer(kind Kind, size int) *Handle {
	return m.alloc(kind, size)
}

func (m *Manager) alloc(kind Kind, size int) *Handle {
	if size <= 0 {
		panic(fmt.Sprintf("memory: invalid alloc size %d", size))
	}
	pool := m.bucket(size)
	buf := pool.Get().([]byte) //nolint:errcheck // bucket's New always returns []byte
	if len(buf) != size {
		buf = make([]byte, size)
	}
	return &Handle{Kind: kind, buf: buf, pool: pool}
}

// FreeBuffer releases h back to its bucket. Calling it more than once per
// Alloc, or using h afterwards, is a use-after-free program error.
func (m *Manager) FreeBuffer(h *Handle) {
	if h == nil || h.pool == nil {
		return
	}
	clear(h.buf)
	h.pool.Put(h.buf) //nolint:staticcheck // intentional: pool element type is []byte
	h.buf = nil
	h.pool = nil
}
