package pool

import "sync"

// ThreadLocal is a thread-local pool variant: one slot per logical
// "thread" instead of a shared LIFO. Go has no native goroutine-local
// storage, so callers supply an explicit key identifying their logical
// thread (typically a session or worker id) rather than one being
// inferred from the runtime — see DESIGN.md's Open Question resolution
// for the rationale.
type ThreadLocal[T any] struct {
	mu    sync.Mutex
	slots map[any]T

	New       func() T
	OnRent    func(T)
	PreReturn func(T) bool
}

// NewThreadLocal returns a ThreadLocal pool constructing fresh instances
// with newFn when a key has no slot yet.
func NewThreadLocal[T any](newFn func() T) *ThreadLocal[T] {
	return &ThreadLocal[T]{slots: make(map[any]T), New: newFn}
}

// Rent returns the instance in key's slot, or constructs and stores one if
// the slot is empty.
func (p *ThreadLocal[T]) Rent(key any) T {
	p.mu.Lock()
	item, ok := p.slots[key]
	p.mu.Unlock()

	if !ok {
		item = p.New()
		p.mu.Lock()
		p.slots[key] = item
		p.mu.Unlock()
	}

	if p.OnRent != nil {
		p.OnRent(item)
	}
	return item
}

// Return runs PreReturn; if it returns false, the slot is replaced with a
// freshly constructed instance and the old one is disposed (if
// Disposable). Otherwise the slot keeps its current occupant (which must
// be item, the instance Rent handed out for key).
func (p *ThreadLocal[T]) Return(key any, item T) {
	if isNil(item) {
		panic("pool: Return called with a nil item")
	}

	keep := true
	if p.PreReturn != nil {
		keep = p.PreReturn(item)
	}
	if keep {
		return
	}

	disposeIfDisposable(item)
	p.mu.Lock()
	p.slots[key] = p.New()
	p.mu.Unlock()
}

// Drop removes and disposes the slot for key, if any.
func (p *ThreadLocal[T]) Drop(key any) {
	p.mu.Lock()
	item, ok := p.slots[key]
	delete(p.slots, key)
	p.mu.Unlock()

	if ok {
		disposeIfDisposable(item)
	}
}
