// Package pool implements a bounded, thread-safe, LIFO reusable object
// pool: Rent constructs-or-reuses, Return runs a pre-return hook that may
// veto caching, and CacheClear/CacheHardClear bound how much is kept
// alive between uses.
//
// Unlike sync.Pool, which may evict cached entries silently under GC
// pressure, this pool gives callers an explicit quota and a disposal
// contract: an item that fails its pre-return hook, or that would push
// the cache past quota, is disposed deterministically rather than left
// to the garbage collector.
package pool

import (
	"reflect"
	"sync"
)

// Disposable is implemented by pool elements that hold resources needing
// explicit release when they are dropped instead of cached.
type Disposable interface {
	Dispose()
}

// Pool is a bounded LIFO cache of T values, safe for concurrent use.
type Pool[T any] struct {
	mu    sync.Mutex
	items []T
	quota int

	// New constructs a fresh instance when the cache is empty.
	New func() T
	// OnRent, if set, runs on every Rent, including freshly constructed
	// instances.
	OnRent func(T)
	// PreReturn, if set, runs on every Return; returning false means the
	// instance is not reusable and must be disposed (if Disposable)
	// instead of cached.
	PreReturn func(T) bool
}

// New returns a Pool that caches at most quota instances, constructing new
// ones with newFn when empty.
func New[T any](quota int, newFn func() T) *Pool[T] {
	return &Pool[T]{quota: quota, New: newFn}
}

// Rent pops a cached instance, or constructs one via New if the cache is
// empty, then runs OnRent if set.
func (p *Pool[T]) Rent() T {
	p.mu.Lock()
	var item T
	n := len(p.items)
	if n > 0 {
		item = p.items[n-1]
		var zero T
		p.items[n-1] = zero
		p.items = p.items[:n-1]
		p.mu.Unlock()
	} else {
		p.mu.Unlock()
		item = p.New()
	}

	if p.OnRent != nil {
		p.OnRent(item)
	}
	return item
}

// Return runs PreReturn (if set); if it returns false, item is disposed (if
// Disposable) and not cached. Otherwise, if the cache has not reached
// quota, item is pushed; otherwise it is disposed. Return never blocks the
// caller on cache pressure: exceeding quota simply means no caching.
func (p *Pool[T]) Return(item T) {
	if isNil(item) {
		panic("pool: Return called with a nil item")
	}

	keep := true
	if p.PreReturn != nil {
		keep = p.PreReturn(item)
	}
	if !keep {
		disposeIfDisposable(item)
		return
	}

	p.mu.Lock()
	if len(p.items) < p.quota {
		p.items = append(p.items, item)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	disposeIfDisposable(item)
}

// CacheClear removes every non-Disposable cached entry, leaving Disposable
// ones in place (they require an explicit disposal pass, CacheHardClear).
func (p *Pool[T]) CacheClear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.items[:0]
	for _, item := range p.items {
		if _, ok := any(item).(Disposable); ok {
			kept = append(kept, item)
		}
	}
	p.items = kept
}

// CacheHardClear removes and disposes every cached entry.
func (p *Pool[T]) CacheHardClear() {
	p.mu.Lock()
	items := p.items
	p.items = nil
	p.mu.Unlock()

	for _, item := range items {
		disposeIfDisposable(item)
	}
}

// Len reports the number of currently cached (not rented) instances.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func disposeIfDisposable(item any) {
	if d, ok := item.(Disposable); ok {
		d.Dispose()
	}
}

// isNil reports whether a generic value is a nil pointer, interface, map,
// slice, channel, or func. Pool[T] is typically instantiated with pointer
// or interface element types, for which this matters: Return must reject
// a nil item.
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
