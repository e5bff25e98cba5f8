package pool

import "testing"

type fakeDisposable struct {
	id       int
	disposed bool
}

func (f *fakeDisposable) Dispose() { f.disposed = true }

func TestRentConstructsWhenEmpty(t *testing.T) {
	constructed := 0
	p := New(2, func() *fakeDisposable {
		constructed++
		return &fakeDisposable{id: constructed}
	})

	a := p.Rent()
	b := p.Rent()
	if constructed != 2 {
		t.Fatalf("constructed = %d, want 2", constructed)
	}
	if a == b {
		t.Error("Rent() returned the same instance twice with an empty cache")
	}
}

func TestReturnCachesWithinQuota(t *testing.T) {
	p := New(1, func() *fakeDisposable { return &fakeDisposable{} })
	item := p.Rent()
	p.Return(item)

	if got := p.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if got := p.Rent(); got != item {
		t.Error("Rent() did not return the cached instance")
	}
}

func TestReturnDisposesBeyondQuota(t *testing.T) {
	p := New(1, func() *fakeDisposable { return &fakeDisposable{} })
	a := p.Rent()
	b := p.Rent()

	p.Return(a)
	p.Return(b) // exceeds quota of 1

	if got := p.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if !b.disposed {
		t.Error("item beyond quota was not disposed")
	}
	if a.disposed {
		t.Error("cached item should not be disposed")
	}
}

func TestPreReturnFalseDisposesAndDropsItem(t *testing.T) {
	p := New(4, func() *fakeDisposable { return &fakeDisposable{} })
	p.PreReturn = func(item *fakeDisposable) bool { return false }

	item := p.Rent()
	p.Return(item)

	if got := p.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
	if !item.disposed {
		t.Error("item rejected by PreReturn was not disposed")
	}
}

func TestReturnNilPanics(t *testing.T) {
	p := New(1, func() *fakeDisposable { return &fakeDisposable{} })
	defer func() {
		if recover() == nil {
			t.Error("Return(nil) did not panic")
		}
	}()
	p.Return(nil)
}

func TestCacheHardClearDisposesEverything(t *testing.T) {
	p := New(4, func() *fakeDisposable { return &fakeDisposable{} })
	items := []*fakeDisposable{p.Rent(), p.Rent(), p.Rent()}
	for _, it := range items {
		p.Return(it)
	}

	p.CacheHardClear()

	if got := p.Len(); got != 0 {
		t.Fatalf("Len() after CacheHardClear() = %d, want 0", got)
	}
	for i, it := range items {
		if !it.disposed {
			t.Errorf("item %d not disposed by CacheHardClear()", i)
		}
	}
}

func TestOnRentHookRunsForFreshAndCachedInstances(t *testing.T) {
	rentCount := 0
	p := New(1, func() *fakeDisposable { return &fakeDisposable{} })
	p.OnRent = func(item *fakeDisposable) { rentCount++ }

	item := p.Rent()
	p.Return(item)
	p.Rent()

	if rentCount != 2 {
		t.Errorf("OnRent invocations = %d, want 2", rentCount)
	}
}

func TestThreadLocalReturnFalseReplacesSlot(t *testing.T) {
	constructed := 0
	tl := NewThreadLocal(func() *fakeDisposable {
		constructed++
		return &fakeDisposable{id: constructed}
	})
	tl.PreReturn = func(item *fakeDisposable) bool { return false }

	first := tl.Rent("session-1")
	tl.Return("session-1", first)
	second := tl.Rent("session-1")

	if second == first {
		t.Error("Rent() after a false PreReturn should yield a fresh instance")
	}
	if !first.disposed {
		t.Error("old instance should be disposed after a false PreReturn")
	}
}

func TestThreadLocalIsolatesKeys(t *testing.T) {
	tl := NewThreadLocal(func() *fakeDisposable { return &fakeDisposable{} })
	a := tl.Rent("a")
	b := tl.Rent("b")
	if a == b {
		t.Error("distinct keys should not share a slot")
	}
}
