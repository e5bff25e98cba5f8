package fbm

import "fmt"

// Accumulator is a logical sliding window over a fixed-size byte buffer.
// Bytes already written form the accumulated prefix; everything after it
// is remaining, writable capacity. Some accumulators additionally reserve
// a small prefix region up front (e.g. the 5-byte MessageId line) that is
// back-filled once its contents are known, instead of being written in a
// single pass.
type Accumulator struct {
	buf      []byte
	acc      int // bytes committed, including any reserved-but-unfilled prefix
	reserved int // bytes of acc handed out by Reserve since the last Reset
}

// NewAccumulator wraps buf (typically rented from [fbm/memory.Manager])
// as an empty accumulator.
func NewAccumulator(buf []byte) *Accumulator {
	return &Accumulator{buf: buf}
}

// Reset rewinds the accumulator to empty. The underlying buffer is reused.
func (a *Accumulator) Reset() {
	a.acc = 0
	a.reserved = 0
}

// Len returns the number of bytes currently accumulated (including any
// still-reserved, not-yet-backfilled prefix).
func (a *Accumulator) Len() int {
	return a.acc
}

// Cap returns the fixed capacity of the underlying buffer.
func (a *Accumulator) Cap() int {
	return len(a.buf)
}

// Remaining returns how many more bytes can be written before the
// underlying buffer is exhausted.
func (a *Accumulator) Remaining() int {
	return len(a.buf) - a.acc
}

// Bytes returns the accumulated prefix. The returned slice aliases the
// accumulator's storage and is invalidated by the next Write/Reserve/Advance.
func (a *Accumulator) Bytes() []byte {
	return a.buf[:a.acc]
}

// Write appends p to the accumulated prefix, failing if there is
// insufficient remaining capacity.
func (a *Accumulator) Write(p []byte) error {
	if len(p) > a.Remaining() {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferFull, len(p), a.Remaining())
	}
	copy(a.buf[a.acc:], p)
	a.acc += len(p)
	return nil
}

// WriteByte appends a single byte.
func (a *Accumulator) WriteByte(b byte) error {
	return a.Write([]byte{b})
}

// Reserve commits n bytes of zeroed, placeholder space without requiring
// their final content to be known yet. A later call to Backfill overwrites
// exactly that span. Reserve fails if there is insufficient capacity.
func (a *Accumulator) Reserve(n int) (offset int, err error) {
	if n > a.Remaining() {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferFull, n, a.Remaining())
	}
	offset = a.acc
	a.acc += n
	a.reserved += n
	clear(a.buf[offset:a.acc])
	return offset, nil
}

// Backfill overwrites len(p) bytes at offset, normally a span returned by
// Reserve. It panics if [offset, offset+len(p)) falls outside the
// accumulated prefix; it does not check that the span was reserved. An
// out-of-range span is a programmer error, not a runtime condition to
// recover from.
func (a *Accumulator) Backfill(offset int, p []byte) {
	if offset < 0 || offset+len(p) > a.acc {
		panic("fbm: Backfill out of accumulated range")
	}
	copy(a.buf[offset:offset+len(p)], p)
}

// Advance moves the accumulated-prefix boundary forward by n bytes without
// copying anything, for callers that wrote directly into the tail returned
// by Tail. It fails if n exceeds the remaining capacity.
func (a *Accumulator) Advance(n int) error {
	if n > a.Remaining() {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferFull, n, a.Remaining())
	}
	a.acc += n
	return nil
}

// Tail returns the writable suffix of the underlying buffer, for callers
// that want to write directly (e.g. io.ReadFull into it) and then call
// Advance once they know how many bytes landed.
func (a *Accumulator) Tail() []byte {
	return a.buf[a.acc:]
}
