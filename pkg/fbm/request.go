package fbm

import (
	"context"
	"sync"
)

// Request is a reusable message builder: it owns an accumulator buffer
// sized to the negotiated request-buffer-size, assembles outgoing request
// bytes, and — once sent — holds a one-shot response-ready signal and the
// raw bytes of the response once the receive loop delivers them.
//
// A Request enqueued in a client's active-request table is shared between
// the sending goroutine and the receive loop; its accumulator is not
// thread-safe, and callers must not mutate header/body bytes once Send or
// StreamData has been called, until the response arrives or the operation
// fails.
type Request struct {
	MessageId int32

	acc *Accumulator

	mu       sync.Mutex
	ready    chan struct{}
	done     bool
	respData []byte
	respErr  error
}

// NewRequest wraps buf as the accumulator of a new Request. The Request
// has no MessageId until [Request.Reset] assigns one (typically from a
// per-client counter); Reset does not validate the id.
func NewRequest(buf []byte) *Request {
	return &Request{acc: NewAccumulator(buf), ready: make(chan struct{})}
}

// Reset zeroes the accumulator cursor, assigns id, rewrites the MessageId
// header as the first line, and clears the response signal. It is
// idempotent: two consecutive resets leave the Request in the same state.
func (r *Request) Reset(id int32) error {
	r.MessageId = id
	r.acc.Reset()
	if err := WriteMessageIdHeader(r.acc, id); err != nil {
		return err
	}

	r.mu.Lock()
	r.ready = make(chan struct{})
	r.done = false
	r.respData = nil
	r.respErr = nil
	r.mu.Unlock()

	return nil
}

// WriteHeader appends one additional header line.
func (r *Request) WriteHeader(command HeaderCommand, value string) error {
	return WriteHeader(r.acc, command, value)
}

// WriteBody writes the ContentType header, end-of-headers, and payload. It
// must be the last call made to this Request before Send/StreamData.
func (r *Request) WriteBody(contentType byte, payload []byte) error {
	return WriteBody(r.acc, contentType, payload)
}

// Bytes returns the accumulated request bytes, ready to send as one
// logical message. The slice aliases the Request's storage.
func (r *Request) Bytes() []byte {
	return r.acc.Bytes()
}

// Len reports the number of accumulated bytes.
func (r *Request) Len() int {
	return r.acc.Len()
}

// Accumulator exposes the underlying accumulator, for callers that need
// to write into the request buffer directly instead of through
// WriteHeader/WriteBody.
func (r *Request) Accumulator() *Accumulator {
	return r.acc
}

// SetResponse stores the raw response bytes and wakes the waiter. Calling
// it more than once is a no-op after the first: it is the receive loop's
// counterpart to [Request.Reset], called from the client engine's own
// package once the response buffer has been demultiplexed to this Request.
func (r *Request) SetResponse(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.respData = data
	r.done = true
	close(r.ready)
}

// SetError is SetResponse's counterpart for cancellation/transport failure:
// it still resolves the wait, but with no payload to parse.
func (r *Request) SetError(err error) {
	r.setError(err)
}

func (r *Request) setError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.respErr = err
	r.done = true
	close(r.ready)
}

// WaitForResponse blocks until the response arrives or ctx is cancelled.
// Setting the response (or the error) is idempotent: once resolved, this
// always returns immediately with the same outcome.
func (r *Request) WaitForResponse(ctx context.Context) ([]byte, error) {
	select {
	case <-r.ready:
		r.mu.Lock()
		data, err := r.respData, r.respErr
		r.mu.Unlock()
		return data, err
	case <-ctx.Done():
		r.setError(Cancellation("WaitForResponse", ctx.Err()))
		return nil, ctx.Err()
	}
}
