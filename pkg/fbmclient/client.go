// Package fbmclient implements the FBM Client Engine: connection setup,
// the active-request table, the send mutex, and the background receive
// loop that demultiplexes incoming frames to waiting requests.
package fbmclient

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vnuge/fbm/internal/logctx"
	"github.com/vnuge/fbm/pkg/fbm"
	"github.com/vnuge/fbm/pkg/pool"
	"github.com/vnuge/fbm/pkg/transport"
)

// Params are the buffer-size parameters negotiated with the server at
// connect time (the "b", "hb", "mx" query parameters).
type Params struct {
	// ReceiveBufferSize is advertised to the server as the "b" negotiation
	// parameter. The receive loop does not use it: it grows a fresh buffer
	// for each incoming logical message, up to MaxMessageSize.
	ReceiveBufferSize int
	// RequestBufferSize sizes each Request's accumulator.
	RequestBufferSize int
	// MaxHeaderBufferSize bounds the header buffer handed to each Response.
	MaxHeaderBufferSize int
	// MaxMessageSize bounds the total size of one accepted incoming
	// logical message; larger messages are dropped.
	MaxMessageSize int
	// RequestPoolQuota bounds how many spent Requests the client keeps
	// cached for reuse.
	RequestPoolQuota int
}

// ControlHandler processes a received control-frame payload (MessageId
// fbm.ControlMessageId). It runs on the receive loop's goroutine and must
// not block.
type ControlHandler func(payload []byte)

// Client is the FBM Client Engine: it owns the active-request table,
// serializes frame transmission with a send mutex, and runs a background
// receive loop that demultiplexes responses to the Request that is
// awaiting each one.
type Client struct {
	params  Params
	channel transport.Channel

	requests sync.Map // int32 -> *fbm.Request

	// sendSem is a 1-buffered channel acting as a cancelable mutex: holding
	// the token means the holder may emit frames on channel. A plain
	// sync.Mutex cannot honor ctx cancellation during Lock without leaking
	// the lock to whichever goroutine eventually succeeds in acquiring it.
	sendSem chan struct{}

	nextID atomic.Int32

	pool *pool.Pool[*fbm.Request]

	closed       atomic.Bool
	closedOnErr  atomic.Bool
	closeOnce    sync.Once
	closedSignal chan struct{}

	onControl ControlHandler
}

// Connect dials wsURL, appending the negotiation query parameters derived
// from params, and starts the background receive loop. The returned
// Client is ready for Send/StreamData.
func Connect(ctx context.Context, wsURL string, params Params, onControl ControlHandler, opts ...transport.DialOpt) (*Client, error) {
	negotiated := transport.NegotiationParams{
		ReceiveBufferSize:   params.ReceiveBufferSize,
		MaxHeaderBufferSize: params.MaxHeaderBufferSize,
		MaxMessageSize:      params.MaxMessageSize,
	}

	channel, err := transport.Dial(ctx, wsURL, negotiated, opts...)
	if err != nil {
		return nil, fmt.Errorf("fbmclient: connect: %w", err)
	}

	c := &Client{
		params:       params,
		channel:      channel,
		closedSignal: make(chan struct{}),
		onControl:    onControl,
		sendSem:      make(chan struct{}, 1),
	}
	c.sendSem <- struct{}{}
	c.pool = pool.New(params.RequestPoolQuota, func() *fbm.Request {
		return fbm.NewRequest(make([]byte, params.RequestBufferSize))
	})

	go c.receiveLoop(logctx.WithLogger(ctx, logctx.From(ctx)))

	return c, nil
}

// RentRequest returns a Request from the pool (or a freshly constructed
// one), reset with a newly assigned, unique MessageId.
func (c *Client) RentRequest() (*fbm.Request, error) {
	req := c.pool.Rent()
	id := c.nextMessageId()
	if err := req.Reset(id); err != nil {
		c.pool.Return(req)
		return nil, err
	}
	return req, nil
}

// ReturnRequest releases req back to the pool once its response has been
// fully consumed by the caller.
func (c *Client) ReturnRequest(req *fbm.Request) {
	c.pool.Return(req)
}

// nextMessageId assigns a positive, nonzero, non-reserved MessageId.
func (c *Client) nextMessageId() int32 {
	for {
		id := c.nextID.Add(1)
		if id > 0 {
			return id
		}
		// Wrapped into negative territory: reset the counter. Collisions
		// across a 31-bit wraparound are vanishingly unlikely for any
		// realistic number of in-flight requests, but guard against id
		// landing on a reserved value (0, or <0) by retrying.
		c.nextID.Store(0)
	}
}

// Send inserts req into the active-request table, emits it as one
// logical WebSocket message under the send mutex, and waits for the
// correlated response.
func (c *Client) Send(ctx context.Context, req *fbm.Request) (*fbm.Response, error) {
	if req.Len() < 5 {
		return nil, fbm.InvalidRequest("Send")
	}
	if c.closed.Load() {
		return nil, fbm.Transport("Send", fbm.ErrConnectionClosed)
	}

	if _, loaded := c.requests.LoadOrStore(req.MessageId, req); loaded {
		return nil, fbm.InvalidRequest("Send")
	}

	if err := c.sendLocked(ctx, req.Bytes(), true); err != nil {
		c.requests.Delete(req.MessageId)
		req.SetError(err)
		return nil, err
	}

	data, err := req.WaitForResponse(ctx)
	if err != nil {
		c.requests.Delete(req.MessageId)
		return nil, err
	}

	return parseResponse(req.MessageId, data, c.params.MaxHeaderBufferSize)
}

// StreamData sends req's header frame (end-of-message = false), then
// streams payload from r in chunks clamped to [RequestBufferSize,
// MaxMessageSize], terminating the logical message deterministically.
//
// Open question resolution: a final empty frame with end-of-message = true
// is always sent when the last chunk filled the streaming buffer exactly
// (bytesRead == bufferSize), so the logical message is never left open.
func (c *Client) StreamData(ctx context.Context, req *fbm.Request, r io.Reader, contentType byte) (*fbm.Response, error) {
	if req.Len() < 5 {
		return nil, fbm.InvalidRequest("StreamData")
	}
	if c.closed.Load() {
		return nil, fbm.Transport("StreamData", fbm.ErrConnectionClosed)
	}
	if err := req.WriteBody(contentType, nil); err != nil {
		return nil, err
	}

	if _, loaded := c.requests.LoadOrStore(req.MessageId, req); loaded {
		return nil, fbm.InvalidRequest("StreamData")
	}

	if err := c.streamLocked(ctx, req, r); err != nil {
		c.requests.Delete(req.MessageId)
		req.SetError(err)
		return nil, err
	}

	data, err := req.WaitForResponse(ctx)
	if err != nil {
		c.requests.Delete(req.MessageId)
		return nil, err
	}

	return parseResponse(req.MessageId, data, c.params.MaxHeaderBufferSize)
}

func (c *Client) streamLocked(ctx context.Context, req *fbm.Request, r io.Reader) error {
	if err := c.acquireSend(ctx, "StreamData"); err != nil {
		return err
	}
	defer c.releaseSend()

	if err := c.channel.SendBinary(ctx, req.Bytes(), false); err != nil {
		return fbm.Transport("StreamData", err)
	}

	bufSize := clamp(c.params.RequestBufferSize, c.params.MaxMessageSize)
	chunk := make([]byte, bufSize)
	sentFinal := false

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			final := n < bufSize
			if err := c.channel.SendBinary(ctx, chunk[:n], final); err != nil {
				return fbm.Transport("StreamData", err)
			}
			sentFinal = final
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fbm.Transport("StreamData", err)
		}
		if n == 0 {
			break
		}
	}

	if !sentFinal {
		if err := c.channel.SendBinary(ctx, nil, true); err != nil {
			return fbm.Transport("StreamData", err)
		}
	}
	return nil
}

func clamp(size, max int) int {
	if size > max {
		return max
	}
	return size
}

// sendLocked sends data as one logical WebSocket message, under the send
// mutex, honoring ctx cancellation while waiting for the mutex.
func (c *Client) sendLocked(ctx context.Context, data []byte, final bool) error {
	if err := c.acquireSend(ctx, "Send"); err != nil {
		return err
	}
	defer c.releaseSend()

	if err := c.channel.SendBinary(ctx, data, final); err != nil {
		return fbm.Transport("Send", err)
	}
	return nil
}

// acquireSend takes the send token, honoring ctx cancellation. Unlike
// sync.Mutex.Lock, a cancelled acquire here never leaves the token stuck
// with a goroutine nobody is waiting on: the token either is taken by this
// call, or remains in the channel for the next acquirer.
func (c *Client) acquireSend(ctx context.Context, op string) error {
	select {
	case <-c.sendSem:
		return nil
	case <-ctx.Done():
		return fbm.Cancellation(op, ctx.Err())
	}
}

func (c *Client) releaseSend() {
	c.sendSem <- struct{}{}
}

// Disconnect initiates a clean WebSocket close with NormalClosure (spec
// §4.5 "Disconnect").
func (c *Client) Disconnect() {
	c.channel.Close(transport.StatusNormalClosure, "")
}

// ConnectionClosed returns a channel that is closed exactly once, when the
// receive loop exits, whether after a graceful close or a transport error
// (see ClosedOnError).
func (c *Client) ConnectionClosed() <-chan struct{} {
	return c.closedSignal
}

// ClosedOnError reports whether the connection ended due to a transport
// error rather than a graceful close.
func (c *Client) ClosedOnError() bool {
	return c.closedOnErr.Load()
}

func parseResponse(messageId int32, data []byte, headerBufferSize int) (*fbm.Response, error) {
	headerBuf := fbm.NewHeaderBuffer(headerBufferSize)
	line, next := fbm.ReadLine(data, 0)
	if fbm.GetMessageId(line) != messageId {
		return nil, fbm.Protocol("parseResponse", fbm.ErrInvalidHeaderRead)
	}
	resp := &fbm.Response{}
	resp.Parse(messageId, data, next, headerBuf)
	return resp, nil
}
