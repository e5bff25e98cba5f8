package server

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/vnuge/fbm/internal/logctx"
	"github.com/vnuge/fbm/pkg/fbm"
	"github.com/vnuge/fbm/pkg/pool"
	"github.com/vnuge/fbm/pkg/transport"
)

// State is a session's position in the Upgraded -> Listening ->
// {Closing|Errored} -> Closed state machine.
type State int32

const (
	StateUpgraded State = iota
	StateListening
	StateClosing
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUpgraded:
		return "upgraded"
	case StateListening:
		return "listening"
	case StateClosing:
		return "closing"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Params sizes the buffers a session allocates: one receive buffer per
// logical incoming message, one listener-context pool entry per
// concurrently dispatched request.
type Params struct {
	// ReceiveBufferSize is a hint for the initial capacity of each rented
	// listener context's request buffer; it grows to fit larger messages.
	ReceiveBufferSize int
	// ResponseBufferSize sizes each listener context's response accumulator.
	ResponseBufferSize int
	// MaxHeaderBufferSize bounds the header buffer of each listener context.
	MaxHeaderBufferSize int
	// MaxMessageSize bounds the total size of one accepted incoming logical
	// message; an oversize or empty message closes the session.
	MaxMessageSize int
	// ContextPoolQuota bounds how many spent listener contexts a session
	// keeps cached for reuse. It does not bound how many requests may be
	// dispatched concurrently: the pool constructs a fresh context whenever
	// its cache is empty, so the session sets no concurrency limit.
	ContextPoolQuota int
}

// Handler processes one dispatched request. It runs on its own goroutine,
// so the receive loop is never blocked by handler work; ctx is cancelled
// when the session's Listen call returns. The handler writes its response
// into lc before returning; Listen serializes and sends it afterwards.
type Handler func(ctx context.Context, lc *ListenerContext)

// ControlHandler processes a received control-frame payload (MessageId
// fbm.ControlMessageId), the reserved out-of-band per-connection channel.
// It runs on the receive loop's goroutine and must not block; sending a
// control response (if any) is the handler's own responsibility, done by
// rendering the wire bytes itself and calling Session.SendControl.
type ControlHandler func(payload []byte)

// Session is one FBM server connection's Server Listener Engine instance:
// a per-connection receive loop, a listener-context pool, and a send
// mutex shared by every dispatched handler's response.
type Session struct {
	id      string
	channel transport.Channel
	params  Params

	pool *pool.Pool[*ListenerContext]

	// sendSem serializes response transmission the same way fbmclient's
	// send mutex does: a 1-buffered channel instead of a sync.Mutex, so a
	// cancelled acquire never leaves a lock nobody will ever release.
	sendSem chan struct{}

	onControl ControlHandler

	state       atomic.Int32
	closedOnErr atomic.Bool
}

// NewSession wraps an already-upgraded channel as a StateUpgraded session,
// ready for Listen. The session gets its own short random id, used to
// correlate log lines for this connection's lifetime.
func NewSession(channel transport.Channel, params Params) *Session {
	s := &Session{
		id:      shortuuid.New(),
		channel: channel,
		params:  params,
		sendSem: make(chan struct{}, 1),
	}
	s.sendSem <- struct{}{}
	s.pool = pool.New(params.ContextPoolQuota, func() *ListenerContext {
		return newListenerContext(params.ReceiveBufferSize, params.ResponseBufferSize, params.MaxHeaderBufferSize)
	})
	return s
}

// SendControl emits a pre-rendered control-frame message (MessageId
// fbm.ControlMessageId, built with fbm.WriteMessageIdHeader/WriteHeader/
// WriteBody the same as any other message) under the same send mutex
// dispatched responses use.
func (s *Session) SendControl(ctx context.Context, data []byte) error {
	return s.sendLocked(ctx, data)
}

// Listen runs the session to completion: it drives the receive loop until
// the peer closes the connection, a transport error occurs, or an oversize
// or empty message arrives, dispatching each well-formed request to
// handler on its own goroutine via an errgroup scoped to the session's
// lifetime, and returns once every dispatched handler has finished. Listen
// transitions the session through StateListening and into
// StateClosing/StateErrored before returning, and leaves it at StateClosed
// once every dispatched handler has drained; State and ID may be read
// concurrently from another goroutine while Listen is running. onControl
// (may be nil) routes incoming control-frame payloads separately from
// dispatched requests.
func (s *Session) Listen(ctx context.Context, handler Handler, onControl ControlHandler) error {
	s.onControl = onControl
	s.state.Store(int32(StateListening))

	logger := logctx.From(ctx).With().Str("session_id", s.id).Logger()
	ctx = logctx.WithLogger(ctx, logger)
	eg, egCtx := errgroup.WithContext(ctx)

	var loopErr error
loop:
	for {
		data, err := s.receiveOneMessage(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				logger.Debug().Msg("FBM session closed by peer")
				s.state.Store(int32(StateClosing))
			} else {
				logger.Warn().Err(err).Msg("FBM session transport error")
				s.state.Store(int32(StateErrored))
				s.closedOnErr.Store(true)
				loopErr = err
			}
			break loop
		}
		if data == nil {
			logger.Warn().Msg("FBM session closing connection for oversize or empty message")
			s.state.Store(int32(StateClosing))
			s.channel.Close(transport.StatusMessageTooBig, "message too large")
			break loop
		}

		line, next := fbm.ReadLine(data, 0)
		messageId := fbm.GetMessageId(line)
		switch {
		case messageId == fbm.ControlMessageId:
			if s.onControl != nil {
				// Skip the header lines; the handler receives only the payload.
				payloadStart := next
				for {
					line, after := fbm.ReadLine(data, payloadStart)
					payloadStart = after
					if line == nil {
						break
					}
				}
				s.onControl(data[payloadStart:])
			}
			continue
		case messageId <= 0:
			logger.Debug().Int32("message_id", messageId).Msg("dropping request with invalid or reserved MessageId")
			continue
		}

		lc := s.pool.Rent()
		lc.reset(messageId, data, next)

		eg.Go(func() error {
			defer s.pool.Return(lc)
			handler(egCtx, lc)
			if err := s.sendLocked(egCtx, lc.ResponseBytes()); err != nil {
				logger.Warn().Err(err).Int32("message_id", messageId).Msg("failed to send dispatched response")
			}
			return nil
		})
	}

	eg.Wait() //nolint:errcheck // handler goroutines never return a non-nil error; only used for egCtx cancellation scoping
	s.state.Store(int32(StateClosed))

	if loopErr != nil {
		return fbm.Transport("Listen", loopErr)
	}
	return nil
}

// receiveOneMessage reassembles one logical message from one or more
// transport frames, the same way the client's receive loop does. A nil,
// nil return means the message was empty or exceeded MaxMessageSize; the
// caller closes the session in response.
func (s *Session) receiveOneMessage(ctx context.Context) ([]byte, error) {
	first, err := s.channel.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if len(first.Data) < 4 {
		return nil, nil
	}

	buf := append([]byte(nil), first.Data...)
	oversize := len(buf) > s.params.MaxMessageSize

	final := first.Final
	for !final {
		frame, err := s.channel.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if !oversize {
			buf = append(buf, frame.Data...)
			oversize = len(buf) > s.params.MaxMessageSize
		}
		final = frame.Final
	}

	if oversize {
		return nil, nil
	}
	return buf, nil
}

// sendLocked emits data as one logical WebSocket message under the send
// mutex, honoring ctx cancellation while waiting for it.
func (s *Session) sendLocked(ctx context.Context, data []byte) error {
	select {
	case <-s.sendSem:
	case <-ctx.Done():
		return fbm.Cancellation("Listen", ctx.Err())
	}
	defer func() { s.sendSem <- struct{}{} }()

	if err := s.channel.SendBinary(ctx, data, true); err != nil {
		return fbm.Transport("Listen", err)
	}
	return nil
}

// ID returns the session's short, random identifier, assigned by
// NewSession and used to correlate log lines from one connection's lifetime.
func (s *Session) ID() string {
	return s.id
}

// State reports the session's current position in the state machine.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ClosedOnError reports whether the session ended due to a transport
// error rather than a graceful close initiated by the peer.
func (s *Session) ClosedOnError() bool {
	return s.closedOnErr.Load()
}
