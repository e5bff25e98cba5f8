package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Recv once the channel has finished a clean
// WebSocket closing handshake and no more frames will arrive.
var ErrClosed = errors.New("transport: channel closed")

// ErrConnFailed is returned by Recv, wrapping the underlying cause, when
// the connection ends because of a genuine transport failure (a read
// error, a protocol violation) rather than a completed closing handshake.
// Callers distinguish the two outcomes with errors.Is against ErrClosed
// vs. ErrConnFailed.
var ErrConnFailed = errors.New("transport: connection failed")

// Conn is the shared implementation of [Channel] for both connection
// roles. The client role masks outgoing frames and expects unmasked
// incoming frames; the server role is the mirror image, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.3.
type Conn struct {
	logger   zerolog.Logger
	rw       *bufio.ReadWriter
	closer   io.Closer
	isClient bool

	writeMu sync.Mutex
	midSend bool

	frames chan Frame

	// closeErr is set by readLoop exactly once, before it closes frames,
	// when the loop ends for a reason other than a clean closing
	// handshake. The channel close establishes happens-before against any
	// Recv that observes frames as closed, so no further synchronization
	// is needed to read it.
	closeErr error

	closeSent atomic.Bool
	closeRecv atomic.Bool
}

func newConn(rw *bufio.ReadWriter, closer io.Closer, isClient bool, logger zerolog.Logger) *Conn {
	c := &Conn{
		logger:   logger,
		rw:       rw,
		closer:   closer,
		isClient: isClient,
		frames:   make(chan Frame),
	}
	go c.readLoop()
	return c
}

// SendBinary implements [Channel]. The opcode (Binary vs. Continuation) is
// tracked internally across calls that make up one fragmented message.
func (c *Conn) SendBinary(_ context.Context, data []byte, final bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	op := opcodeBinary
	if c.midSend {
		op = opcodeContinuation
	}
	c.midSend = !final

	if err := writeFrame(c.rw.Writer, op, data, final, c.isClient); err != nil {
		return fmt.Errorf("send binary frame: %w", err)
	}
	return nil
}

// Recv implements [Channel].
func (c *Conn) Recv(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			if c.closeErr != nil {
				return Frame{}, fmt.Errorf("%w: %w", ErrConnFailed, c.closeErr)
			}
			return Frame{}, ErrClosed
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close implements [Channel].
func (c *Conn) Close(status CloseStatus, reason string) {
	c.sendClose(status, reason)
}

func (c *Conn) sendClose(status CloseStatus, reason string) {
	if !c.closeSent.CompareAndSwap(false, true) {
		return
	}

	payload := appendCloseReason(status, reason)

	c.writeMu.Lock()
	err := writeFrame(c.rw.Writer, opcodeClose, payload, true, c.isClient)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Debug().Err(err).Msg("failed to send WebSocket close frame")
	}

	if c.closeRecv.Load() {
		_ = c.closer.Close()
	}
}

func (c *Conn) readLoop() {
	defer close(c.frames)

	for {
		h, err := readFrameHeader(c.rw.Reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug().Err(err).Msg("transport read error")
				c.closeErr = err
			}
			return
		}

		if err := checkFrameHeader(h); err != nil {
			c.logger.Warn().Err(err).Msg("protocol error in incoming frame")
			c.sendClose(StatusProtocolError, err.Error())
			c.closeErr = err
			return
		}

		payload, err := c.readPayload(h)
		if err != nil {
			c.logger.Debug().Err(err).Msg("failed to read frame payload")
			c.closeErr = err
			return
		}

		switch h.opcode {
		case opcodeBinary, opcodeContinuation, opcodeText:
			c.frames <- Frame{Data: payload, Final: h.fin}
		case opcodePing:
			c.writeMu.Lock()
			err := writeFrame(c.rw.Writer, opcodePong, payload, true, c.isClient)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug().Err(err).Msg("failed to send pong")
			}
		case opcodePong:
			// No unsolicited pings are sent by either side yet.
		case opcodeClose:
			c.closeRecv.Store(true)
			c.sendClose(parseCloseStatus(payload), "")
			return
		}
	}
}

func (c *Conn) readPayload(h frameHeader) ([]byte, error) {
	if h.length == 0 {
		return nil, nil
	}
	data := make([]byte, h.length)
	if _, err := io.ReadFull(c.rw.Reader, data); err != nil {
		return nil, err
	}
	if h.masked {
		maskPayload(data, h.maskKey)
	}
	return data, nil
}

func parseCloseStatus(payload []byte) CloseStatus {
	if len(payload) < 2 {
		return StatusNormalClosure
	}
	return CloseStatus(uint16(payload[0])<<8 | uint16(payload[1]))
}
