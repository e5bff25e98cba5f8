package fbmclient

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vnuge/fbm/internal/logctx"
	"github.com/vnuge/fbm/pkg/fbm"
	"github.com/vnuge/fbm/pkg/transport"
)

// receiveLoop reads one logical message at a time from the transport,
// reassembling fragmented frames up to MaxMessageSize, and hands each
// complete message to processResponse. On exit (graceful close or
// transport error) it runs the teardown invariants: every pending
// Request's response signal is set, the active-request table is cleared,
// and ConnectionClosed fires exactly once.
func (c *Client) receiveLoop(ctx context.Context) {
	logger := logctx.From(ctx)
	defer c.teardown(logger)

	for {
		data, err := c.receiveOneMessage(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				logger.Debug().Msg("FBM connection closed")
				return
			}
			logger.Warn().Err(err).Msg("FBM transport error, closing connection")
			c.closedOnErr.Store(true)
			return
		}
		if data == nil {
			logger.Warn().Msg("dropping oversize or too-short FBM message")
			continue
		}
		c.processResponse(logger, data)
	}
}

// receiveOneMessage reassembles one logical message from one or more
// transport frames. A nil, nil return means the message was dropped
// because it exceeded MaxMessageSize or its first frame was shorter than
// 4 bytes; the loop logs it and continues.
func (c *Client) receiveOneMessage(ctx context.Context) ([]byte, error) {
	first, err := c.channel.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if len(first.Data) < 4 {
		// Too short to contain a useful header: the caller logs and
		// continues without treating it as fatal.
		return nil, nil
	}

	buf := append([]byte(nil), first.Data...)
	oversize := len(buf) > c.params.MaxMessageSize

	final := first.Final
	for !final {
		frame, err := c.channel.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if !oversize {
			buf = append(buf, frame.Data...)
			oversize = len(buf) > c.params.MaxMessageSize
		}
		final = frame.Final
	}

	if oversize {
		return nil, nil
	}
	return buf, nil
}

// processResponse extracts the MessageId, routes control frames
// separately, discards other reserved ids, and otherwise hands the buffer
// to the waiting Request.
func (c *Client) processResponse(logger zerolog.Logger, data []byte) {
	line, next := fbm.ReadLine(data, 0)
	messageId := fbm.GetMessageId(line)

	switch {
	case messageId == fbm.ControlMessageId:
		if c.onControl != nil {
			// Skip the header lines; the handler receives only the payload.
			payloadStart := next
			for {
				line, after := fbm.ReadLine(data, payloadStart)
				payloadStart = after
				if line == nil {
					break
				}
			}
			c.onControl(data[payloadStart:])
		}
	case fbm.IsReservedMessageId(messageId):
		logger.Debug().Int32("message_id", messageId).Msg("dropping response with reserved MessageId")
	default:
		v, ok := c.requests.LoadAndDelete(messageId)
		if !ok {
			logger.Debug().Int32("message_id", messageId).Msg("dropping unsolicited response")
			return
		}
		v.(*fbm.Request).SetResponse(data)
	}
}

func (c *Client) teardown(logger zerolog.Logger) {
	c.closed.Store(true)

	teardownErr := fbm.ErrConnectionClosed
	if c.closedOnErr.Load() {
		teardownErr = fbm.ErrClosedOnError
	}

	c.requests.Range(func(key, value any) bool {
		c.requests.Delete(key)
		value.(*fbm.Request).SetError(teardownErr)
		return true
	})

	c.closeOnce.Do(func() { close(c.closedSignal) })
	logger.Debug().Msg("FBM client receive loop exited")
}
