package transport

import (
	"context"
	"encoding/binary"
	"unicode/utf8"
)

// CloseStatus is a WebSocket close code, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.
type CloseStatus uint16

const (
	StatusNormalClosure   CloseStatus = 1000
	StatusGoingAway       CloseStatus = 1001
	StatusProtocolError   CloseStatus = 1002
	StatusUnsupportedData CloseStatus = 1003
	StatusInvalidData     CloseStatus = 1007
	StatusPolicyViolation CloseStatus = 1008
	StatusMessageTooBig   CloseStatus = 1009
	StatusInternalError   CloseStatus = 1011
)

// Frame is one fragment of an incoming logical message.
type Frame struct {
	Data  []byte
	Final bool
}

// Channel is the abstract bidirectional message-frame channel FBM's Client
// Engine and Server Listener Engine both depend on. Implementations must
// serialize their own writes internally only to the extent required to
// produce a single well-formed WebSocket frame per SendBinary call; FBM
// itself is responsible for holding its own send mutex across the several
// SendBinary calls that make up one logical message, so frames from
// different logical messages are never interleaved on the wire.
type Channel interface {
	// SendBinary sends one binary frame. final sets the FIN bit.
	SendBinary(ctx context.Context, data []byte, final bool) error
	// Recv blocks for the next frame of the current (or next) incoming
	// logical message. It returns [ErrClosed] once a Close frame has been
	// processed.
	Recv(ctx context.Context) (Frame, error)
	// Close performs (or responds to) the WebSocket closing handshake.
	Close(status CloseStatus, reason string)
}

// appendCloseReason builds a WebSocket close payload: a 2-byte status
// code followed by an optional UTF-8 reason, truncated to fit a control
// frame.
func appendCloseReason(status CloseStatus, reason string) []byte {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	if !utf8.ValidString(reason) {
		reason = ""
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(status))
	copy(buf[2:], reason)
	return buf
}
