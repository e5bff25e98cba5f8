// Package server implements the FBM Server Listener Engine: the
// per-session receive loop, listener-context pool, handler dispatch, and
// response serialization.
package server

import (
	"github.com/vnuge/fbm/pkg/fbm"
)

// ListenerContext is one per concurrently dispatched request: it owns a
// request buffer, a response accumulator, and a header buffer, rented
// from a per-session pool and returned once the dispatched handler's
// response has been serialized.
type ListenerContext struct {
	reqBuf    []byte
	headerBuf *fbm.HeaderBuffer
	request   fbm.Response

	respBuf []byte
	respAcc *fbm.Accumulator
}

func newListenerContext(reqBufSize, respBufSize, headerBufSize int) *ListenerContext {
	lc := &ListenerContext{
		reqBuf:    make([]byte, reqBufSize),
		headerBuf: fbm.NewHeaderBuffer(headerBufSize),
		respBuf:   make([]byte, respBufSize),
	}
	lc.respAcc = fbm.NewAccumulator(lc.respBuf)
	return lc
}

// reset copies data into lc's request buffer and parses its headers,
// given the MessageId already extracted by the caller and the offset
// where the header section begins (both as returned by
// fbm.ReadLine/fbm.GetMessageId on the original buffer). It also resets
// the response accumulator for the handler to write into.
func (lc *ListenerContext) reset(messageId int32, data []byte, headersStart int) {
	if cap(lc.reqBuf) < len(data) {
		lc.reqBuf = make([]byte, len(data))
	}
	lc.reqBuf = lc.reqBuf[:len(data)]
	copy(lc.reqBuf, data)

	lc.headerBuf.Reset()
	lc.request.Parse(messageId, lc.reqBuf, headersStart, lc.headerBuf)

	lc.respAcc.Reset()
}

// Request exposes the parsed incoming message: its headers and payload.
// It is read-only for the duration of the dispatched handler call.
func (lc *ListenerContext) Request() *fbm.Response {
	return &lc.request
}

// MessageId is the id the response must be correlated to; WriteResponseMessageId
// writes it into the response, so handlers rarely need this directly.
func (lc *ListenerContext) MessageId() int32 {
	return lc.request.MessageId()
}

// WriteResponseMessageId starts the response accumulator with the
// mandatory MessageId line, correlating it to the request this context
// was dispatched for. Handlers that build their own response call this
// first.
func (lc *ListenerContext) WriteResponseMessageId() error {
	return fbm.WriteMessageIdHeader(lc.respAcc, lc.request.MessageId())
}

// WriteResponseHeader appends one additional response header line.
func (lc *ListenerContext) WriteResponseHeader(command fbm.HeaderCommand, value string) error {
	return fbm.WriteHeader(lc.respAcc, command, value)
}

// WriteResponseBody writes the ContentType header, end-of-headers, and
// payload. It must be the last call made before the handler returns.
func (lc *ListenerContext) WriteResponseBody(contentType byte, payload []byte) error {
	return fbm.WriteBody(lc.respAcc, contentType, payload)
}

// ResponseBytes returns the accumulated response bytes, ready to send as
// one logical WebSocket message.
func (lc *ListenerContext) ResponseBytes() []byte {
	return lc.respAcc.Bytes()
}
