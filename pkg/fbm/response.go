package fbm

// Response parses headers from a received message buffer into
// (command, value-slice) pairs and exposes the payload tail. Its header
// slices are weak references into the [HeaderBuffer] supplied to Parse;
// they must not be used after that buffer is reset or returned to a pool.
type Response struct {
	messageId int32
	headerBuf *HeaderBuffer
	entries   []HeaderEntry
	payload   []byte
	status    ParseStatus
}

// Parse consumes the leading MessageId line of buf (already extracted by
// the caller's receive loop via [ReadLine]/[GetMessageId]), parses the
// remaining header lines into headerBuf, and exposes the remainder of buf
// as the payload. Parsing the same buffer twice yields structurally equal
// header lists, since ParseHeaders is a pure function of its inputs.
func (r *Response) Parse(messageId int32, buf []byte, headersStart int, headerBuf *HeaderBuffer) {
	r.messageId = messageId
	r.headerBuf = headerBuf

	entries, payloadStart, status := ParseHeaders(buf, headersStart, headerBuf)
	r.entries = entries
	r.status = status
	if payloadStart <= len(buf) {
		r.payload = buf[payloadStart:]
	} else {
		r.payload = nil
	}
}

// MessageId returns the id this response correlates to.
func (r *Response) MessageId() int32 {
	return r.messageId
}

// Status reports whether header parsing hit a resource limit.
func (r *Response) Status() ParseStatus {
	return r.status
}

// Header returns the value of the first header line with the given
// command, and whether one was found.
func (r *Response) Header(command HeaderCommand) ([]byte, bool) {
	for _, e := range r.entries {
		if e.Command == command {
			return r.headerBuf.Value(e), true
		}
	}
	return nil, false
}

// Headers returns every (command, value) pair in parse order.
func (r *Response) Headers() []HeaderEntry {
	return r.entries
}

// Payload returns the opaque body bytes following the header section.
func (r *Response) Payload() []byte {
	return r.payload
}
