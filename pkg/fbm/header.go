package fbm

// HeaderCommand is a single-byte header-line discriminator. Byte value 0
// is never valid on the wire. End of headers is marked by a bare
// terminator where a command byte is expected, not by any command value.
type HeaderCommand byte

const (
	// HeaderReserved is never a valid command byte.
	HeaderReserved HeaderCommand = 0x00
	// HeaderMessageId is the mandatory first header of every message.
	HeaderMessageId HeaderCommand = 0x01
	// HeaderContentType announces how the payload body should be interpreted.
	HeaderContentType HeaderCommand = 0x02
	// HeaderStatus carries an application-defined response status.
	HeaderStatus HeaderCommand = 0x03
)

// Content-type tokens used by the literal scenarios in the spec. The byte
// value is otherwise opaque and application-defined; FBM never inspects it.
const (
	ContentTypeBinary byte = 0x01
	ContentTypeText   byte = 0x02
)

// terminator is the two-byte line separator used everywhere a line ends.
var terminator = [2]byte{0xFF, 0xF1}

// messageIdLineLen is the fixed length of the MessageId header line:
// 1 command byte + 4 big-endian int32 bytes + 2 terminator bytes.
const messageIdLineLen = 1 + 4 + len(terminator)

// HeaderEntry is a weak (offset, length) reference into a [HeaderBuffer],
// valid only for as long as the buffer that produced it is alive.
type HeaderEntry struct {
	Command HeaderCommand
	Offset  int
	Length  int
}

// HeaderBuffer is a single contiguous byte region reinterpreted as UTF-8
// characters, holding every decoded header value of one message. It hands
// out (offset, length) slices rather than copies.
type HeaderBuffer struct {
	buf []byte
	len int
}

// NewHeaderBuffer allocates a header buffer with the given fixed capacity.
func NewHeaderBuffer(capacity int) *HeaderBuffer {
	return &HeaderBuffer{buf: make([]byte, capacity)}
}

// Reset rewinds the buffer to empty without reallocating.
func (h *HeaderBuffer) Reset() {
	h.len = 0
}

// Cap returns the buffer's fixed capacity.
func (h *HeaderBuffer) Cap() int {
	return len(h.buf)
}

// Len returns the number of bytes currently committed.
func (h *HeaderBuffer) Len() int {
	return h.len
}

// append copies value into the buffer's free space and returns the entry
// describing where it landed. ok is false if there is insufficient room;
// in that case nothing is written.
func (h *HeaderBuffer) append(cmd HeaderCommand, value []byte) (HeaderEntry, bool) {
	if len(h.buf)-h.len < len(value) {
		return HeaderEntry{}, false
	}
	off := h.len
	copy(h.buf[off:], value)
	h.len += len(value)
	return HeaderEntry{Command: cmd, Offset: off, Length: len(value)}, true
}

// Value returns the slice described by e. The returned slice aliases the
// header buffer's storage and must not be used after the buffer is reset
// or returned to a pool.
func (h *HeaderBuffer) Value(e HeaderEntry) []byte {
	return h.buf[e.Offset : e.Offset+e.Length]
}
