package fbm

import (
	"bytes"
	"encoding/binary"
)

// ParseStatus is a bitset describing how header parsing went, so a message
// can still be delivered with partial headers rather than being dropped.
type ParseStatus uint8

const (
	// ParseOK: every header line decoded cleanly.
	ParseOK ParseStatus = 0
	// ParseHeaderOutOfMem: a header value's decoded bytes did not fit in
	// the header buffer. Parsing stopped; preceding headers are intact.
	ParseHeaderOutOfMem ParseStatus = 1 << iota
	// ParseInvalidHeaderRead: a nonempty line decoded to zero bytes.
	ParseInvalidHeaderRead
)

func (s ParseStatus) HeaderOutOfMem() bool    { return s&ParseHeaderOutOfMem != 0 }
func (s ParseStatus) InvalidHeaderRead() bool { return s&ParseInvalidHeaderRead != 0 }

// WriteMessageIdHeader appends the mandatory first line of a message: the
// HeaderMessageId command byte, the big-endian int32 id, and the terminator.
func WriteMessageIdHeader(a *Accumulator, id int32) error {
	var line [messageIdLineLen]byte
	line[0] = byte(HeaderMessageId)
	binary.BigEndian.PutUint32(line[1:5], uint32(id)) //nolint:gosec // intentional reinterpret
	line[5], line[6] = terminator[0], terminator[1]
	return a.Write(line[:])
}

// WriteHeader appends one header line: the command byte, the UTF-8 bytes of
// value, and the terminator. It rejects command == HeaderReserved.
func WriteHeader(a *Accumulator, command HeaderCommand, value string) error {
	if command == HeaderReserved {
		return Protocol("WriteHeader", ErrInvalidRequest)
	}
	if err := a.WriteByte(byte(command)); err != nil {
		return err
	}
	if err := a.Write([]byte(value)); err != nil {
		return err
	}
	return a.Write(terminator[:])
}

// writeEndOfHeaders appends the bare terminator that marks end-of-headers.
func writeEndOfHeaders(a *Accumulator) error {
	return a.Write(terminator[:])
}

// WriteBody writes the ContentType header, the end-of-headers terminator,
// and then copies payload verbatim. This is one-shot: no more headers may
// be written to the accumulator afterwards.
func WriteBody(a *Accumulator, contentType byte, payload []byte) error {
	if err := WriteHeader(a, HeaderContentType, string([]byte{contentType})); err != nil {
		return err
	}
	if err := writeEndOfHeaders(a); err != nil {
		return err
	}
	return a.Write(payload)
}

// ReadLine returns the next line in buf starting at pos, up to (but
// excluding) the next terminator, along with the position just past that
// terminator. If the terminator cannot be found, or is found at pos itself
// (an empty line), it returns a nil slice; callers distinguish "not found"
// from "empty line" by checking whether the returned position advanced.
func ReadLine(buf []byte, pos int) (line []byte, next int) {
	if pos >= len(buf) {
		return nil, pos
	}
	idx := bytes.Index(buf[pos:], terminator[:])
	if idx < 0 {
		return nil, pos
	}
	end := pos + idx
	next = end + len(terminator)
	if end == pos {
		return nil, next // empty line: end-of-headers marker
	}
	return buf[pos:end], next
}

// GetMessageId extracts the MessageId from an already-read line (as
// returned by ReadLine). It returns -1 if the line is too short to contain
// a MessageId header, and -2 if the line's command byte is not
// HeaderMessageId.
func GetMessageId(line []byte) int32 {
	if len(line) < 5 {
		return -1
	}
	if HeaderCommand(line[0]) != HeaderMessageId {
		return -2
	}
	return int32(binary.BigEndian.Uint32(line[1:5])) //nolint:gosec // intentional reinterpret
}

// ParseHeaders reads header lines from buf starting at pos until an empty
// line (end-of-headers) or the buffer is exhausted, decoding each into
// headerBuf and recording a [HeaderEntry]. It returns the position just
// past end-of-headers (i.e. where the payload begins) and a status bitset.
//
// A nonempty line whose command byte decodes to zero UTF-8 bytes sets
// ParseInvalidHeaderRead but does not stop parsing. A line whose value
// does not fit in the remaining headerBuf capacity sets
// ParseHeaderOutOfMem and stops parsing immediately; the payload position
// returned in that case points just past the line that overflowed, so the
// caller can still recover where headers end on a best-effort basis, and
// entries recorded so far remain valid.
func ParseHeaders(buf []byte, pos int, headerBuf *HeaderBuffer) (entries []HeaderEntry, next int, status ParseStatus) {
	for {
		line, afterLine := ReadLine(buf, pos)
		if line == nil {
			// Either end-of-headers, or the terminator is missing entirely;
			// either way there's nothing more to parse as headers.
			return entries, afterLine, status
		}

		cmd := HeaderCommand(line[0])
		value := line[1:]
		if len(value) == 0 {
			status |= ParseInvalidHeaderRead
			pos = afterLine
			continue
		}

		entry, ok := headerBuf.append(cmd, value)
		if !ok {
			status |= ParseHeaderOutOfMem
			return entries, afterLine, status
		}
		entries = append(entries, entry)
		pos = afterLine
	}
}
