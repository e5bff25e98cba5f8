package fbm

import (
	"bytes"
	"testing"
)

func TestWriteMessageIdHeaderAndGetMessageId(t *testing.T) {
	tests := []struct {
		name string
		id   int32
	}{
		{"positive", 42},
		{"zero", 0},
		{"negative", -7},
		{"control", ControlMessageId},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccumulator(make([]byte, 64))
			if err := WriteMessageIdHeader(a, tt.id); err != nil {
				t.Fatalf("WriteMessageIdHeader() error = %v", err)
			}

			line, next := ReadLine(a.Bytes(), 0)
			if line == nil {
				t.Fatalf("ReadLine() returned no line")
			}
			if next != a.Len() {
				t.Errorf("ReadLine() next = %d, want %d", next, a.Len())
			}

			got := GetMessageId(line)
			if got != tt.id {
				t.Errorf("GetMessageId() = %d, want %d", got, tt.id)
			}
		})
	}
}

func TestGetMessageIdErrors(t *testing.T) {
	tests := []struct {
		name string
		line []byte
		want int32
	}{
		{"too_short", []byte{0x01, 0x00, 0x00}, -1},
		{"wrong_command", append([]byte{0x02}, make([]byte, 4)...), -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMessageId(tt.line); got != tt.want {
				t.Errorf("GetMessageId() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadLineEmptyMarksEndOfHeaders(t *testing.T) {
	buf := append([]byte{}, terminator[:]...)
	line, next := ReadLine(buf, 0)
	if line != nil {
		t.Errorf("ReadLine() line = %v, want nil for empty line", line)
	}
	if next != len(terminator) {
		t.Errorf("ReadLine() next = %d, want %d", next, len(terminator))
	}
}

func TestReadLineNoTerminatorFound(t *testing.T) {
	buf := []byte{0x10, 'h', 'i'}
	line, next := ReadLine(buf, 0)
	if line != nil {
		t.Errorf("ReadLine() line = %v, want nil", line)
	}
	if next != 0 {
		t.Errorf("ReadLine() next = %d, want 0", next)
	}
}

// TestEncodeDecodeRoundTrip is testable property 5: encode-then-decode
// round trips (command, value) pairs as a multiset, and the payload is
// preserved verbatim.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := NewAccumulator(make([]byte, 256))
	if err := WriteMessageIdHeader(a, 7); err != nil {
		t.Fatal(err)
	}
	if err := WriteHeader(a, 0x10, "Hello"); err != nil {
		t.Fatal(err)
	}
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if err := WriteBody(a, ContentTypeBinary, payload); err != nil {
		t.Fatal(err)
	}

	buf := a.Bytes()
	line, pos := ReadLine(buf, 0)
	if id := GetMessageId(line); id != 7 {
		t.Fatalf("GetMessageId() = %d, want 7", id)
	}

	hb := NewHeaderBuffer(64)
	var resp Response
	resp.Parse(7, buf, pos, hb)

	if resp.Status() != ParseOK {
		t.Errorf("Status() = %v, want ParseOK", resp.Status())
	}
	v, ok := resp.Header(0x10)
	if !ok || string(v) != "Hello" {
		t.Errorf("Header(0x10) = %q, %v; want Hello, true", v, ok)
	}
	ct, ok := resp.Header(HeaderContentType)
	if !ok || len(ct) != 1 || ct[0] != ContentTypeBinary {
		t.Errorf("Header(ContentType) = %v, %v; want [ContentTypeBinary], true", ct, ok)
	}
	if !bytes.Equal(resp.Payload(), payload) {
		t.Errorf("Payload() = %v, want %v", resp.Payload(), payload)
	}
}

// TestResponseParseIdempotent is testable property 7.
func TestResponseParseIdempotent(t *testing.T) {
	a := NewAccumulator(make([]byte, 128))
	_ = WriteMessageIdHeader(a, 1)
	_ = WriteHeader(a, 0x11, "World")
	_ = WriteBody(a, ContentTypeBinary, []byte{0x0A, 0x0B})

	buf := a.Bytes()
	_, pos := ReadLine(buf, 0)

	hb1 := NewHeaderBuffer(64)
	var r1 Response
	r1.Parse(1, buf, pos, hb1)

	hb2 := NewHeaderBuffer(64)
	var r2 Response
	r2.Parse(1, buf, pos, hb2)

	if len(r1.Headers()) != len(r2.Headers()) {
		t.Fatalf("header count mismatch: %d vs %d", len(r1.Headers()), len(r2.Headers()))
	}
	for i := range r1.Headers() {
		e1, e2 := r1.Headers()[i], r2.Headers()[i]
		if e1.Command != e2.Command || !bytes.Equal(hb1.Value(e1), hb2.Value(e2)) {
			t.Errorf("entry %d differs: %+v vs %+v", i, e1, e2)
		}
	}
	if !bytes.Equal(r1.Payload(), r2.Payload()) {
		t.Errorf("payload differs: %v vs %v", r1.Payload(), r2.Payload())
	}
}

// TestHeaderOutOfMem is testable property 9.
func TestHeaderOutOfMem(t *testing.T) {
	a := NewAccumulator(make([]byte, 128))
	_ = WriteMessageIdHeader(a, 1)
	_ = WriteHeader(a, 0x10, "short")
	_ = WriteBody(a, ContentTypeText, []byte("body"))

	buf := a.Bytes()
	_, pos := ReadLine(buf, 0)

	hb := NewHeaderBuffer(3) // too small for "short"
	var r Response
	r.Parse(1, buf, pos, hb)

	if !r.Status().HeaderOutOfMem() {
		t.Errorf("Status().HeaderOutOfMem() = false, want true")
	}
}

// TestInvalidHeaderRead covers a nonempty line decoding to zero value bytes.
func TestInvalidHeaderRead(t *testing.T) {
	a := NewAccumulator(make([]byte, 64))
	_ = a.WriteByte(0x10) // command byte with no value before the terminator
	_ = a.Write(terminator[:])
	_ = writeEndOfHeaders(a)

	hb := NewHeaderBuffer(16)
	entries, _, status := ParseHeaders(a.Bytes(), 0, hb)
	if len(entries) != 0 {
		t.Errorf("entries = %v, want none", entries)
	}
	if !status.InvalidHeaderRead() {
		t.Errorf("status.InvalidHeaderRead() = false, want true")
	}
}

func TestWriteHeaderRejectsReservedCommand(t *testing.T) {
	a := NewAccumulator(make([]byte, 16))
	if err := WriteHeader(a, HeaderReserved, "x"); err == nil {
		t.Error("WriteHeader(HeaderReserved, ...) error = nil, want error")
	}
}

func TestAccumulatorResetIdempotent(t *testing.T) {
	a := NewAccumulator(make([]byte, 32))
	_ = WriteMessageIdHeader(a, 9)
	_ = WriteHeader(a, 0x10, "x")

	a.Reset()
	first := append([]byte{}, a.Bytes()...)
	a.Reset()
	second := append([]byte{}, a.Bytes()...)

	if !bytes.Equal(first, second) {
		t.Errorf("Reset() not idempotent: %v vs %v", first, second)
	}
	if a.Len() != 0 {
		t.Errorf("Len() after Reset() = %d, want 0", a.Len())
	}
}

func TestAccumulatorReserveBackfill(t *testing.T) {
	a := NewAccumulator(make([]byte, 32))
	off, err := a.Reserve(4)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	a.Backfill(off, []byte{0, 0, 0, 7})

	if got := a.Bytes()[:4]; !bytes.Equal(got, []byte{0, 0, 0, 7}) {
		t.Errorf("Backfill() region = %v, want [0 0 0 7]", got)
	}
}
