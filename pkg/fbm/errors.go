package fbm

import "errors"

// Kind classifies an [Error] into the broad categories FBM callers need to
// branch on: malformed input, transport failure, caller misuse, resource
// exhaustion, and cancellation.
type Kind int

const (
	// KindProtocol covers malformed messages and oversize messages.
	KindProtocol Kind = iota
	// KindTransport covers underlying transport failures or remote close.
	KindTransport
	// KindContract covers caller misuse: duplicate MessageId, send before
	// connect, returning a non-rented instance to a pool.
	KindContract
	// KindResource covers exhaustion of a fixed resource, e.g. a full header buffer.
	KindResource
	// KindCancellation covers caller-initiated cancellation.
	KindCancellation
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindContract:
		return "contract"
	case KindResource:
		return "resource"
	case KindCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a classification, so callers can branch on Kind
// with errors.As while str still composes with %w and errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel causes, matched with errors.Is against an *Error's Err (or the
// Error itself, since errors.Is reaches Err through *Error's Unwrap).
var (
	// ErrInvalidRequest: duplicate MessageId on Send, or a request shorter
	// than the mandatory MessageId line.
	ErrInvalidRequest = errors.New("fbm: invalid request")
	// ErrBufferFull: accumulator has insufficient remaining capacity.
	ErrBufferFull = errors.New("fbm: buffer full")
	// ErrHeaderOutOfMem: header buffer capacity exceeded while parsing.
	ErrHeaderOutOfMem = errors.New("fbm: header buffer out of memory")
	// ErrInvalidHeaderRead: a nonempty header line decoded to zero characters.
	ErrInvalidHeaderRead = errors.New("fbm: invalid header read")
	// ErrMessageTooLarge: incoming message exceeds the negotiated maximum.
	ErrMessageTooLarge = errors.New("fbm: message too large")
	// ErrConnectionClosed: the transport was closed, gracefully or not.
	ErrConnectionClosed = errors.New("fbm: connection closed")
	// ErrClosedOnError: the transport failed and the connection was torn down.
	ErrClosedOnError = errors.New("fbm: connection closed on error")
	// ErrNotRented: a pool received an item it did not hand out.
	ErrNotRented = errors.New("fbm: item was not rented from this pool")
)

// InvalidRequest returns a Contract error for op wrapping ErrInvalidRequest.
func InvalidRequest(op string) *Error {
	return newError(KindContract, op, ErrInvalidRequest)
}

// Protocol wraps err as a Protocol error.
func Protocol(op string, err error) *Error {
	return newError(KindProtocol, op, err)
}

// Transport wraps err as a Transport error.
func Transport(op string, err error) *Error {
	return newError(KindTransport, op, err)
}

// Cancellation wraps err as a Cancellation error.
func Cancellation(op string, err error) *Error {
	return newError(KindCancellation, op, err)
}
