// Package transport implements the abstract bidirectional message-frame
// channel FBM treats as an external collaborator: a WebSocket (RFC 6455)
// connection carrying FBM's binary logical messages, possibly fragmented
// across several frames.
//
// Both halves — client [Dial] and server [Accept] — share the same frame
// codec and [Channel] interface: a client-side dial/handshake path and a
// minimal net/http-Hijacker-based server accept path.
package transport
