// Package fbm implements the Fixed Buffer Messaging wire format: a
// big-endian, line-terminated header section followed by an opaque
// payload, carried as one logical message over an abstract
// [github.com/vnuge/fbm/pkg/transport.Channel].
//
// It solves the same sticky-message problem full-duplex request/response
// protocols always face, but instead of a length-prefixed binary header
// (see e.g. a classic 14-byte fixed-header RPC frame), FBM headers are
// self-delimiting text lines so intermediate tooling can eyeball a
// captured message. Bodies remain raw bytes.
//
// Wire format, one logical message:
//
//	[0x01][int32 BE MessageId][0xFF 0xF1]
//	[cmd:1][utf8 value...][0xFF 0xF1]        (zero or more)
//	[0xFF 0xF1]                                (end of headers)
//	payload...                                 (to end of message)
package fbm
