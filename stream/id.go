// Package stream implements QUIC stream identifiers, per-stream send/recv
// state, and the stream set that enforces peer stream-count limits and
// orders streams for the send scheduler, grounded on
// original_source/src/core/stream_set.h (QUIC_STREAM_SET,
// QUIC_STREAM_TYPE_INFO).
package stream

// ID is a 62-bit QUIC stream identifier. Its two low bits encode which
// endpoint initiated the stream and whether it is bidirectional or
// unidirectional, RFC 9000 section 2.1.
type ID uint64

// Type enumerates the four stream kinds a peer/direction combination can
// produce, matching QUIC_STREAM_SET's NUMBER_OF_STREAM_TYPES index space.
type Type uint8

const (
	TypeClientBidi Type = iota
	TypeServerBidi
	TypeClientUnidi
	TypeServerUnidi
)

func (t Type) String() string {
	switch t {
	case TypeClientBidi:
		return "client-bidi"
	case TypeServerBidi:
		return "server-bidi"
	case TypeClientUnidi:
		return "client-unidi"
	case TypeServerUnidi:
		return "server-unidi"
	default:
		return "unknown"
	}
}

// IsBidirectional reports whether t allows both endpoints to send.
func (t Type) IsBidirectional() bool {
	return t == TypeClientBidi || t == TypeServerBidi
}

// IsClientInitiated reports whether a stream of this type is opened by
// the client.
func (t Type) IsClientInitiated() bool {
	return t == TypeClientBidi || t == TypeClientUnidi
}

// Type extracts the stream type from the low two bits of the ID.
func (id ID) Type() Type {
	return Type(id & 0x3)
}

// IsClientInitiated reports whether the client opened this stream.
func (id ID) IsClientInitiated() bool { return id.Type().IsClientInitiated() }

// IsBidirectional reports whether both endpoints may send on this stream.
func (id ID) IsBidirectional() bool { return id.Type().IsBidirectional() }

// Count returns the stream's ordinal within its type (the Nth stream of
// this type to be opened, 0-indexed), RFC 9000 section 2.1's
// `stream_id >> 2`.
func (id ID) Count() uint64 {
	return uint64(id) >> 2
}

// New builds the Nth (0-indexed) stream ID of the given type.
func New(t Type, count uint64) ID {
	return ID(count<<2) | ID(t)
}
