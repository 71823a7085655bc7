package frame

import "github.com/m-lab/quic-core/varint"

// PeekType reads the frame type varint from the start of data without
// consuming anything else, returning the type and the number of bytes the
// type code itself occupies.
func PeekType(data []byte) (Type, int, error) {
	v, n, err := varint.Decode(data)
	if err != nil {
		return 0, 0, ErrMalformedFrame
	}
	return Type(v), n, nil
}

// IsStreamType reports whether t is one of the eight STREAM frame type
// codes (0x08-0x0f).
func IsStreamType(t Type) bool {
	return t >= TypeStreamBase && t <= TypeStreamBase+0x07
}

// IsAckEliciting reports whether a frame of type t requires the peer to
// send an ACK in response, per the frame table in RFC 9000 section 12.4.
func IsAckEliciting(t Type) bool {
	switch t {
	case TypeAck, TypeAckECN, TypePadding, TypeConnectionCloseQUIC, TypeConnectionCloseApp:
		return false
	default:
		return true
	}
}
