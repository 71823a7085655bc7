package frame

import (
	"errors"

	"github.com/m-lab/quic-core/varint"
)

// ErrMalformedFrame is returned when a frame's fixed fields cannot be parsed
// from the available bytes.
var ErrMalformedFrame = errors.New("frame: malformed frame")

// Stream is a decoded or to-be-encoded STREAM frame (RFC 9000 section
// 19.8), carrying a contiguous slice of one stream's byte sequence.
type Stream struct {
	ID     uint64
	Offset uint64
	Fin    bool
	Data   []byte
}

// EncodeStream appends the wire encoding of s to buf. The LEN bit is always
// set, so STREAM frames this package emits always carry an explicit length
// and may be followed by other frames in the same packet.
func EncodeStream(buf []byte, s Stream) []byte {
	typ := byte(TypeStreamBase) | streamFlagLen
	if s.Offset != 0 {
		typ |= streamFlagOffset
	}
	if s.Fin {
		typ |= streamFlagFin
	}
	buf = putVarint(buf, uint64(typ))
	buf = putVarint(buf, s.ID)
	if s.Offset != 0 {
		buf = putVarint(buf, s.Offset)
	}
	buf = putVarint(buf, uint64(len(s.Data)))
	buf = append(buf, s.Data...)
	return buf
}

// DecodeStream parses a STREAM frame whose type byte (already consumed by
// the caller) is typ, returning the decoded frame and the number of bytes
// of data consumed beyond the type byte.
func DecodeStream(typ Type, data []byte) (*Stream, int, error) {
	if typ < TypeStreamBase || typ > TypeStreamBase+0x07 {
		return nil, 0, errors.New("frame: not a STREAM frame type")
	}
	orig := data
	flags := byte(typ) & 0x07

	id, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]

	var offset uint64
	if flags&streamFlagOffset != 0 {
		offset, n, err = varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedFrame
		}
		data = data[n:]
	}

	var length uint64
	if flags&streamFlagLen != 0 {
		length, n, err = varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedFrame
		}
		data = data[n:]
		if uint64(len(data)) < length {
			return nil, 0, ErrMalformedFrame
		}
	} else {
		length = uint64(len(data))
	}

	payload := make([]byte, length)
	copy(payload, data[:length])
	data = data[length:]

	s := &Stream{
		ID:     id,
		Offset: offset,
		Fin:    flags&streamFlagFin != 0,
		Data:   payload,
	}
	return s, len(orig) - len(data), nil
}

// Crypto is a decoded or to-be-encoded CRYPTO frame (RFC 9000 section
// 19.6), carrying a contiguous slice of a TLS handshake message stream.
type Crypto struct {
	Offset uint64
	Data   []byte
}

// EncodeCrypto appends the wire encoding of c to buf.
func EncodeCrypto(buf []byte, c Crypto) []byte {
	buf = putVarint(buf, uint64(TypeCrypto))
	buf = putVarint(buf, c.Offset)
	buf = putVarint(buf, uint64(len(c.Data)))
	buf = append(buf, c.Data...)
	return buf
}

// DecodeCrypto parses a CRYPTO frame (the type byte already consumed) from
// data, returning the decoded frame and bytes consumed.
func DecodeCrypto(data []byte) (*Crypto, int, error) {
	orig := data
	offset, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]

	length, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, 0, ErrMalformedFrame
	}

	payload := make([]byte, length)
	copy(payload, data[:length])
	data = data[length:]

	return &Crypto{Offset: offset, Data: payload}, len(orig) - len(data), nil
}
