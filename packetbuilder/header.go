package packetbuilder

import (
	"github.com/m-lab/quic-core/tlsengine"
	"github.com/m-lab/quic-core/varint"
)

// LongHeaderType is the packet type byte's high nibble for long-header
// packets, RFC 9000 section 17.2.
type LongHeaderType uint8

const (
	LongHeaderInitial   LongHeaderType = 0x00
	LongHeaderZeroRTT   LongHeaderType = 0x01
	LongHeaderHandshake LongHeaderType = 0x02
	LongHeaderRetry     LongHeaderType = 0x03
)

// QuicVersion1 is the wire version number for RFC 9000 QUIC.
const QuicVersion1 uint32 = 1

func levelToLongHeaderType(level tlsengine.Level) LongHeaderType {
	switch level {
	case tlsengine.LevelInitial:
		return LongHeaderInitial
	case tlsengine.LevelZeroRTT:
		return LongHeaderZeroRTT
	case tlsengine.LevelHandshake:
		return LongHeaderHandshake
	default:
		return LongHeaderInitial
	}
}

// encodePacketNumberLength picks the number of bytes (1-4) needed to
// encode packetNumber such that the decoder can recover it given
// largestAcked, per RFC 9000 section 17.1: the encoding must span at
// least one more bit than the distance to the largest acknowledged
// packet number so truncation stays reversible.
func encodePacketNumberLength(packetNumber, largestAcked uint64) int {
	var numUnacked uint64
	if packetNumber > largestAcked {
		numUnacked = packetNumber - largestAcked
	} else {
		numUnacked = 1
	}
	bits := 0
	for v := numUnacked * 2; v > 0; v >>= 8 {
		bits++
	}
	if bits < 1 {
		bits = 1
	}
	if bits > 4 {
		bits = 4
	}
	return bits
}

// appendPacketNumber writes the low pnLength bytes of packetNumber in
// network byte order.
func appendPacketNumber(buf []byte, packetNumber uint64, pnLength int) []byte {
	for i := pnLength - 1; i >= 0; i-- {
		buf = append(buf, byte(packetNumber>>(8*uint(i))))
	}
	return buf
}

// writeLongHeader appends a long-form QUIC header (Initial/0-RTT/
// Handshake) up to but not including the packet number field, returning
// the buffer, the offset of the two-byte payload-length placeholder (to
// be patched once the payload length is known), and the offset the
// packet number field will start at.
func writeLongHeader(buf []byte, typ LongHeaderType, pnLength int, destCID, srcCID, token []byte) (out []byte, lengthFieldOffset int, pnOffset int) {
	firstByte := byte(0xc0) | byte(typ)<<4 | byte(pnLength-1)
	buf = append(buf, firstByte)
	buf = appendUint32(buf, QuicVersion1)
	buf = append(buf, byte(len(destCID)))
	buf = append(buf, destCID...)
	buf = append(buf, byte(len(srcCID)))
	buf = append(buf, srcCID...)
	if typ == LongHeaderInitial {
		buf, _ = varint.Encode(buf, uint64(len(token)))
		buf = append(buf, token...)
	}
	// Reserve two bytes for the payload length varint (2-byte form, 0x40
	// prefix), patched in patchLongHeaderLength once the payload is
	// known; two bytes cap the payload at 16383, comfortably above any
	// single UDP datagram QUIC will ever build.
	lengthFieldOffset = len(buf)
	buf = append(buf, 0x40, 0x00)
	pnOffset = len(buf)
	return buf, lengthFieldOffset, pnOffset
}

// patchLongHeaderLength overwrites the reserved two-byte length field
// with payloadLength encoded as a 2-byte varint.
func patchLongHeaderLength(buf []byte, lengthFieldOffset int, payloadLength int) {
	buf[lengthFieldOffset] = 0x40 | byte(payloadLength>>8)
	buf[lengthFieldOffset+1] = byte(payloadLength)
}

// writeShortHeader appends a 1-RTT short header up to but not including
// the packet number field.
func writeShortHeader(buf []byte, destCID []byte, pnLength int, spinBit bool, keyPhase bool) (out []byte, pnOffset int) {
	firstByte := byte(0x40) | byte(pnLength-1)
	if spinBit {
		firstByte |= 0x20
	}
	if keyPhase {
		firstByte |= 0x04
	}
	buf = append(buf, firstByte)
	buf = append(buf, destCID...)
	pnOffset = len(buf)
	return buf, pnOffset
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
