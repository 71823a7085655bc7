// Package frame implements QUIC frame encoding and decoding: the wire
// format for CRYPTO, STREAM, ACK, flow-control, connection-ID management,
// path validation, close, and datagram frames, per spec.md section 6.
package frame

import "github.com/m-lab/quic-core/varint"

// Type is a QUIC frame type code, per the IANA QUIC frame type registry.
type Type uint64

// Frame type codes, as listed in spec.md section 6.
const (
	TypePadding              Type = 0x00
	TypePing                 Type = 0x01
	TypeAck                  Type = 0x02
	TypeAckECN               Type = 0x03
	TypeResetStream          Type = 0x04
	TypeStopSending          Type = 0x05
	TypeCrypto               Type = 0x06
	TypeNewToken             Type = 0x07
	TypeStreamBase           Type = 0x08 // 0x08-0x0f, low 3 bits are flags
	TypeMaxData              Type = 0x10
	TypeMaxStreamData        Type = 0x11
	TypeMaxStreamsBidi       Type = 0x12
	TypeMaxStreamsUni        Type = 0x13
	TypeDataBlocked          Type = 0x14
	TypeStreamDataBlocked    Type = 0x15
	TypeStreamsBlockedBidi   Type = 0x16
	TypeStreamsBlockedUni    Type = 0x17
	TypeNewConnectionID      Type = 0x18
	TypeRetireConnectionID   Type = 0x19
	TypePathChallenge        Type = 0x1a
	TypePathResponse         Type = 0x1b
	TypeConnectionCloseQUIC  Type = 0x1c
	TypeConnectionCloseApp   Type = 0x1d
	TypeHandshakeDone        Type = 0x1e
	TypeDatagram             Type = 0x30
	TypeDatagramWithLen      Type = 0x31
	TypeAckFrequency         Type = 0xaf
	TypeImmediateAck         Type = 0xac
)

// Stream frame flag bits packed into the low three bits of the STREAM
// frame's type code.
const (
	streamFlagFin    = 0x01
	streamFlagLen    = 0x02
	streamFlagOffset = 0x04
)

// ErrorCode is a QUIC transport error code, per spec.md section 6 and
// section 8 of RFC 9000.
type ErrorCode uint64

// Transport error codes.
const (
	ErrNoError                ErrorCode = 0x0
	ErrInternalError          ErrorCode = 0x1
	ErrConnectionRefused      ErrorCode = 0x2
	ErrFlowControlError       ErrorCode = 0x3
	ErrStreamLimitError       ErrorCode = 0x4
	ErrStreamStateError       ErrorCode = 0x5
	ErrFinalSizeError         ErrorCode = 0x6
	ErrFrameEncodingError     ErrorCode = 0x7
	ErrTransportParameterError ErrorCode = 0x8
	ErrProtocolViolation      ErrorCode = 0xA
	ErrCryptoBufferExceeded   ErrorCode = 0xD
	ErrKeyUpdateError         ErrorCode = 0xE
	ErrAEADLimitReached       ErrorCode = 0xF
)

// CryptoError wraps a TLS alert code as a QUIC transport error, per
// RFC 9000 section 20.1.
func CryptoError(tlsAlert uint8) ErrorCode {
	return ErrorCode(0x100 | uint64(tlsAlert))
}

// IsCryptoError reports whether code is a wrapped TLS alert.
func IsCryptoError(code ErrorCode) bool {
	return uint64(code)&0xff00 == 0x100
}

// putVarint is a small helper so call sites don't need to check the error
// that Encode can only return for out-of-range values we never pass.
func putVarint(buf []byte, v uint64) []byte {
	buf, _ = varint.Encode(buf, v)
	return buf
}
