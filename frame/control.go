package frame

import (
	"errors"

	"github.com/m-lab/quic-core/varint"
)

// ResetStream abruptly terminates the sending part of a stream (RFC 9000
// section 19.4).
type ResetStream struct {
	StreamID   uint64
	ErrorCode  ErrorCode
	FinalSize  uint64
}

func EncodeResetStream(buf []byte, f ResetStream) []byte {
	buf = putVarint(buf, uint64(TypeResetStream))
	buf = putVarint(buf, f.StreamID)
	buf = putVarint(buf, uint64(f.ErrorCode))
	buf = putVarint(buf, f.FinalSize)
	return buf
}

func DecodeResetStream(data []byte) (*ResetStream, int, error) {
	orig := data
	id, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	code, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	final, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	return &ResetStream{StreamID: id, ErrorCode: ErrorCode(code), FinalSize: final}, len(orig) - len(data), nil
}

// StopSending asks a peer to stop sending on a stream (RFC 9000 section 19.5).
type StopSending struct {
	StreamID  uint64
	ErrorCode ErrorCode
}

func EncodeStopSending(buf []byte, f StopSending) []byte {
	buf = putVarint(buf, uint64(TypeStopSending))
	buf = putVarint(buf, f.StreamID)
	buf = putVarint(buf, uint64(f.ErrorCode))
	return buf
}

func DecodeStopSending(data []byte) (*StopSending, int, error) {
	orig := data
	id, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	code, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	return &StopSending{StreamID: id, ErrorCode: ErrorCode(code)}, len(orig) - len(data), nil
}

// NewToken carries an address-validation token for use on a future
// connection (RFC 9000 section 19.7).
type NewToken struct {
	Token []byte
}

func EncodeNewToken(buf []byte, f NewToken) []byte {
	buf = putVarint(buf, uint64(TypeNewToken))
	buf = putVarint(buf, uint64(len(f.Token)))
	buf = append(buf, f.Token...)
	return buf
}

func DecodeNewToken(data []byte) (*NewToken, int, error) {
	orig := data
	length, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, 0, ErrMalformedFrame
	}
	tok := make([]byte, length)
	copy(tok, data[:length])
	data = data[length:]
	return &NewToken{Token: tok}, len(orig) - len(data), nil
}

// MaxData, MaxStreamData, MaxStreams, DataBlocked, StreamDataBlocked, and
// StreamsBlocked all share the same single-varint-payload shape; they are
// kept as distinct types so callers can't mix up which limit they refer to.

type MaxData struct{ Max uint64 }
type MaxStreamData struct {
	StreamID uint64
	Max      uint64
}
type MaxStreams struct {
	Bidirectional bool
	Max           uint64
}
type DataBlocked struct{ Max uint64 }
type StreamDataBlocked struct {
	StreamID uint64
	Max      uint64
}
type StreamsBlocked struct {
	Bidirectional bool
	Max           uint64
}

func EncodeMaxData(buf []byte, f MaxData) []byte {
	buf = putVarint(buf, uint64(TypeMaxData))
	return putVarint(buf, f.Max)
}

func DecodeMaxData(data []byte) (*MaxData, int, error) {
	v, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	return &MaxData{Max: v}, n, nil
}

func EncodeMaxStreamData(buf []byte, f MaxStreamData) []byte {
	buf = putVarint(buf, uint64(TypeMaxStreamData))
	buf = putVarint(buf, f.StreamID)
	return putVarint(buf, f.Max)
}

func DecodeMaxStreamData(data []byte) (*MaxStreamData, int, error) {
	orig := data
	id, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	max, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	return &MaxStreamData{StreamID: id, Max: max}, len(orig) - len(data), nil
}

func EncodeMaxStreams(buf []byte, f MaxStreams) []byte {
	if f.Bidirectional {
		buf = putVarint(buf, uint64(TypeMaxStreamsBidi))
	} else {
		buf = putVarint(buf, uint64(TypeMaxStreamsUni))
	}
	return putVarint(buf, f.Max)
}

func DecodeMaxStreams(typ Type, data []byte) (*MaxStreams, int, error) {
	v, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	return &MaxStreams{Bidirectional: typ == TypeMaxStreamsBidi, Max: v}, n, nil
}

func EncodeDataBlocked(buf []byte, f DataBlocked) []byte {
	buf = putVarint(buf, uint64(TypeDataBlocked))
	return putVarint(buf, f.Max)
}

func DecodeDataBlocked(data []byte) (*DataBlocked, int, error) {
	v, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	return &DataBlocked{Max: v}, n, nil
}

func EncodeStreamDataBlocked(buf []byte, f StreamDataBlocked) []byte {
	buf = putVarint(buf, uint64(TypeStreamDataBlocked))
	buf = putVarint(buf, f.StreamID)
	return putVarint(buf, f.Max)
}

func DecodeStreamDataBlocked(data []byte) (*StreamDataBlocked, int, error) {
	orig := data
	id, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	max, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	return &StreamDataBlocked{StreamID: id, Max: max}, len(orig) - len(data), nil
}

func EncodeStreamsBlocked(buf []byte, f StreamsBlocked) []byte {
	if f.Bidirectional {
		buf = putVarint(buf, uint64(TypeStreamsBlockedBidi))
	} else {
		buf = putVarint(buf, uint64(TypeStreamsBlockedUni))
	}
	return putVarint(buf, f.Max)
}

func DecodeStreamsBlocked(typ Type, data []byte) (*StreamsBlocked, int, error) {
	v, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	return &StreamsBlocked{Bidirectional: typ == TypeStreamsBlockedBidi, Max: v}, n, nil
}

// NewConnectionID supplies a connection ID for future use (RFC 9000
// section 19.15).
type NewConnectionID struct {
	SequenceNumber uint64
	RetirePriorTo  uint64
	ConnectionID   []byte
	StatelessReset [16]byte
}

func EncodeNewConnectionID(buf []byte, f NewConnectionID) []byte {
	buf = putVarint(buf, uint64(TypeNewConnectionID))
	buf = putVarint(buf, f.SequenceNumber)
	buf = putVarint(buf, f.RetirePriorTo)
	buf = append(buf, byte(len(f.ConnectionID)))
	buf = append(buf, f.ConnectionID...)
	buf = append(buf, f.StatelessReset[:]...)
	return buf
}

func DecodeNewConnectionID(data []byte) (*NewConnectionID, int, error) {
	orig := data
	seq, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	retire, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	if len(data) < 1 {
		return nil, 0, ErrMalformedFrame
	}
	cidLen := int(data[0])
	data = data[1:]
	if len(data) < cidLen+16 {
		return nil, 0, ErrMalformedFrame
	}
	cid := make([]byte, cidLen)
	copy(cid, data[:cidLen])
	data = data[cidLen:]
	f := &NewConnectionID{SequenceNumber: seq, RetirePriorTo: retire, ConnectionID: cid}
	copy(f.StatelessReset[:], data[:16])
	data = data[16:]
	return f, len(orig) - len(data), nil
}

// RetireConnectionID asks the peer to stop using a previously issued
// connection ID (RFC 9000 section 19.16).
type RetireConnectionID struct {
	SequenceNumber uint64
}

func EncodeRetireConnectionID(buf []byte, f RetireConnectionID) []byte {
	buf = putVarint(buf, uint64(TypeRetireConnectionID))
	return putVarint(buf, f.SequenceNumber)
}

func DecodeRetireConnectionID(data []byte) (*RetireConnectionID, int, error) {
	v, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	return &RetireConnectionID{SequenceNumber: v}, n, nil
}

// PathChallenge and PathResponse together implement path validation (RFC
// 9000 sections 19.17-19.18).
type PathChallenge struct{ Data [8]byte }
type PathResponse struct{ Data [8]byte }

func EncodePathChallenge(buf []byte, f PathChallenge) []byte {
	buf = putVarint(buf, uint64(TypePathChallenge))
	return append(buf, f.Data[:]...)
}

func DecodePathChallenge(data []byte) (*PathChallenge, int, error) {
	if len(data) < 8 {
		return nil, 0, ErrMalformedFrame
	}
	var f PathChallenge
	copy(f.Data[:], data[:8])
	return &f, 8, nil
}

func EncodePathResponse(buf []byte, f PathResponse) []byte {
	buf = putVarint(buf, uint64(TypePathResponse))
	return append(buf, f.Data[:]...)
}

func DecodePathResponse(data []byte) (*PathResponse, int, error) {
	if len(data) < 8 {
		return nil, 0, ErrMalformedFrame
	}
	var f PathResponse
	copy(f.Data[:], data[:8])
	return &f, 8, nil
}

// ConnectionClose signals that the connection, or the application using it,
// is closing (RFC 9000 section 19.19).
type ConnectionClose struct {
	IsApplicationError bool
	ErrorCode          ErrorCode
	FrameType          Type // only meaningful when !IsApplicationError
	Reason             string
}

func EncodeConnectionClose(buf []byte, f ConnectionClose) []byte {
	if f.IsApplicationError {
		buf = putVarint(buf, uint64(TypeConnectionCloseApp))
	} else {
		buf = putVarint(buf, uint64(TypeConnectionCloseQUIC))
	}
	buf = putVarint(buf, uint64(f.ErrorCode))
	if !f.IsApplicationError {
		buf = putVarint(buf, uint64(f.FrameType))
	}
	buf = putVarint(buf, uint64(len(f.Reason)))
	buf = append(buf, f.Reason...)
	return buf
}

func DecodeConnectionClose(typ Type, data []byte) (*ConnectionClose, int, error) {
	orig := data
	code, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]

	f := &ConnectionClose{ErrorCode: ErrorCode(code), IsApplicationError: typ == TypeConnectionCloseApp}
	if !f.IsApplicationError {
		ft, n, err := varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedFrame
		}
		data = data[n:]
		f.FrameType = Type(ft)
	}

	length, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, 0, ErrMalformedFrame
	}
	f.Reason = string(data[:length])
	data = data[length:]

	return f, len(orig) - len(data), nil
}

// HandshakeDone confirms handshake completion to the client (RFC 9000
// section 19.20). It has no payload.
func EncodeHandshakeDone(buf []byte) []byte {
	return putVarint(buf, uint64(TypeHandshakeDone))
}

// Datagram carries an unreliable, unordered application payload outside of
// any stream (RFC 9221).
type Datagram struct {
	Data []byte
}

// EncodeDatagram always emits the length-prefixed form (type 0x31) so a
// DATAGRAM frame can be followed by other frames in the same packet.
func EncodeDatagram(buf []byte, f Datagram) []byte {
	buf = putVarint(buf, uint64(TypeDatagramWithLen))
	buf = putVarint(buf, uint64(len(f.Data)))
	buf = append(buf, f.Data...)
	return buf
}

func DecodeDatagram(typ Type, data []byte) (*Datagram, int, error) {
	orig := data
	var length uint64
	if typ == TypeDatagramWithLen {
		l, n, err := varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedFrame
		}
		data = data[n:]
		length = l
	} else {
		length = uint64(len(data))
	}
	if uint64(len(data)) < length {
		return nil, 0, ErrMalformedFrame
	}
	payload := make([]byte, length)
	copy(payload, data[:length])
	data = data[length:]
	return &Datagram{Data: payload}, len(orig) - len(data), nil
}

// AckFrequency lets the sender request the peer adjust its ack-eliciting
// threshold and max ack delay (draft-ietf-quic-ack-frequency).
type AckFrequency struct {
	SequenceNumber     uint64
	AckElicitingThresh uint64
	RequestedMaxAckDelay uint64
	Reordering         uint8 // 0 = IGNORE_ORDER absent, 1 = present
}

func EncodeAckFrequency(buf []byte, f AckFrequency) []byte {
	buf = putVarint(buf, uint64(TypeAckFrequency))
	buf = putVarint(buf, f.SequenceNumber)
	buf = putVarint(buf, f.AckElicitingThresh)
	buf = putVarint(buf, f.RequestedMaxAckDelay)
	buf = append(buf, f.Reordering)
	return buf
}

func DecodeAckFrequency(data []byte) (*AckFrequency, int, error) {
	orig := data
	seq, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	thresh, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	delay, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedFrame
	}
	data = data[n:]
	if len(data) < 1 {
		return nil, 0, ErrMalformedFrame
	}
	reorder := data[0]
	data = data[1:]
	f := &AckFrequency{SequenceNumber: seq, AckElicitingThresh: thresh, RequestedMaxAckDelay: delay, Reordering: reorder}
	return f, len(orig) - len(data), nil
}

// ImmediateAck asks the peer to send an ACK frame without delay
// (draft-ietf-quic-ack-frequency section 4). It has no payload.
func EncodeImmediateAck(buf []byte) []byte {
	return putVarint(buf, uint64(TypeImmediateAck))
}

var errUnknownFrameType = errors.New("frame: unknown frame type")
