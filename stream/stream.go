package stream

import (
	"errors"

	"github.com/m-lab/quic-core/recvbuf"
)

// SendState tracks a stream's send-side lifecycle, RFC 9000 section 3.1.
type SendState uint8

const (
	SendStateReady SendState = iota
	SendStateSend
	SendStateDataSent
	SendStateResetSent
	SendStateDataRecvd
	SendStateResetRecvd
)

// RecvState tracks a stream's receive-side lifecycle, RFC 9000 section 3.2.
type RecvState uint8

const (
	RecvStateRecv RecvState = iota
	RecvStateSizeKnown
	RecvStateDataRecvd
	RecvStateResetRecvd
	RecvStateDataRead
	RecvStateResetRead
)

// ErrFlowControlViolation is returned when a peer sends beyond the limit
// this endpoint advertised for the stream.
var ErrFlowControlViolation = errors.New("stream: flow control violation")

// ControlFlag enumerates the control-frame obligations a Stream can be
// carrying, analogous to QUIC_STREAM_SEND_FLAGS in the original.
type ControlFlag uint16

const (
	ControlFlagResetStream ControlFlag = 1 << iota
	ControlFlagStopSending
	ControlFlagMaxStreamData
	ControlFlagStreamDataBlocked
)

// Stream is one QUIC stream's full state: identity, send/recv state
// machines, the outbound byte queue, and the inbound reassembly buffer.
type Stream struct {
	ID       ID
	Priority uint32

	SendState   SendState
	sendQueue   []byte
	sendOffset  uint64 // offset of sendQueue[0] in the stream
	nextSend    uint64 // offset of the next byte to send
	finOffset   uint64 // set once FIN has been queued
	finQueued   bool
	peerMaxData uint64 // flow control limit the peer has granted us

	RecvState   RecvState
	Recv        *recvbuf.Buffer
	recvMaxData uint64 // flow control limit we've granted the peer

	ControlFlags ControlFlag

	// next/prev are intrusive list links in the shape QUIC_STREAM
	// embeds; nothing in this package reads or sets them, and
	// Set.WithPendingSend orders streams by sorting instead.
	next, prev *Stream
}

// NewStream creates a Stream ready to send and receive, with recvWindow
// as the initial flow-control window granted to the peer.
func NewStream(id ID, recvWindow uint64) *Stream {
	return &Stream{
		ID:          id,
		Recv:        recvbuf.New(recvWindow),
		recvMaxData: recvWindow,
	}
}

// QueueSend appends data (and, if fin, marks the final offset) to the
// stream's outbound byte queue.
func (s *Stream) QueueSend(data []byte, fin bool) {
	s.sendQueue = append(s.sendQueue, data...)
	if s.SendState == SendStateReady {
		s.SendState = SendStateSend
	}
	if fin {
		s.finQueued = true
		s.finOffset = s.sendOffset + uint64(len(s.sendQueue))
	}
}

// PendingSendBytes returns how many queued bytes have not yet been sent
// for the first time.
func (s *Stream) PendingSendBytes() uint64 {
	return s.sendOffset + uint64(len(s.sendQueue)) - s.nextSend
}

// HasFin reports whether a FIN has been queued and all bytes up to it
// have been sent at least once.
func (s *Stream) HasFin() bool {
	return s.finQueued && s.nextSend >= s.finOffset
}

// NextSendChunk returns up to maxLen bytes starting at the next unsent
// offset, bounded by the peer's flow-control limit, along with whether
// FIN should be set on this chunk.
func (s *Stream) NextSendChunk(maxLen int) (offset uint64, data []byte, fin bool) {
	available := s.sendOffset + uint64(len(s.sendQueue)) - s.nextSend
	allowed := s.peerMaxData - s.nextSend
	if allowed < available {
		available = allowed
	}
	if available == 0 {
		return s.nextSend, nil, s.finQueued && s.nextSend == s.finOffset
	}
	if uint64(maxLen) < available {
		available = uint64(maxLen)
	}
	start := s.nextSend - s.sendOffset
	chunk := s.sendQueue[start : start+available]
	isFin := s.finQueued && s.nextSend+available == s.finOffset
	return s.nextSend, chunk, isFin
}

// OnSendAcked advances the retired-send window once bytes up to
// upToOffset have been acknowledged, trimming the queue and, if this was
// the final unacked chunk including FIN, completing the send side.
func (s *Stream) OnSendAcked(upToOffset uint64) {
	if upToOffset <= s.sendOffset {
		return
	}
	trim := upToOffset - s.sendOffset
	if trim > uint64(len(s.sendQueue)) {
		trim = uint64(len(s.sendQueue))
	}
	s.sendQueue = s.sendQueue[trim:]
	s.sendOffset += trim
	if s.finQueued && s.sendOffset >= s.finOffset {
		s.SendState = SendStateDataRecvd
	}
}

// OnSent records that bytes up to newNextSend have now been transmitted
// at least once (may be retransmitted later if lost).
func (s *Stream) OnSent(newNextSend uint64) {
	if newNextSend > s.nextSend {
		s.nextSend = newNextSend
	}
	if s.HasFin() {
		s.SendState = SendStateDataSent
	}
}

// SetPeerMaxData updates the flow-control limit the peer has granted for
// this stream's send side (from a MAX_STREAM_DATA frame).
func (s *Stream) SetPeerMaxData(limit uint64) {
	if limit > s.peerMaxData {
		s.peerMaxData = limit
	}
}

// OnReceive writes peer-sent stream data at offset into the receive
// buffer, enforcing the flow-control window this endpoint granted.
func (s *Stream) OnReceive(offset uint64, data []byte, fin bool) (readyToRead bool, err error) {
	if offset+uint64(len(data)) > s.recvMaxData {
		return false, ErrFlowControlViolation
	}
	_, ready, err := s.Recv.Write(offset, data)
	if err != nil {
		return false, err
	}
	if fin && s.RecvState == RecvStateRecv {
		s.RecvState = RecvStateSizeKnown
	}
	return ready, nil
}
