// Package cryptostream queues TLS handshake bytes for transmission and
// reassembles the peer's, one instance per encryption level (Initial,
// Handshake, 1-RTT), since each level's CRYPTO stream occupies an
// independent byte-offset space per RFC 9000 section 7. Grounded on
// original_source/src/core/crypto.h (QUIC_CRYPTO).
package cryptostream

import (
	"github.com/m-lab/quic-core/rangeset"
	"github.com/m-lab/quic-core/recvbuf"
)

// maxRecvWindow bounds how far ahead of the consumed offset this endpoint
// will buffer handshake bytes; the handshake is small and not subject to
// application-level flow control, so a single generous static window
// (rather than a negotiated one) is enough.
const maxRecvWindow = 1 << 16

// Stream queues outbound CRYPTO-frame bytes and reassembles inbound ones
// for a single encryption level.
type Stream struct {
	// sendQueue holds bytes at offsets [sendOffset, sendOffset+len(sendQueue)).
	sendQueue  []byte
	sendOffset uint64

	// unAckedOffset is the smallest offset not yet acknowledged by the
	// peer, RFC793 SND.UNA in the original's terms.
	unAckedOffset uint64
	// nextSendOffset is where the next new transmission will start.
	nextSendOffset uint64

	// recoveryNextOffset/recoveryEndOffset bound a retransmission window
	// opened by OnLoss; while open, NextSendChunk serves bytes from here
	// before falling through to new data.
	recoveryNextOffset uint64
	recoveryEndOffset  uint64

	// ackedRanges tracks which send offsets the peer has acknowledged
	// beyond unAckedOffset, until the acknowledged prefix reaches them.
	// NextSendChunk does not consult it: a recovery window re-offers its
	// bytes even where some were acked out of order.
	ackedRanges *rangeset.Set

	recv *recvbuf.Buffer
}

// New creates a Stream ready to queue outbound bytes and receive inbound
// ones.
func New() *Stream {
	return &Stream{
		ackedRanges: rangeset.New(0),
		recv:        recvbuf.New(maxRecvWindow),
	}
}

// inRecovery reports whether a retransmission window is currently open.
func (s *Stream) inRecovery() bool {
	return s.recoveryNextOffset < s.recoveryEndOffset
}

// QueueSend appends handshake bytes to the stream's outbound queue.
func (s *Stream) QueueSend(data []byte) {
	s.sendQueue = append(s.sendQueue, data...)
}

// HasPendingCryptoFrame reports whether there is data to send: either an
// open recovery window or unsent new data, mirroring
// QuicCryptoHasPendingCryptoFrame.
func (s *Stream) HasPendingCryptoFrame() bool {
	return s.inRecovery() || s.nextSendOffset < s.sendOffset+uint64(len(s.sendQueue))
}

// NextSendChunk returns up to maxLen bytes to place in the next CRYPTO
// frame: retransmission data if a recovery window is open, otherwise new
// data starting at nextSendOffset.
func (s *Stream) NextSendChunk(maxLen int) (offset uint64, data []byte) {
	if s.inRecovery() {
		start := s.recoveryNextOffset
		avail := s.recoveryEndOffset - start
		if uint64(maxLen) < avail {
			avail = uint64(maxLen)
		}
		rel := start - s.sendOffset
		return start, s.sendQueue[rel : rel+avail]
	}
	avail := s.sendOffset + uint64(len(s.sendQueue)) - s.nextSendOffset
	if avail == 0 {
		return s.nextSendOffset, nil
	}
	if uint64(maxLen) < avail {
		avail = uint64(maxLen)
	}
	rel := s.nextSendOffset - s.sendOffset
	return s.nextSendOffset, s.sendQueue[rel : rel+avail]
}

// OnSent advances past the bytes just transmitted, whether from the
// recovery window or new data.
func (s *Stream) OnSent(offset uint64, length uint64) {
	end := offset + length
	if s.inRecovery() && offset == s.recoveryNextOffset {
		s.recoveryNextOffset = end
	}
	if end > s.nextSendOffset {
		s.nextSendOffset = end
	}
}

// OnAcked records that [offset, offset+length) has been acknowledged,
// advancing UnAckedOffset through any now-fully-acked prefix and trimming
// the send queue.
func (s *Stream) OnAcked(offset uint64, length uint64) {
	s.ackedRanges.AddRange(offset, length)
	for s.ackedRanges.Len() > 0 {
		iv := s.ackedRanges.At(0)
		if iv.Low > s.unAckedOffset {
			break
		}
		if iv.High()+1 > s.unAckedOffset {
			s.unAckedOffset = iv.High() + 1
		}
		s.ackedRanges.RemoveRange(iv.Low, iv.Count)
	}
	if s.unAckedOffset > s.sendOffset {
		trim := s.unAckedOffset - s.sendOffset
		if trim > uint64(len(s.sendQueue)) {
			trim = uint64(len(s.sendQueue))
		}
		s.sendQueue = s.sendQueue[trim:]
		s.sendOffset += trim
	}
}

// OnLoss opens (or extends) a recovery window covering [offset,
// offset+length), so NextSendChunk will re-offer those bytes. It reports
// whether there is now data queued to send.
func (s *Stream) OnLoss(offset uint64, length uint64) bool {
	end := offset + length
	if !s.inRecovery() || offset < s.recoveryNextOffset {
		s.recoveryNextOffset = offset
	}
	if end > s.recoveryEndOffset {
		s.recoveryEndOffset = end
	}
	return s.HasPendingCryptoFrame()
}

// OnReceive writes peer handshake bytes at offset into the reassembly
// buffer.
func (s *Stream) OnReceive(offset uint64, data []byte) (readyToRead bool, err error) {
	_, ready, err := s.recv.Write(offset, data)
	return ready, err
}

// Read returns the contiguous in-order handshake bytes ready to hand to
// the TLS engine.
func (s *Stream) Read() (offset uint64, data []byte, ok bool) {
	return s.recv.Read()
}

// Drain marks length bytes as consumed by the TLS engine.
func (s *Stream) Drain(length uint64) {
	s.recv.Drain(length)
}

// Reset clears all send/recv state, e.g. after a Retry requires restarting
// the Initial crypto stream from scratch.
func (s *Stream) Reset() {
	*s = *New()
}
