// Package sentpacket tracks metadata for packets sent but not yet
// acknowledged or declared lost, grounded on
// original_source/src/core/sent_packet_metadata.h.
package sentpacket

import "time"

// MaxFramesPerPacket bounds how many frames this package records per sent
// packet, matching QUIC_MAX_FRAMES_PER_PACKET.
const MaxFramesPerPacket = 12

// FrameRef records that a particular frame was included in a sent packet,
// so that if the packet is declared lost the connection knows what needs
// to be retransmitted. Which fields are meaningful depends on Type.
type FrameRef struct {
	Type Type

	// StreamID and StreamOffset/StreamLength are set for STREAM, RESET_STREAM,
	// STOP_SENDING, and MAX_STREAM_DATA frames.
	StreamID     uint64
	StreamOffset uint64
	StreamLength uint64
	StreamFin    bool

	// Sequence is set for NEW_CONNECTION_ID, RETIRE_CONNECTION_ID, and
	// ACK_FREQUENCY frames.
	Sequence uint64

	// CryptoOffset/CryptoLength are set for CRYPTO frames.
	CryptoOffset uint64
	CryptoLength uint64

	// LargestAcked is set for ACK frames: the largest packet number this
	// endpoint had acknowledged at the time this ACK frame was sent.
	LargestAcked uint64
}

// Type mirrors the sent frame's wire type, kept here rather than importing
// the frame package's Type to avoid a dependency cycle (sentpacket is used
// by the congestion/loss-detection layer, which the frame package does not
// need to know about).
type Type uint8

// Metadata describes one sent packet: when it was sent, how large it was,
// and what it contained, so loss detection can evaluate it and a
// retransmission can be built if it's declared lost.
type Metadata struct {
	PacketNumber   uint64
	SentTime       time.Time
	PacketLength   uint16
	IsAckEliciting bool
	IsMTUProbe     bool
	IsPathProbe    bool
	InFlight       bool
	Frames         []FrameRef
}

// Tracker holds the outstanding (sent, not yet acked or lost) packets for
// one packet-number space, ordered by ascending packet number (the order
// they were sent in, since packet numbers within a space are monotonic).
type Tracker struct {
	sent           []Metadata
	lost           []Metadata
	packetsInFlight int
	bytesInFlight   uint64
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// OnPacketSent records a newly sent packet, inserting it in packet-number
// order. Packet numbers are almost always sent in increasing order within
// a space, but original_source/src/core/loss_detection.h notes that
// packets from a lower encryption level can occasionally be appended after
// a higher one during the handshake, so this does a proper sorted
// insertion rather than assuming append-at-end.
func (t *Tracker) OnPacketSent(m Metadata) {
	i := t.search(m.PacketNumber)
	t.sent = append(t.sent, Metadata{})
	copy(t.sent[i+1:], t.sent[i:])
	t.sent[i] = m
	if m.InFlight {
		t.packetsInFlight++
		t.bytesInFlight += uint64(m.PacketLength)
	}
}

// PacketsInFlight returns the number of ack-eliciting, in-flight packets
// not yet acked or declared lost.
func (t *Tracker) PacketsInFlight() int {
	return t.packetsInFlight
}

// BytesInFlight returns the total length of all in-flight packets.
func (t *Tracker) BytesInFlight() uint64 {
	return t.bytesInFlight
}

// Get returns the metadata for pn if it is still outstanding (sent, not
// acked or lost).
func (t *Tracker) Get(pn uint64) (Metadata, bool) {
	i := t.search(pn)
	if i < len(t.sent) && t.sent[i].PacketNumber == pn {
		return t.sent[i], true
	}
	return Metadata{}, false
}

// search returns the index of pn in t.sent, or the insertion point if
// absent (binary search, since t.sent is kept sorted by packet number).
func (t *Tracker) search(pn uint64) int {
	lo, hi := 0, len(t.sent)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.sent[mid].PacketNumber < pn {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Ack removes pn from the outstanding set, reporting its metadata if it
// was still tracked (not already declared lost and removed).
func (t *Tracker) Ack(pn uint64) (Metadata, bool) {
	i := t.search(pn)
	if i >= len(t.sent) || t.sent[i].PacketNumber != pn {
		return Metadata{}, false
	}
	m := t.sent[i]
	t.sent = append(t.sent[:i], t.sent[i+1:]...)
	if m.InFlight {
		t.packetsInFlight--
		t.bytesInFlight -= uint64(m.PacketLength)
	}
	return m, true
}

// DeclareLost moves pn from the outstanding set to the lost set (kept
// briefly in case an ACK for it arrives later than expected), returning
// its metadata.
func (t *Tracker) DeclareLost(pn uint64) (Metadata, bool) {
	i := t.search(pn)
	if i >= len(t.sent) || t.sent[i].PacketNumber != pn {
		return Metadata{}, false
	}
	m := t.sent[i]
	t.sent = append(t.sent[:i], t.sent[i+1:]...)
	if m.InFlight {
		t.packetsInFlight--
		t.bytesInFlight -= uint64(m.PacketLength)
	}
	t.lost = append(t.lost, m)
	return m, true
}

// Outstanding returns every currently tracked (unacked, not lost) packet,
// in ascending packet-number order.
func (t *Tracker) Outstanding() []Metadata {
	return append([]Metadata{}, t.sent...)
}

// DiscardBelow drops all outstanding and remembered-lost packets with a
// packet number below pn, e.g. when an encryption level's keys are
// discarded and its packet-number space can no longer be acknowledged.
func (t *Tracker) DiscardBelow(pn uint64) {
	i := t.search(pn)
	for _, m := range t.sent[:i] {
		if m.InFlight {
			t.packetsInFlight--
			t.bytesInFlight -= uint64(m.PacketLength)
		}
	}
	t.sent = t.sent[i:]

	keep := t.lost[:0]
	for _, m := range t.lost {
		if m.PacketNumber >= pn {
			keep = append(keep, m)
		}
	}
	t.lost = keep
}

// DiscardAll drops every tracked packet (outstanding and remembered-lost),
// e.g. on connection close.
func (t *Tracker) DiscardAll() {
	t.sent = nil
	t.lost = nil
	t.packetsInFlight = 0
	t.bytesInFlight = 0
}
