// Package acktracker implements the per packet-number-space receive
// bookkeeping described in spec.md section 4.3: duplicate detection, the
// set of packet numbers still owed an ACK, ECN counting, and the
// immediate-vs-delayed ACK policy.
package acktracker

import (
	"github.com/m-lab/quic-core/rangeset"
)

// ECNType mirrors the two-bit IP ECN field.
type ECNType uint8

// ECN codepoints, matching the IP header's two-bit ECN field.
const (
	ECNNotECT ECNType = 0
	ECNECT1   ECNType = 1
	ECNECT0   ECNType = 2
	ECNCE     ECNType = 3
)

// AckType classifies how urgently a received packet should be acknowledged.
type AckType int

const (
	// NonEliciting packets do not themselves require an ACK to be sent.
	NonEliciting AckType = iota
	// Eliciting packets require an ACK, subject to the delayed-ack timer.
	Eliciting
	// Immediate packets require an ACK to be sent without delay.
	Immediate
)

// MaxRangeReceivedPackets bounds the duplicate-detection range set.
const MaxRangeReceivedPackets = 512

// MaxRangeAckPackets bounds the to-be-acknowledged range set.
const MaxRangeAckPackets = 512

// DefaultAckElicitingThreshold is the number of ack-eliciting packets that
// accumulate before an ACK is sent immediately, absent an ACK_FREQUENCY
// frame from the peer adjusting it.
const DefaultAckElicitingThreshold = 2

// ECNCounts tallies the three ECN codepoints that can appear on received
// packets (Not-ECT is never counted as a received codepoint).
type ECNCounts struct {
	ECT0 uint64
	ECT1 uint64
	CE   uint64
}

// Tracker holds all per-packet-number-space receive state.
type Tracker struct {
	// PacketNumbersReceived records every packet number seen, for
	// duplicate detection. Growth capped at MaxRangeReceivedPackets.
	PacketNumbersReceived *rangeset.Set

	// PacketNumbersToAck records packet numbers not yet covered by an
	// outgoing ACK frame. Growth capped at MaxRangeAckPackets.
	PacketNumbersToAck *rangeset.Set

	ReceivedECN ECNCounts
	NonZeroRecvECN bool

	LargestPacketNumberAcknowledged uint64
	LargestPacketNumberRecvTimeUs   uint64

	AckElicitingPacketsToAcknowledge uint16
	AckElicitingThreshold            uint16

	// AlreadyWrittenAckFrame is true once an ACK frame covering the
	// current PacketNumbersToAck contents has been sent; it is cleared
	// whenever a new packet needing acknowledgment arrives.
	AlreadyWrittenAckFrame bool
}

// NewTracker returns an initialized, empty Tracker.
func NewTracker() Tracker {
	return Tracker{
		PacketNumbersReceived: rangeset.New(MaxRangeReceivedPackets),
		PacketNumbersToAck:     rangeset.New(MaxRangeAckPackets),
		AckElicitingThreshold:  DefaultAckElicitingThreshold,
	}
}

// AddPacketNumber records pn as received and reports whether it was already
// present (a duplicate, which the caller should drop without further
// processing).
func (t *Tracker) AddPacketNumber(pn uint64) (duplicate bool) {
	if t.PacketNumbersReceived.Contains(pn) {
		return true
	}
	t.PacketNumbersReceived.AddValue(pn)
	return false
}

// AckPacket queues pn for acknowledgment and updates ECN/timing state. It
// reports whether an ACK should be sent immediately rather than waiting for
// the delayed-ack timer, per the policy in spec.md section 4.3.
func (t *Tracker) AckPacket(pn uint64, recvTimeUs uint64, ecn ECNType, ackType AckType) (sendImmediately bool) {
	wasOutOfOrder := false
	if max, ok := t.PacketNumbersToAck.GetMax(); ok && pn < max {
		wasOutOfOrder = true
	}

	t.PacketNumbersToAck.AddValue(pn)
	t.AlreadyWrittenAckFrame = false

	if pn >= t.LargestPacketNumberAcknowledged {
		t.LargestPacketNumberAcknowledged = pn
		t.LargestPacketNumberRecvTimeUs = recvTimeUs
	}

	switch ecn {
	case ECNECT0:
		t.ReceivedECN.ECT0++
		t.NonZeroRecvECN = true
	case ECNECT1:
		t.ReceivedECN.ECT1++
		t.NonZeroRecvECN = true
	case ECNCE:
		t.ReceivedECN.CE++
		t.NonZeroRecvECN = true
	}

	if ackType == Eliciting || ackType == Immediate {
		t.AckElicitingPacketsToAcknowledge++
	}

	threshold := t.AckElicitingThreshold
	if threshold == 0 {
		threshold = DefaultAckElicitingThreshold
	}
	return ackType == Immediate || wasOutOfOrder || t.AckElicitingPacketsToAcknowledge >= threshold
}

// HasPacketsToAck reports whether there is anything new to acknowledge: the
// set is non-empty and no ACK frame has been written for its current
// contents yet.
func (t *Tracker) HasPacketsToAck() bool {
	return !t.AlreadyWrittenAckFrame && t.PacketNumbersToAck.Len() != 0
}

// OnAckFrameWritten marks the currently queued packet numbers as covered by
// an outgoing ACK frame, and resets the eliciting-packet counter.
func (t *Tracker) OnAckFrameWritten() {
	t.AlreadyWrittenAckFrame = true
	t.AckElicitingPacketsToAcknowledge = 0
}

// OnAckFrameAcked is called once the peer has acknowledged one of our ACK
// frames; it shrinks PacketNumbersToAck below the acknowledged largest
// value, since the peer now knows we've seen everything up to that point.
func (t *Tracker) OnAckFrameAcked(largestAckedByPeer uint64) {
	t.PacketNumbersToAck.SetMin(largestAckedByPeer + 1)
}

// SetAckElicitingThreshold adjusts the immediate-ACK packet-count
// threshold, e.g. in response to a received ACK_FREQUENCY frame.
func (t *Tracker) SetAckElicitingThreshold(n uint16) {
	t.AckElicitingThreshold = n
}
