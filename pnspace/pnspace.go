// Package pnspace implements QUIC packet-number spaces: the per-encryption
// level bookkeeping of next-send packet number, key phase, and packets that
// arrived before their decryption keys were available.
package pnspace

import (
	"github.com/m-lab/quic-core/acktracker"
)

// Space identifies one of the three packet-number spaces defined by RFC 9000.
type Space int

const (
	// Initial is the packet-number space for Initial packets.
	Initial Space = iota
	// Handshake is the packet-number space for Handshake packets.
	Handshake
	// AppData is the packet-number space shared by 0-RTT and 1-RTT packets.
	AppData
)

func (s Space) String() string {
	switch s {
	case Initial:
		return "Initial"
	case Handshake:
		return "Handshake"
	case AppData:
		return "AppData"
	default:
		return "Unknown"
	}
}

// MaxDeferredPackets bounds the deferred-packet list so a peer that never
// completes the handshake (and so never supplies AppData keys) cannot grow
// memory unboundedly. This cap is not specified explicitly by the protocol
// under study; the value is this package's own choice.
const MaxDeferredPackets = 32

// DeferredPacket is a datagram payload that arrived before its decryption
// key was available, held for a later retry once the key is derived.
type DeferredPacket struct {
	PacketNumber uint64
	Payload      []byte
}

// PacketNumberSpace holds the per-space state described in spec.md section 3.
type PacketNumberSpace struct {
	Sp Space

	// NextSendPacketNumber is the packet number to assign to the next
	// packet built in this space.
	NextSendPacketNumber uint64

	// Tracker records received packet numbers and outstanding ACK
	// obligations for this space.
	Tracker acktracker.Tracker

	// Deferred holds packets that arrived before keys were available.
	Deferred []DeferredPacket

	// KeyPhase is the current 1-bit key phase; only meaningful for AppData.
	KeyPhase uint8

	// AwaitingKeyUpdateConfirmation is set once a key update has been
	// initiated locally or detected from the peer, until acknowledged.
	AwaitingKeyUpdateConfirmation bool
}

// NewPacketNumberSpace creates an initialized space.
func NewPacketNumberSpace(sp Space) *PacketNumberSpace {
	return &PacketNumberSpace{
		Sp:      sp,
		Tracker: acktracker.NewTracker(),
	}
}

// AllocatePacketNumber returns the next packet number to use and advances
// the counter. Packet numbers are monotonically increasing per space
// (spec.md invariant 1).
func (p *PacketNumberSpace) AllocatePacketNumber() uint64 {
	pn := p.NextSendPacketNumber
	p.NextSendPacketNumber++
	return pn
}

// DeferPacket stores a packet that could not yet be decrypted. If the
// deferred list is already at capacity, the oldest entry is dropped to make
// room, matching the graceful-degradation policy used for range-set growth.
func (p *PacketNumberSpace) DeferPacket(pn uint64, payload []byte) {
	if len(p.Deferred) >= MaxDeferredPackets {
		p.Deferred = p.Deferred[1:]
	}
	p.Deferred = append(p.Deferred, DeferredPacket{PacketNumber: pn, Payload: payload})
}

// TakeDeferred removes and returns all deferred packets, for replay once
// keys become available.
func (p *PacketNumberSpace) TakeDeferred() []DeferredPacket {
	out := p.Deferred
	p.Deferred = nil
	return out
}
