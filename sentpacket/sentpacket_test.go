package sentpacket

import (
	"testing"
	"time"
)

func TestOnPacketSentTracksInFlight(t *testing.T) {
	tr := NewTracker()
	tr.OnPacketSent(Metadata{PacketNumber: 1, PacketLength: 100, InFlight: true})
	tr.OnPacketSent(Metadata{PacketNumber: 2, PacketLength: 50, InFlight: false})
	if tr.PacketsInFlight() != 1 {
		t.Errorf("PacketsInFlight() = %d, want 1", tr.PacketsInFlight())
	}
	if tr.BytesInFlight() != 100 {
		t.Errorf("BytesInFlight() = %d, want 100", tr.BytesInFlight())
	}
}

func TestAckRemovesAndReturnsMetadata(t *testing.T) {
	tr := NewTracker()
	tr.OnPacketSent(Metadata{PacketNumber: 5, PacketLength: 200, InFlight: true, SentTime: time.Unix(0, 0)})
	m, ok := tr.Ack(5)
	if !ok || m.PacketNumber != 5 {
		t.Fatalf("Ack(5) = %v, %v", m, ok)
	}
	if tr.PacketsInFlight() != 0 {
		t.Errorf("PacketsInFlight() = %d, want 0 after ack", tr.PacketsInFlight())
	}
	if _, ok := tr.Get(5); ok {
		t.Error("expected packet 5 to no longer be tracked after ack")
	}
}

func TestDeclareLostMovesToLostSet(t *testing.T) {
	tr := NewTracker()
	tr.OnPacketSent(Metadata{PacketNumber: 1, PacketLength: 100, InFlight: true})
	m, ok := tr.DeclareLost(1)
	if !ok || m.PacketNumber != 1 {
		t.Fatalf("DeclareLost(1) = %v, %v", m, ok)
	}
	if tr.PacketsInFlight() != 0 {
		t.Errorf("PacketsInFlight() = %d, want 0", tr.PacketsInFlight())
	}
	if _, ok := tr.Ack(1); ok {
		t.Error("a declared-lost packet should not be ack-able via the outstanding set")
	}
}

func TestDiscardBelow(t *testing.T) {
	tr := NewTracker()
	tr.OnPacketSent(Metadata{PacketNumber: 1, PacketLength: 10, InFlight: true})
	tr.OnPacketSent(Metadata{PacketNumber: 2, PacketLength: 10, InFlight: true})
	tr.OnPacketSent(Metadata{PacketNumber: 3, PacketLength: 10, InFlight: true})
	tr.DiscardBelow(3)
	if len(tr.Outstanding()) != 1 || tr.Outstanding()[0].PacketNumber != 3 {
		t.Fatalf("Outstanding() = %v", tr.Outstanding())
	}
	if tr.PacketsInFlight() != 1 {
		t.Errorf("PacketsInFlight() = %d, want 1", tr.PacketsInFlight())
	}
}

func TestOutstandingOrderedByPacketNumber(t *testing.T) {
	tr := NewTracker()
	for _, pn := range []uint64{3, 1, 2} {
		tr.OnPacketSent(Metadata{PacketNumber: pn})
	}
	out := tr.Outstanding()
	for i := 1; i < len(out); i++ {
		if out[i].PacketNumber < out[i-1].PacketNumber {
			t.Fatalf("Outstanding() not sorted: %v", out)
		}
	}
}
