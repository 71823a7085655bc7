package acktracker

import "testing"

func TestDuplicateDetection(t *testing.T) {
	tr := NewTracker()
	if dup := tr.AddPacketNumber(5); dup {
		t.Fatal("first sighting of 5 should not be a duplicate")
	}
	if dup := tr.AddPacketNumber(5); !dup {
		t.Fatal("second sighting of 5 should be a duplicate")
	}
}

func TestImmediateAckOnExplicitRequest(t *testing.T) {
	tr := NewTracker()
	if !tr.AckPacket(1, 0, ECNNotECT, Immediate) {
		t.Error("Immediate ack type should send immediately")
	}
}

func TestImmediateAckOnOutOfOrder(t *testing.T) {
	tr := NewTracker()
	tr.AckPacket(10, 0, ECNNotECT, NonEliciting)
	if !tr.AckPacket(5, 0, ECNNotECT, Eliciting) {
		t.Error("out-of-order packet should trigger an immediate ack")
	}
}

func TestImmediateAckOnThreshold(t *testing.T) {
	tr := NewTracker()
	tr.SetAckElicitingThreshold(3)
	if tr.AckPacket(1, 0, ECNNotECT, Eliciting) {
		t.Error("should not ack immediately before reaching threshold")
	}
	if tr.AckPacket(2, 0, ECNNotECT, Eliciting) {
		t.Error("should not ack immediately before reaching threshold")
	}
	if !tr.AckPacket(3, 0, ECNNotECT, Eliciting) {
		t.Error("should ack immediately once threshold is reached")
	}
}

func TestOnAckFrameWrittenAndAcked(t *testing.T) {
	tr := NewTracker()
	tr.AckPacket(1, 0, ECNNotECT, Eliciting)
	tr.AckPacket(2, 0, ECNNotECT, Eliciting)
	if !tr.HasPacketsToAck() {
		t.Fatal("expected pending packets to ack")
	}
	tr.OnAckFrameWritten()
	if tr.HasPacketsToAck() {
		t.Fatal("expected no pending packets immediately after writing ack frame")
	}
	tr.AckPacket(3, 0, ECNNotECT, Eliciting)
	if !tr.HasPacketsToAck() {
		t.Fatal("new packet should require a fresh ack")
	}
	tr.OnAckFrameAcked(3)
	if tr.PacketNumbersToAck.Len() != 0 {
		t.Fatalf("expected to-ack set emptied below 4, got %v", tr.PacketNumbersToAck.Intervals())
	}
}

func TestECNCounting(t *testing.T) {
	tr := NewTracker()
	tr.AckPacket(1, 0, ECNECT0, Eliciting)
	tr.AckPacket(2, 0, ECNCE, Eliciting)
	if tr.ReceivedECN.ECT0 != 1 || tr.ReceivedECN.CE != 1 {
		t.Fatalf("unexpected ECN counts: %+v", tr.ReceivedECN)
	}
	if !tr.NonZeroRecvECN {
		t.Fatal("expected NonZeroRecvECN to be set")
	}
}
