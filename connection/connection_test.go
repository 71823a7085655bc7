package connection

import (
	"testing"
	"time"

	"github.com/m-lab/quic-core/sendsched"
	"github.com/m-lab/quic-core/sentpacket"
	"github.com/m-lab/quic-core/tlsengine"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	now := time.Unix(1700000000, 0)
	c, err := New(Config{MaxDatagramSize: 1200, Now: now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewConnectionAssignsUniqueTraceID(t *testing.T) {
	a := newTestConnection(t)
	b := newTestConnection(t)
	if a.TraceID == "" {
		t.Fatal("TraceID should not be empty")
	}
	if a.TraceID == b.TraceID {
		t.Errorf("two connections got the same TraceID %q", a.TraceID)
	}
}

func TestNewConnectionStartsHandshaking(t *testing.T) {
	c := newTestConnection(t)
	if c.State != StateHandshaking {
		t.Errorf("State = %v, want StateHandshaking", c.State)
	}
	if c.Congestion.Name() != "cubic" {
		t.Errorf("Congestion.Name() = %q, want cubic as the default algorithm", c.Congestion.Name())
	}
}

func TestLevelForCollapsesZeroRTTOntoAppData(t *testing.T) {
	c := newTestConnection(t)
	if c.LevelFor(tlsengine.LevelZeroRTT) != c.AppData {
		t.Error("LevelFor(LevelZeroRTT) should return the AppData level bundle")
	}
	if c.LevelFor(tlsengine.LevelOneRTT) != c.AppData {
		t.Error("LevelFor(LevelOneRTT) should return the AppData level bundle")
	}
	if c.LevelFor(tlsengine.LevelInitial) != c.Initial {
		t.Error("LevelFor(LevelInitial) should return the Initial level bundle")
	}
}

func TestOnHandshakeConfirmedDiscardsInitialKeys(t *testing.T) {
	c := newTestConnection(t)
	now := time.Unix(1700000010, 0)
	c.OnHandshakeConfirmed(now)
	if c.State != StateConnected {
		t.Errorf("State = %v, want StateConnected", c.State)
	}
	if !c.Initial.Discarded {
		t.Error("Initial keys should be discarded once the handshake is confirmed")
	}
}

func TestDiscardKeysIsIdempotent(t *testing.T) {
	c := newTestConnection(t)
	c.DiscardKeys(tlsengine.LevelHandshake)
	c.DiscardKeys(tlsengine.LevelHandshake)
	if !c.Handshake.Discarded {
		t.Error("Handshake level should be discarded")
	}
}

func TestOnPacketSentFeedsCongestionAndActivity(t *testing.T) {
	c := newTestConnection(t)
	before := c.IdleTimeoutDeadline
	now := before.Add(time.Second)
	c.OnPacketSent(tlsengine.LevelOneRTT, sentpacket.Metadata{
		PacketNumber:   0,
		SentTime:       now,
		PacketLength:   100,
		IsAckEliciting: true,
		InFlight:       true,
	}, now)
	if !c.IdleTimeoutDeadline.After(before) {
		t.Error("OnPacketSent with an ack-eliciting packet should push out the idle deadline")
	}
	if c.Congestion.BytesInFlight() != 100 {
		t.Errorf("BytesInFlight() = %d, want 100", c.Congestion.BytesInFlight())
	}
}

func TestOnAckReceivedUpdatesLossDetectorAndCongestion(t *testing.T) {
	c := newTestConnection(t)
	sendTime := time.Unix(1700000000, 0)
	c.OnPacketSent(tlsengine.LevelOneRTT, sentpacket.Metadata{
		PacketNumber:   0,
		SentTime:       sendTime,
		PacketLength:   500,
		IsAckEliciting: true,
		InFlight:       true,
	}, sendTime)

	ackTime := sendTime.Add(50 * time.Millisecond)
	result := c.OnAckReceived(tlsengine.LevelOneRTT, []uint64{0}, 0, ackTime)
	if len(result.NewlyAcked) != 1 {
		t.Fatalf("len(NewlyAcked) = %d, want 1", len(result.NewlyAcked))
	}
	if c.Congestion.BytesInFlight() != 0 {
		t.Errorf("BytesInFlight() = %d, want 0 after the only packet is acked", c.Congestion.BytesInFlight())
	}
}

func TestBeginCloseClearsConnCloseMaskFlags(t *testing.T) {
	c := newTestConnection(t)
	c.Scheduler.SetFlag(sendsched.FlagMaxData)
	c.BeginClose(0x1, "bye", false)
	if c.State != StateClosing {
		t.Errorf("State = %v, want StateClosing", c.State)
	}
	code, reason, isApp := c.CloseError()
	if code != 0x1 || reason != "bye" || isApp {
		t.Errorf("CloseError() = (%d, %q, %v), want (1, \"bye\", false)", code, reason, isApp)
	}
	if c.Scheduler.HasFlag(sendsched.FlagMaxData) {
		t.Error("BeginClose should clear flags in sendsched.ConnClosedMask")
	}
	if !c.Scheduler.HasFlag(sendsched.FlagConnectionClose) {
		t.Error("BeginClose should set FlagConnectionClose for a non-app close")
	}
}

func TestBeginCloseIsIdempotent(t *testing.T) {
	c := newTestConnection(t)
	c.BeginClose(1, "first", false)
	c.BeginClose(2, "second", true)
	code, reason, _ := c.CloseError()
	if code != 1 || reason != "first" {
		t.Error("a second BeginClose should not overwrite the first close reason")
	}
}

func TestEnterDrainingOnlyFromClosing(t *testing.T) {
	c := newTestConnection(t)
	c.EnterDraining()
	if c.State != StateHandshaking {
		t.Error("EnterDraining should be a no-op outside StateClosing")
	}
	c.BeginClose(0, "", false)
	c.EnterDraining()
	if c.State != StateDraining {
		t.Errorf("State = %v, want StateDraining", c.State)
	}
}

func TestIsIdleRespectsDeadline(t *testing.T) {
	c := newTestConnection(t)
	if c.IsIdle(c.IdleTimeoutDeadline.Add(-time.Second)) {
		t.Error("IsIdle should be false before the deadline")
	}
	if !c.IsIdle(c.IdleTimeoutDeadline.Add(time.Second)) {
		t.Error("IsIdle should be true after the deadline")
	}
}
