package cubic

import (
	"testing"
	"time"
)

const mtu = 1200

func TestInitialWindow(t *testing.T) {
	c := New(mtu)
	want := uint64(10 * mtu)
	if c.CongestionWindow() != want {
		t.Errorf("CongestionWindow() = %d, want %d", c.CongestionWindow(), want)
	}
	if !c.CanSend() {
		t.Error("expected CanSend() true with no bytes in flight")
	}
}

func TestSlowStartGrowsOnAck(t *testing.T) {
	c := New(mtu)
	before := c.CongestionWindow()
	c.OnDataSent(mtu)
	c.OnDataAcknowledged(time.Unix(0, 0), 1, mtu, 50*time.Millisecond)
	if c.CongestionWindow() <= before {
		t.Errorf("expected window to grow in slow start, got %d (was %d)", c.CongestionWindow(), before)
	}
}

func TestLossShrinksWindowByBeta(t *testing.T) {
	c := New(mtu)
	before := c.CongestionWindow()
	c.OnDataLost(5, 10, mtu, false)
	want := uint64(float64(before) * Beta)
	if c.CongestionWindow() != want {
		t.Errorf("CongestionWindow() after loss = %d, want %d", c.CongestionWindow(), want)
	}
	if c.CongestionWindow() >= before {
		t.Error("expected window to shrink after loss")
	}
}

func TestPersistentCongestionResetsToMinimum(t *testing.T) {
	c := New(mtu)
	c.OnDataLost(5, 10, mtu, true)
	want := uint64(2 * mtu)
	if c.CongestionWindow() != want {
		t.Errorf("CongestionWindow() after persistent congestion = %d, want %d", c.CongestionWindow(), want)
	}
}

func TestCanSendRespectsWindow(t *testing.T) {
	c := New(mtu)
	// Fill the window.
	c.OnDataSent(c.CongestionWindow())
	if c.CanSend() {
		t.Error("expected CanSend() false once window is full")
	}
	c.SetExemption(1)
	if !c.CanSend() {
		t.Error("expected CanSend() true with an exemption")
	}
}

func TestSpuriousCongestionEventRestoresWindow(t *testing.T) {
	c := New(mtu)
	before := c.CongestionWindow()
	c.OnDataLost(5, 10, mtu, false)
	c.OnSpuriousCongestionEvent()
	if c.CongestionWindow() != before {
		t.Errorf("CongestionWindow() after spurious event = %d, want restored %d", c.CongestionWindow(), before)
	}
}

func TestRecoveryIgnoresAcksUntilExited(t *testing.T) {
	c := New(mtu)
	c.OnDataSent(mtu)
	c.OnDataLost(1, 1, mtu, false)
	shrunk := c.CongestionWindow()
	// An ack for a packet sent before recovery started must not grow the window.
	c.OnDataAcknowledged(time.Unix(0, 0), 1, mtu, 50*time.Millisecond)
	if c.CongestionWindow() != shrunk {
		t.Errorf("window changed during recovery: %d vs %d", c.CongestionWindow(), shrunk)
	}
}
