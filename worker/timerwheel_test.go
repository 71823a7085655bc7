package worker

import (
	"testing"
	"time"

	"github.com/m-lab/quic-core/connection"
)

func newTestConn(t *testing.T) *connection.Connection {
	t.Helper()
	c, err := connection.New(connection.Config{MaxDatagramSize: 1200, Now: time.Unix(1700000000, 0)})
	if err != nil {
		t.Fatalf("connection.New: %v", err)
	}
	return c
}

func TestMultiTimerWheelNextDeadlineEmpty(t *testing.T) {
	w := NewMultiTimerWheel()
	if _, ok := w.NextDeadline(); ok {
		t.Error("NextDeadline on an empty wheel should report ok=false")
	}
}

func TestMultiTimerWheelSchedulePicksEarliestAcrossConnections(t *testing.T) {
	w := NewMultiTimerWheel()
	a, b := newTestConn(t), newTestConn(t)
	base := time.Unix(1700000000, 0)
	w.Schedule(a, connection.TimerIdle, base.Add(5*time.Second))
	w.Schedule(b, connection.TimerLossDetection, base.Add(1*time.Second))

	deadline, ok := w.NextDeadline()
	if !ok || !deadline.Equal(base.Add(1*time.Second)) {
		t.Fatalf("NextDeadline = (%v, %v), want (%v, true)", deadline, ok, base.Add(1*time.Second))
	}
}

func TestMultiTimerWheelScheduleReplacesExistingEntry(t *testing.T) {
	w := NewMultiTimerWheel()
	c := newTestConn(t)
	base := time.Unix(1700000000, 0)
	w.Schedule(c, connection.TimerIdle, base.Add(10*time.Second))
	w.Schedule(c, connection.TimerIdle, base.Add(1*time.Second))

	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after re-scheduling the same (conn, timer)", w.Len())
	}
	deadline, _ := w.NextDeadline()
	if !deadline.Equal(base.Add(1 * time.Second)) {
		t.Errorf("NextDeadline = %v, want the re-armed deadline %v", deadline, base.Add(1*time.Second))
	}
}

func TestMultiTimerWheelCancelDisarms(t *testing.T) {
	w := NewMultiTimerWheel()
	c := newTestConn(t)
	w.Schedule(c, connection.TimerIdle, time.Unix(1700000000, 0))
	w.Cancel(c, connection.TimerIdle)
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Cancel", w.Len())
	}
}

func TestMultiTimerWheelCancelConnectionDisarmsAllItsTimers(t *testing.T) {
	w := NewMultiTimerWheel()
	a, b := newTestConn(t), newTestConn(t)
	base := time.Unix(1700000000, 0)
	w.Schedule(a, connection.TimerIdle, base)
	w.Schedule(a, connection.TimerLossDetection, base.Add(time.Second))
	w.Schedule(b, connection.TimerIdle, base)

	w.CancelConnection(a)
	if w.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only b's timer left)", w.Len())
	}
	fired := w.Expired(base.Add(time.Hour))
	if len(fired) != 1 || fired[0].Conn != b {
		t.Errorf("Expired = %+v, want exactly b's timer", fired)
	}
}

func TestMultiTimerWheelExpiredPopsOnlyDueTimers(t *testing.T) {
	w := NewMultiTimerWheel()
	a, b := newTestConn(t), newTestConn(t)
	base := time.Unix(1700000000, 0)
	w.Schedule(a, connection.TimerIdle, base.Add(1*time.Second))
	w.Schedule(b, connection.TimerIdle, base.Add(10*time.Second))

	fired := w.Expired(base.Add(2 * time.Second))
	if len(fired) != 1 || fired[0].Conn != a || fired[0].Timer != connection.TimerIdle {
		t.Fatalf("Expired = %+v, want exactly a's TimerIdle", fired)
	}
	if w.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (b's timer still armed)", w.Len())
	}
}

func TestMultiTimerWheelExpiredWithNothingDueReturnsEmpty(t *testing.T) {
	w := NewMultiTimerWheel()
	c := newTestConn(t)
	w.Schedule(c, connection.TimerIdle, time.Unix(1700000100, 0))
	fired := w.Expired(time.Unix(1700000000, 0))
	if len(fired) != 0 {
		t.Errorf("Expired = %+v, want none due yet", fired)
	}
}
