package main

import (
	"net"
	"testing"
	"time"

	"github.com/m-lab/quic-core/binding"
	"github.com/m-lab/quic-core/connection"
	"github.com/m-lab/quic-core/eventsocket"
	"github.com/m-lab/quic-core/opqueue"
	"github.com/m-lab/quic-core/worker"
)

func newTestBindingWithConnection(t *testing.T, cid []byte) (*binding.Binding, *connection.Connection) {
	t.Helper()
	c, err := connection.New(connection.Config{MaxDatagramSize: 1200, Now: time.Unix(1700000000, 0)})
	if err != nil {
		t.Fatalf("connection.New: %v", err)
	}
	b := binding.New(binding.Config{})
	if _, err := b.Lookup.AddLocalCID(cid, c); err != nil {
		t.Fatalf("AddLocalCID: %v", err)
	}
	return b, c
}

func TestDispatchPacketRoutesKnownCIDToItsWorker(t *testing.T) {
	cid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	b, c := newTestBindingWithConnection(t, cid)

	var seen *opqueue.Operation
	var gotConn *connection.Connection
	done := make(chan struct{})
	pool := worker.NewPool(1, func(conn *connection.Connection, op *opqueue.Operation) {
		seen = op
		gotConn = conn
		close(done)
	}, func(*connection.Connection, connection.TimerType, time.Time) {})
	pool.Run()
	defer pool.Stop()

	packet := append([]byte{0x40}, cid...)
	packet = append(packet, 0xAA)
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5555}

	dispatchPacket(b, pool, packet, remote)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the operation to be processed")
	}

	if seen.Type != opqueue.TypeReceivedPacket {
		t.Errorf("op.Type = %v, want TypeReceivedPacket", seen.Type)
	}
	pkt, ok := seen.Payload.(receivedPacket)
	if !ok {
		t.Fatalf("Payload has type %T, want receivedPacket", seen.Payload)
	}
	if string(pkt.data) != string(packet) {
		t.Error("queued packet bytes do not match the received datagram")
	}
	if gotConn != c {
		t.Error("operation should be queued against the connection registered for this CID")
	}
}

func TestDispatchPacketDropsUnknownCID(t *testing.T) {
	b := binding.New(binding.Config{})
	var processed bool
	pool := worker.NewPool(1, func(*connection.Connection, *opqueue.Operation) {
		processed = true
	}, func(*connection.Connection, connection.TimerType, time.Time) {})
	pool.Run()
	defer pool.Stop()

	packet := append([]byte{0x40}, []byte{9, 9, 9, 9, 9, 9, 9, 9}...)
	dispatchPacket(b, pool, packet, &net.UDPAddr{})

	if got := b.DroppedPackets(); got != 1 {
		t.Errorf("DroppedPackets() = %d, want 1", got)
	}
	if processed {
		t.Error("should not process any operation for an unknown CID")
	}
}

func TestDispatchPacketDropsShortDatagram(t *testing.T) {
	b := binding.New(binding.Config{})
	var processed bool
	pool := worker.NewPool(1, func(*connection.Connection, *opqueue.Operation) {
		processed = true
	}, func(*connection.Connection, connection.TimerType, time.Time) {})
	pool.Run()
	defer pool.Stop()

	dispatchPacket(b, pool, []byte{0x40, 0x01}, &net.UDPAddr{})

	if got := b.DroppedPackets(); got != 1 {
		t.Errorf("DroppedPackets() = %d, want 1", got)
	}
	if processed {
		t.Error("should not process any operation for a truncated datagram")
	}
}

func TestTimerHandlerIdleBeginsClose(t *testing.T) {
	c, err := connection.New(connection.Config{MaxDatagramSize: 1200, Now: time.Unix(1700000000, 0)})
	if err != nil {
		t.Fatalf("connection.New: %v", err)
	}
	h := timerHandler{events: eventsocket.NullServer()}
	h.onTimer(c, connection.TimerIdle, time.Unix(1700000100, 0))
	if c.State != connection.StateClosing {
		t.Errorf("State = %v, want StateClosing after an idle timeout", c.State)
	}
}
