package cryptostream

import "testing"

func TestQueueSendAndNextSendChunk(t *testing.T) {
	s := New()
	s.QueueSend([]byte("client hello"))
	if !s.HasPendingCryptoFrame() {
		t.Fatal("HasPendingCryptoFrame() = false after QueueSend")
	}
	offset, data := s.NextSendChunk(100)
	if offset != 0 {
		t.Errorf("offset = %d, want 0", offset)
	}
	if string(data) != "client hello" {
		t.Errorf("data = %q, want %q", data, "client hello")
	}
}

func TestNextSendChunkRespectsMaxLen(t *testing.T) {
	s := New()
	s.QueueSend([]byte("0123456789"))
	_, data := s.NextSendChunk(4)
	if string(data) != "0123" {
		t.Errorf("data = %q, want %q", data, "0123")
	}
}

func TestOnSentAdvancesNextSendOffset(t *testing.T) {
	s := New()
	s.QueueSend([]byte("0123456789"))
	s.OnSent(0, 4)
	offset, data := s.NextSendChunk(100)
	if offset != 4 {
		t.Fatalf("offset = %d, want 4", offset)
	}
	if string(data) != "456789" {
		t.Errorf("data = %q, want %q", data, "456789")
	}
}

func TestOnAckedTrimsSendQueue(t *testing.T) {
	s := New()
	s.QueueSend([]byte("0123456789"))
	s.OnSent(0, 10)
	s.OnAcked(0, 10)
	if s.HasPendingCryptoFrame() {
		t.Error("HasPendingCryptoFrame() should be false once all bytes are sent and acked")
	}
	if len(s.sendQueue) != 0 {
		t.Errorf("len(sendQueue) = %d, want 0 after full ack", len(s.sendQueue))
	}
}

func TestOnLossReopensRecoveryWindow(t *testing.T) {
	s := New()
	s.QueueSend([]byte("0123456789"))
	s.OnSent(0, 10)
	if s.HasPendingCryptoFrame() {
		t.Fatal("should have nothing pending right after sending everything once")
	}
	if !s.OnLoss(2, 3) {
		t.Fatal("OnLoss should report pending data once a recovery window opens")
	}
	offset, data := s.NextSendChunk(100)
	if offset != 2 || string(data) != "234" {
		t.Errorf("NextSendChunk() = (%d, %q), want (2, \"234\")", offset, data)
	}
}

func TestOnReceiveAndRead(t *testing.T) {
	s := New()
	ready, err := s.OnReceive(0, []byte("server hello"))
	if err != nil {
		t.Fatalf("OnReceive: %v", err)
	}
	if !ready {
		t.Fatal("readyToRead = false for an in-order write")
	}
	offset, data, ok := s.Read()
	if !ok || offset != 0 || string(data) != "server hello" {
		t.Errorf("Read() = (%d, %q, %v), want (0, \"server hello\", true)", offset, data, ok)
	}
	s.Drain(uint64(len(data)))
	if _, _, ok := s.Read(); ok {
		t.Error("Read() should report nothing left after Drain consumed everything")
	}
}

func TestResetClearsState(t *testing.T) {
	s := New()
	s.QueueSend([]byte("abc"))
	s.OnReceive(0, []byte("xyz"))
	s.Reset()
	if s.HasPendingCryptoFrame() {
		t.Error("HasPendingCryptoFrame() should be false after Reset")
	}
	if _, _, ok := s.Read(); ok {
		t.Error("Read() should report nothing after Reset")
	}
}
