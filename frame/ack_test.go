package frame

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/quic-core/rangeset"
	"github.com/m-lab/quic-core/varint"
)

// buildAckedSet reproduces the range set {[2,2], [5,7], [10,12]} used in the
// worked ACK-frame encoding example.
func buildAckedSet() *rangeset.Set {
	s := rangeset.New(0)
	s.AddRange(2, 1)
	s.AddRange(5, 3)
	s.AddRange(10, 3)
	return s
}

func TestEncodeAckWorkedExample(t *testing.T) {
	acked := buildAckedSet()
	buf := EncodeAck(nil, acked, 25, nil)

	r := buf
	typ, n, err := varint.Decode(r)
	if err != nil || Type(typ) != TypeAck {
		t.Fatalf("type = %v, %v; want TypeAck", typ, err)
	}
	r = r[n:]

	largest, n, err := varint.Decode(r)
	if err != nil || largest != 12 {
		t.Fatalf("largest acked = %v, want 12 (err %v)", largest, err)
	}
	r = r[n:]

	delay, n, err := varint.Decode(r)
	if err != nil || delay != 25 {
		t.Fatalf("ack delay = %v, want 25", delay)
	}
	r = r[n:]

	count, n, err := varint.Decode(r)
	if err != nil || count != 2 {
		t.Fatalf("range count = %v, want 2", count)
	}
	r = r[n:]

	first, n, err := varint.Decode(r)
	if err != nil || first != 2 {
		t.Fatalf("first ack range = %v, want 2", first)
	}
	r = r[n:]

	gap1, n, err := varint.Decode(r)
	if err != nil || gap1 != 1 {
		t.Fatalf("gap 1 = %v, want 1", gap1)
	}
	r = r[n:]
	block1, n, err := varint.Decode(r)
	if err != nil || block1 != 2 {
		t.Fatalf("block 1 = %v, want 2", block1)
	}
	r = r[n:]

	gap2, n, err := varint.Decode(r)
	if err != nil || gap2 != 1 {
		t.Fatalf("gap 2 = %v, want 1", gap2)
	}
	r = r[n:]
	block2, n, err := varint.Decode(r)
	if err != nil || block2 != 0 {
		t.Fatalf("block 2 = %v, want 0", block2)
	}
	r = r[n:]

	if len(r) != 0 {
		t.Fatalf("unexpected trailing bytes: %v", r)
	}
}

func TestAckRoundTrip(t *testing.T) {
	acked := buildAckedSet()
	buf := EncodeAck(nil, acked, 25, nil)

	typ, n, err := varint.Decode(buf)
	if err != nil {
		t.Fatalf("failed to read frame type: %v", err)
	}

	decoded, consumed, err := DecodeAck(Type(typ), buf[n:], 0)
	if err != nil {
		t.Fatalf("DecodeAck failed: %v", err)
	}
	if consumed != len(buf)-n {
		t.Errorf("consumed %d bytes, want %d", consumed, len(buf)-n)
	}
	if decoded.AckDelay != 25 {
		t.Errorf("AckDelay = %d, want 25", decoded.AckDelay)
	}
	if diff := deep.Equal(decoded.Acked.Intervals(), acked.Intervals()); diff != nil {
		t.Errorf("round-tripped ranges differ: %v", diff)
	}
}

func TestAckRoundTripWithECN(t *testing.T) {
	acked := buildAckedSet()
	ecn := &ECN{ECT0: 3, ECT1: 0, CE: 1}
	buf := EncodeAck(nil, acked, 7, ecn)

	typ, n, err := varint.Decode(buf)
	if err != nil || Type(typ) != TypeAckECN {
		t.Fatalf("type = %v, want TypeAckECN (err %v)", typ, err)
	}

	decoded, _, err := DecodeAck(Type(typ), buf[n:], 0)
	if err != nil {
		t.Fatalf("DecodeAck failed: %v", err)
	}
	if !decoded.ECNPresent {
		t.Fatal("expected ECNPresent to be true")
	}
	if diff := deep.Equal(decoded.ECN, *ecn); diff != nil {
		t.Errorf("ECN round-trip mismatch: %v", diff)
	}
}
