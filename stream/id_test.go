package stream

import "testing"

func TestTypeBitsRoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeClientBidi, TypeServerBidi, TypeClientUnidi, TypeServerUnidi} {
		for count := uint64(0); count < 5; count++ {
			id := New(typ, count)
			if id.Type() != typ {
				t.Errorf("New(%v, %d).Type() = %v, want %v", typ, count, id.Type(), typ)
			}
			if id.Count() != count {
				t.Errorf("New(%v, %d).Count() = %d, want %d", typ, count, id.Count(), count)
			}
		}
	}
}

func TestIsClientInitiatedAndBidirectional(t *testing.T) {
	cases := []struct {
		id              ID
		clientInitiated bool
		bidirectional   bool
	}{
		{New(TypeClientBidi, 0), true, true},
		{New(TypeServerBidi, 0), false, true},
		{New(TypeClientUnidi, 0), true, false},
		{New(TypeServerUnidi, 0), false, false},
	}
	for _, c := range cases {
		if got := c.id.IsClientInitiated(); got != c.clientInitiated {
			t.Errorf("id=%d IsClientInitiated() = %v, want %v", c.id, got, c.clientInitiated)
		}
		if got := c.id.IsBidirectional(); got != c.bidirectional {
			t.Errorf("id=%d IsBidirectional() = %v, want %v", c.id, got, c.bidirectional)
		}
	}
}

func TestWireExampleStreamIDs(t *testing.T) {
	// RFC 9000 section 2.1's worked examples.
	if ID(0).Type() != TypeClientBidi {
		t.Error("stream 0 should be client-initiated bidirectional")
	}
	if ID(1).Type() != TypeServerBidi {
		t.Error("stream 1 should be server-initiated bidirectional")
	}
	if ID(2).Type() != TypeClientUnidi {
		t.Error("stream 2 should be client-initiated unidirectional")
	}
	if ID(3).Type() != TypeServerUnidi {
		t.Error("stream 3 should be server-initiated unidirectional")
	}
}
