package varint

import (
	"testing"

	"github.com/go-test/deep"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    uint64
		n    int
	}{
		{"zero", 0, 1},
		{"one-byte-max", 0x3f, 1},
		{"two-byte-min", 0x40, 2},
		{"two-byte-max", 0x3fff, 2},
		{"four-byte-min", 0x4000, 4},
		{"four-byte-max", 0x3fffffff, 4},
		{"eight-byte-min", 0x40000000, 8},
		{"eight-byte-max", MaxValue, 8},
		{"rfc9000-example", 151288809941952652, 8},
		{"rfc9000-example-494878333", 494878333, 4},
		{"rfc9000-example-15293", 15293, 2},
		{"rfc9000-example-37", 37, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(nil, tt.v)
			if err != nil {
				t.Fatalf("Encode(%d): %v", tt.v, err)
			}
			if len(encoded) != tt.n {
				t.Fatalf("Encode(%d) produced %d bytes, want %d", tt.v, len(encoded), tt.n)
			}
			if got := Len(tt.v); got != tt.n {
				t.Errorf("Len(%d) = %d, want %d", tt.v, got, tt.n)
			}
			decoded, consumed, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if consumed != tt.n {
				t.Errorf("Decode consumed %d bytes, want %d", consumed, tt.n)
			}
			if diff := deep.Equal(decoded, tt.v); diff != nil {
				t.Errorf("round trip mismatch: %v", diff)
			}
		})
	}
}

func TestRFC9000WireExample(t *testing.T) {
	// RFC 9000 Appendix A.1: 0xc2197c5eff14e88c encodes 151288809941952652.
	wire := []byte{0xc2, 0x19, 0x7c, 0x5e, 0xff, 0x14, 0xe8, 0x8c}
	v, n, err := Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Fatalf("consumed %d bytes, want 8", n)
	}
	if v != 151288809941952652 {
		t.Fatalf("got %d, want 151288809941952652", v)
	}
	encoded, err := Encode(nil, v)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(encoded, wire); diff != nil {
		t.Errorf("re-encode mismatch: %v", diff)
	}
}

func TestTooLarge(t *testing.T) {
	if _, err := Encode(nil, MaxValue+1); err != ErrTooLarge {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

func TestBufferTooSmall(t *testing.T) {
	// 0xc0 indicates an 8-byte value but only 3 bytes follow.
	if _, _, err := Decode([]byte{0xc0, 0x01, 0x02}); err != ErrBufferTooSmall {
		t.Fatalf("got %v, want ErrBufferTooSmall", err)
	}
	if _, _, err := Decode(nil); err != ErrBufferTooSmall {
		t.Fatalf("got %v, want ErrBufferTooSmall", err)
	}
}
