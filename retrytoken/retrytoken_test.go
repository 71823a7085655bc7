package retrytoken

import (
	"testing"
	"time"
)

func testKey() [KeyLength]byte {
	var k [KeyLength]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	destCID := []byte{1, 2, 3, 4}
	now := time.Unix(1700000000, 0)
	c := Contents{TimestampUnixMilli: now.UnixMilli(), OriginalDestinationConnID: []byte{9, 9, 9}}

	tok, err := s.Seal(c, destCID)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := s.Open(tok, destCID, now.Add(time.Second), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.TimestampUnixMilli != c.TimestampUnixMilli {
		t.Errorf("timestamp mismatch: %d vs %d", got.TimestampUnixMilli, c.TimestampUnixMilli)
	}
	if string(got.OriginalDestinationConnID) != string(c.OriginalDestinationConnID) {
		t.Errorf("cid mismatch: %v vs %v", got.OriginalDestinationConnID, c.OriginalDestinationConnID)
	}
}

func TestOpenRejectsWrongCID(t *testing.T) {
	s, _ := NewSealer(testKey())
	now := time.Unix(1700000000, 0)
	tok, _ := s.Seal(Contents{TimestampUnixMilli: now.UnixMilli()}, []byte{1, 2, 3})
	if _, err := s.Open(tok, []byte{4, 5, 6}, now, 0); err != ErrInvalid {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestOpenRejectsExpired(t *testing.T) {
	s, _ := NewSealer(testKey())
	now := time.Unix(1700000000, 0)
	destCID := []byte{1, 2, 3}
	tok, _ := s.Seal(Contents{TimestampUnixMilli: now.UnixMilli()}, destCID)
	if _, err := s.Open(tok, destCID, now.Add(DefaultValidity+time.Second), 0); err != ErrExpired {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestOpenAcceptsCurrentAndPreviousRotation(t *testing.T) {
	rotation := 2 * time.Second
	s, err := NewSealerWithRotation(testKey(), rotation)
	if err != nil {
		t.Fatalf("NewSealerWithRotation: %v", err)
	}
	destCID := []byte{1, 2, 3, 4}
	sealedAt := time.Unix(1700000000, 0)
	c := Contents{TimestampUnixMilli: sealedAt.UnixMilli()}

	tok, err := s.Seal(c, destCID)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Still within the sealing rotation window: opens under the current key.
	if _, err := s.Open(tok, destCID, sealedAt.Add(rotation/2), time.Hour); err != nil {
		t.Errorf("Open within current rotation: %v", err)
	}

	// One rotation boundary later: opens under the cached previous key.
	if _, err := s.Open(tok, destCID, sealedAt.Add(rotation+rotation/2), time.Hour); err != nil {
		t.Errorf("Open within previous rotation: %v", err)
	}

	// Two rotation boundaries later: neither cached key matches anymore.
	if _, err := s.Open(tok, destCID, sealedAt.Add(2*rotation+rotation/2), time.Hour); err != ErrInvalid {
		t.Errorf("err = %v, want ErrInvalid once both keys have rotated out", err)
	}
}

func TestOpenRejectsTamperedToken(t *testing.T) {
	s, _ := NewSealer(testKey())
	now := time.Unix(1700000000, 0)
	destCID := []byte{1, 2, 3}
	tok, _ := s.Seal(Contents{TimestampUnixMilli: now.UnixMilli()}, destCID)
	tok[len(tok)-1] ^= 0xff
	if _, err := s.Open(tok, destCID, now, 0); err != ErrInvalid {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}
