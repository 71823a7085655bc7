// Package retrytoken implements Retry packet token generation and
// validation: the stateless, time-limited, AEAD-sealed token a server
// hands a client in a Retry packet, and later verifies on that client's
// retried Initial packet, per RFC 9000 section 8.1.2 and
// original_source/src/core/binding.h's QuicRetryTokenDecrypt.
package retrytoken

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"sync"
	"time"
)

// KeyLength is the AES-256 key size used to derive per-rotation AEAD keys.
const KeyLength = 32

// DefaultRotation is how often the stateless retry key rotates, matching
// MsQuicLib.RetryKeyRotationMs's role in original_source.
const DefaultRotation = 60 * time.Second

// ErrExpired is returned by Validate when the token's timestamp is older
// than the configured validity window.
var ErrExpired = errors.New("retrytoken: token expired")

// ErrInvalid is returned by Validate when the token fails to decrypt or
// authenticate, or is malformed.
var ErrInvalid = errors.New("retrytoken: invalid token")

// DefaultValidity is how long a retry token remains acceptable after
// issuance, matching the few-seconds-to-a-minute window recommended by
// RFC 9000 section 8.1.2.
const DefaultValidity = 15 * time.Second

// Contents is the authenticated plaintext of a retry token: enough for the
// server to later confirm the retried Initial packet came from the same
// client that was issued this token, for the same original destination
// connection ID.
type Contents struct {
	TimestampUnixMilli          int64
	OriginalDestinationConnID   []byte
	ClientAddressFingerprint    [32]byte // e.g. a hash of the client's IP
}

// Sealer seals and opens retry tokens using a stateless retry key that
// rotates every Rotation period, mirroring
// QuicPartitionGetStatelessRetryKeyForTimestamp: each key is derived from a
// base secret XOR-folded with a rotation index, and only the current and
// immediately-previous indices are ever accepted, so a token outlives
// exactly one rotation boundary before its key is discarded. The nonce is
// derived from the packet's destination CID, folded down to the AEAD's
// nonce length, with the caller-supplied destination CID also bound in as
// authenticated associated data.
type Sealer struct {
	baseSecret [KeyLength]byte
	rotation   time.Duration

	mu    sync.Mutex
	slots [2]rotatingKey
}

// rotatingKey caches the derived AEAD for one rotation index, keyed into
// one of two slots by index&1, matching QUIC_PARTITION's
// StatelessRetryKeys[2] cache.
type rotatingKey struct {
	index int64
	aead  cipher.AEAD
}

// NewSealer constructs a Sealer from a 32-byte base secret, rotating its
// derived key every DefaultRotation.
func NewSealer(key [KeyLength]byte) (*Sealer, error) {
	return NewSealerWithRotation(key, DefaultRotation)
}

// NewSealerWithRotation constructs a Sealer from a 32-byte base secret,
// rotating its derived key every rotation period.
func NewSealerWithRotation(key [KeyLength]byte, rotation time.Duration) (*Sealer, error) {
	if rotation <= 0 {
		rotation = DefaultRotation
	}
	s := &Sealer{baseSecret: key, rotation: rotation}
	// Validate the base secret derives a usable key before returning.
	if _, err := s.aeadForIndex(0); err != nil {
		return nil, err
	}
	return s, nil
}

// keyIndex returns the rotation-key index covering t, matching
// Now / MsQuicLib.RetryKeyRotationMs.
func (s *Sealer) keyIndex(t time.Time) int64 {
	return t.UnixMilli() / s.rotation.Milliseconds()
}

// aeadForIndex returns the AEAD for the given rotation index, deriving and
// caching it if it isn't already in one of the two slots.
func (s *Sealer) aeadForIndex(index int64) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := &s.slots[index&1]
	if slot.aead != nil && slot.index == index {
		return slot.aead, nil
	}

	raw := make([]byte, KeyLength)
	copy(raw, s.baseSecret[:])
	var idxBytes [8]byte
	binary.LittleEndian.PutUint64(idxBytes[:], uint64(index))
	for i := range idxBytes {
		raw[i] ^= idxBytes[i]
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	slot.index = index
	slot.aead = aead
	return aead, nil
}

// nonceFor folds destCID down to (or pads it up to) the AEAD's nonce
// length by XOR, matching QuicRetryTokenDecrypt's destination-CID-derived
// IV construction.
func nonceFor(destCID []byte, size int) []byte {
	nonce := make([]byte, size)
	for i, b := range destCID {
		nonce[i%size] ^= b
	}
	return nonce
}

// Seal produces a retry token for c, authenticated against destCID (the
// Retry packet's source connection ID, which becomes the new Initial
// packet's destination connection ID — the binding between the two is
// what lets the server later confirm the token matches the connection
// attempting to proceed). The token is sealed under the key for c's own
// rotation index, so Seal and Open agree on which key a token belongs to
// without a random nonce needing to be stored.
func (s *Sealer) Seal(c Contents, destCID []byte) ([]byte, error) {
	aead, err := s.aeadForIndex(s.keyIndex(time.UnixMilli(c.TimestampUnixMilli)))
	if err != nil {
		return nil, err
	}
	plaintext := encodeContents(c)
	nonce := nonceFor(destCID, aead.NonceSize())
	return aead.Seal(nil, nonce, plaintext, destCID), nil
}

// Open decrypts and authenticates a token produced by Seal, checking it
// against destCID and rejecting it if older than validity (pass 0 to use
// DefaultValidity). now is the current time, passed explicitly so callers
// control the clock. The token is accepted if it decrypts under either the
// key for now's rotation index or the immediately preceding one, so a
// token remains valid across exactly one rotation boundary.
func (s *Sealer) Open(token []byte, destCID []byte, now time.Time, validity time.Duration) (Contents, error) {
	if validity == 0 {
		validity = DefaultValidity
	}

	currentIndex := s.keyIndex(now)
	var plaintext []byte
	for _, index := range []int64{currentIndex, currentIndex - 1} {
		aead, err := s.aeadForIndex(index)
		if err != nil {
			continue
		}
		nonce := nonceFor(destCID, aead.NonceSize())
		if pt, err := aead.Open(nil, nonce, token, destCID); err == nil {
			plaintext = pt
			break
		}
	}
	if plaintext == nil {
		return Contents{}, ErrInvalid
	}

	c, err := decodeContents(plaintext)
	if err != nil {
		return Contents{}, ErrInvalid
	}

	issued := time.UnixMilli(c.TimestampUnixMilli)
	if now.Sub(issued) > validity || issued.After(now) {
		return Contents{}, ErrExpired
	}
	return c, nil
}

func encodeContents(c Contents) []byte {
	buf := make([]byte, 8+2+len(c.OriginalDestinationConnID)+32)
	binary.BigEndian.PutUint64(buf[0:8], uint64(c.TimestampUnixMilli))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(c.OriginalDestinationConnID)))
	copy(buf[10:10+len(c.OriginalDestinationConnID)], c.OriginalDestinationConnID)
	copy(buf[10+len(c.OriginalDestinationConnID):], c.ClientAddressFingerprint[:])
	return buf
}

func decodeContents(buf []byte) (Contents, error) {
	if len(buf) < 10 {
		return Contents{}, ErrInvalid
	}
	ts := int64(binary.BigEndian.Uint64(buf[0:8]))
	cidLen := int(binary.BigEndian.Uint16(buf[8:10]))
	if len(buf) < 10+cidLen+32 {
		return Contents{}, ErrInvalid
	}
	cid := append([]byte{}, buf[10:10+cidLen]...)
	var fp [32]byte
	copy(fp[:], buf[10+cidLen:10+cidLen+32])
	return Contents{TimestampUnixMilli: ts, OriginalDestinationConnID: cid, ClientAddressFingerprint: fp}, nil
}
