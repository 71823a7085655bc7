// Package tlsengine defines the abstract boundary between the connection
// engine and the TLS handshake: an Engine consumes CRYPTO frame bytes and
// produces more CRYPTO bytes to send plus packet protection Keys as the
// handshake advances. TLS handshake internals are out of scope for this
// module (original_source/src/generic/tls_*.c, OpenSSL/Schannel/BoringSSL
// backends); Engine is the interface a real backend would satisfy,
// grounded on the QUIC_CRYPTO/QUIC_TLS collaboration described in
// original_source/src/core/crypto.h.
package tlsengine

import "errors"

// Level identifies one of the four QUIC encryption levels, matching
// QUIC_ENCRYPT_LEVEL in original_source/src/core/crypto.h.
type Level uint8

const (
	LevelInitial Level = iota
	LevelHandshake
	LevelZeroRTT
	LevelOneRTT
)

func (l Level) String() string {
	switch l {
	case LevelInitial:
		return "initial"
	case LevelHandshake:
		return "handshake"
	case LevelZeroRTT:
		return "0-rtt"
	case LevelOneRTT:
		return "1-rtt"
	default:
		return "unknown"
	}
}

// ErrNoKey is returned when a caller asks for protection at a level whose
// keys have not yet been derived (or have already been discarded).
var ErrNoKey = errors.New("tlsengine: no key available for requested level")

// Key performs AEAD packet protection and header protection for one
// encryption level and direction (read or write), matching the role of
// QUIC_PACKET_KEY.
type Key interface {
	// Seal appends the AEAD-sealed ciphertext (including auth tag) of
	// plaintext to dst, using nonce (built from the packet number) and
	// associatedData (the
	// packet header bytes) as required by RFC 9001 section 5.3.
	Seal(dst, nonce, plaintext, associatedData []byte) []byte

	// Open authenticates and decrypts ciphertext in place, returning the
	// plaintext (a subslice of dst) or an error on authentication
	// failure.
	Open(dst, nonce, ciphertext, associatedData []byte) ([]byte, error)

	// HeaderProtectionMask derives the 5-byte header protection mask
	// (RFC 9001 section 5.4) from a sample of ciphertext.
	HeaderProtectionMask(sample []byte) ([]byte, error)

	// Overhead returns the AEAD's fixed tag length in bytes.
	Overhead() int
}

// Engine drives the TLS handshake state machine and exposes the keys it
// derives along the way. A real implementation wraps a TLS library (e.g.
// an OpenSSL quictls backend); there is no such backend in this module.
type Engine interface {
	// ProcessData feeds newly-received CRYPTO stream bytes at level into
	// the handshake, returning any data to send back at possibly a
	// different level (e.g. a server's Handshake-level response to a
	// client's Initial-level ClientHello) and whether the handshake
	// completed as a result.
	ProcessData(level Level, data []byte) (response []byte, responseLevel Level, handshakeComplete bool, err error)

	// WriteKey returns the current send-direction key for level, or
	// ErrNoKey if it has not yet been derived or has been discarded.
	WriteKey(level Level) (Key, error)

	// ReadKey returns the current receive-direction key for level.
	ReadKey(level Level) (Key, error)

	// DiscardKeys drops all key material for level, e.g. once a higher
	// level has superseded it (RFC 9001 section 4.9).
	DiscardKeys(level Level)
}
