// Package cid implements QUIC connection ID allocation and lifecycle
// tracking, per spec.md section 7 and original_source/src/core/cid.h.
package cid

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// Length bounds for connection IDs generated by this package, matching the
// SID+PID+payload layout in original_source/src/core/cid.h.
const (
	MaxServerIDLength = 5
	PartitionIDLength = 2
	PayloadLength     = 7
	MinRandomBytes    = 4

	MinLength = PartitionIDLength + PayloadLength
	MaxLength = MaxServerIDLength + PartitionIDLength + PayloadLength

	// ResetTokenLength is the fixed length of a stateless reset token.
	ResetTokenLength = 16
)

// ErrTooLong is returned when a caller-supplied connection ID exceeds
// MaxLength.
var ErrTooLong = errors.New("cid: connection id exceeds maximum length")

// CID is a single connection ID and its lifecycle flags, tracked either as
// a source CID (one this endpoint issued, that the peer addresses packets
// to) or a destination CID (one the peer issued, that this endpoint
// addresses packets to).
type CID struct {
	Data           []byte
	SequenceNumber uint64

	// IsInitial is set on the CID the client used in its first Initial
	// packet.
	IsInitial bool
	// NeedsToSend indicates a NEW_CONNECTION_ID or RETIRE_CONNECTION_ID
	// frame must still be sent (or resent) for this CID.
	NeedsToSend bool
	// Acknowledged is set once the peer has acked the frame announcing a
	// source CID.
	Acknowledged bool
	// UsedLocally marks a destination CID as bound to a path.
	UsedLocally bool
	// UsedByPeer marks a source CID the peer has addressed a packet to.
	UsedByPeer bool
	// Retired marks a CID as retired; once acknowledged, it may be
	// garbage collected.
	Retired bool
	// HasResetToken indicates ResetToken is populated (destination CIDs
	// only, from a peer's NEW_CONNECTION_ID frame).
	HasResetToken bool
	ResetToken    [ResetTokenLength]byte
}

// NewSource creates a source connection ID from data, which must not
// exceed MaxLength.
func NewSource(data []byte, sequenceNumber uint64) (*CID, error) {
	if len(data) > MaxLength {
		return nil, ErrTooLong
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &CID{Data: buf, SequenceNumber: sequenceNumber, NeedsToSend: sequenceNumber != 0}, nil
}

// NewRandomDestination generates a random destination CID of MinLength
// bytes, as a client uses for its first Initial packet's destination CID
// before it has learned the server's chosen CID.
func NewRandomDestination() (*CID, error) {
	buf := make([]byte, MinLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return &CID{Data: buf, IsInitial: true}, nil
}

// NewRandomSource generates a random source CID of the requested length
// (raised to MinLength if shorter; ErrTooLong if above MaxLength or if the
// prefix leaves fewer than MinRandomBytes random bytes), following the SID/PID/payload split
// in original_source/src/core/cid.h: the caller-supplied prefix (e.g. for
// partition routing) occupies the leading bytes, and the remainder is
// random.
func NewRandomSource(prefix []byte, length int, sequenceNumber uint64) (*CID, error) {
	if length < MinLength {
		length = MinLength
	}
	if length > MaxLength {
		return nil, ErrTooLong
	}
	if len(prefix) > length-MinRandomBytes {
		return nil, ErrTooLong
	}
	buf := make([]byte, length)
	copy(buf, prefix)
	if _, err := rand.Read(buf[len(prefix):]); err != nil {
		return nil, err
	}
	return &CID{Data: buf, SequenceNumber: sequenceNumber, NeedsToSend: sequenceNumber != 0}, nil
}

// String renders the CID as lowercase hex, matching QuicCidToStr in
// original_source/src/core/cid.h.
func (c *CID) String() string {
	return hex.EncodeToString(c.Data)
}

// Len returns the number of bytes in the CID.
func (c *CID) Len() int {
	return len(c.Data)
}

// Equal reports whether two CIDs carry the same bytes.
func (c *CID) Equal(other *CID) bool {
	if other == nil || len(c.Data) != len(other.Data) {
		return false
	}
	for i := range c.Data {
		if c.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// Retire marks the CID retired, leaving it to the owning registry to
// garbage-collect once any outstanding RETIRE_CONNECTION_ID frame has been
// acknowledged.
func (c *CID) Retire() {
	c.Retired = true
	c.NeedsToSend = true
}
