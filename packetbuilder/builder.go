// Package packetbuilder assembles frames into QUIC packets and QUIC
// packets into a single coalesced UDP datagram, applying AEAD packet
// protection and header protection via a tlsengine.Key supplied by the
// caller. It is grounded on original_source/src/core/packet_builder.h's
// QUIC_PACKET_BUILDER state machine, adapted from a batch-oriented,
// stack-resident C struct into a Go value the send scheduler drives one
// packet at a time.
package packetbuilder

import (
	"errors"

	"github.com/m-lab/quic-core/sentpacket"
	"github.com/m-lab/quic-core/tlsengine"
)

// MaxFramesPerPacket bounds how many frames a single packet may carry,
// matching sentpacket's bound on trackable FrameRefs.
const MaxFramesPerPacket = sentpacket.MaxFramesPerPacket

// MinimumDatagramSize is the minimum size a datagram carrying a client's
// first Initial packet must be padded to, RFC 9000 section 14.1.
const MinimumDatagramSize = 1200

// headerProtectionSampleOffset is how many bytes past the start of the
// packet number field the header-protection sample is taken from, RFC
// 9001 section 5.4.2; the packet number field is assumed to reserve a
// full 4 bytes of ciphertext after it for sampling purposes regardless
// of its actual encoded length.
const headerProtectionSampleOffset = 4

// headerProtectionSampleLength is the sample length RFC 9001 section
// 5.4.2 requires (matches the AES block size / ChaCha20 sample size).
const headerProtectionSampleLength = 16

// ErrPacketFull is returned by AddFrame when the current packet has no
// room for another frame and the caller must Finalize and start a new
// one.
var ErrPacketFull = errors.New("packetbuilder: packet is full")

// ErrNotPrepared is returned when AddFrame or Finalize is called before a
// packet has been started with a Prepare* call.
var ErrNotPrepared = errors.New("packetbuilder: no packet in progress")

// Builder accumulates one coalesced UDP datagram (Initial+Handshake+
// AppData is allowed) across successive PrepareForX/AddFrame/Finalize
// calls.
type Builder struct {
	destCID []byte
	srcCID  []byte
	maxSize int

	datagram []byte

	packetStart       int
	lengthFieldOffset int
	pnOffset          int
	pnLength          int
	payloadStart      int
	level             tlsengine.Level
	isLongHeader      bool
	frameCount        int
	isAckEliciting    bool
	isMTUProbe        bool
	frames            []sentpacket.FrameRef
	inProgress        bool

	totalDatagramsLength int
}

// NewBuilder creates a Builder targeting a peer identified by destCID,
// sending from srcCID, constrained to at most maxDatagramSize bytes per
// UDP payload.
func NewBuilder(destCID, srcCID []byte, maxDatagramSize int) *Builder {
	return &Builder{
		destCID: destCID,
		srcCID:  srcCID,
		maxSize: maxDatagramSize,
	}
}

// HasPendingDatagram reports whether any packet bytes have been written
// to the current datagram yet.
func (b *Builder) HasPendingDatagram() bool {
	return len(b.datagram) > 0
}

// remaining returns how many more bytes can be appended to the current
// datagram before hitting maxSize.
func (b *Builder) remaining() int {
	return b.maxSize - len(b.datagram)
}

// PrepareForControlFrames starts a new packet at level for control
// frames (ACK, CRYPTO, connection ID management, etc.), choosing packet
// number length from packetNumber/largestAcked. It returns false if
// there isn't enough room left in the datagram for even a minimal
// packet.
func (b *Builder) PrepareForControlFrames(level tlsengine.Level, packetNumber, largestAcked uint64, token []byte) bool {
	const minimumPacketOverhead = 32
	if b.remaining() < minimumPacketOverhead {
		return false
	}
	b.startPacket(level, packetNumber, largestAcked, token)
	return true
}

// PrepareForPathMTUDiscovery starts a new 1-RTT packet sized to probe a
// larger PMTU, padded out to probeSize once Finalize runs.
func (b *Builder) PrepareForPathMTUDiscovery(packetNumber, largestAcked uint64, probeSize int) bool {
	if probeSize > b.maxSize || b.remaining() < probeSize {
		return false
	}
	b.startPacket(tlsengine.LevelOneRTT, packetNumber, largestAcked, nil)
	b.isMTUProbe = true
	return true
}

func (b *Builder) startPacket(level tlsengine.Level, packetNumber, largestAcked uint64, token []byte) {
	b.packetStart = len(b.datagram)
	b.pnLength = encodePacketNumberLength(packetNumber, largestAcked)
	b.level = level
	b.frameCount = 0
	b.isAckEliciting = false
	b.isMTUProbe = false
	b.frames = nil

	if level == tlsengine.LevelOneRTT {
		b.isLongHeader = false
		b.datagram, b.pnOffset = writeShortHeader(b.datagram, b.destCID, b.pnLength, false, false)
	} else {
		b.isLongHeader = true
		b.datagram, b.lengthFieldOffset, b.pnOffset = writeLongHeader(
			b.datagram, levelToLongHeaderType(level), b.pnLength, b.destCID, b.srcCID, token)
	}
	b.datagram = appendPacketNumber(b.datagram, packetNumber, b.pnLength)
	b.payloadStart = len(b.datagram)
	b.inProgress = true
}

// AddFrame appends an already-encoded frame's bytes to the current
// packet, recording ref for loss-detection bookkeeping. It returns
// ErrPacketFull (without modifying the packet) if the frame would not
// fit, or if MaxFramesPerPacket has already been reached.
func (b *Builder) AddFrame(encodedFrame []byte, isAckEliciting bool, ref sentpacket.FrameRef) error {
	if !b.inProgress {
		return ErrNotPrepared
	}
	if b.frameCount >= MaxFramesPerPacket {
		return ErrPacketFull
	}
	overhead := b.encryptionOverheadEstimate()
	if len(encodedFrame)+overhead > b.remaining() {
		return ErrPacketFull
	}
	b.datagram = append(b.datagram, encodedFrame...)
	b.frameCount++
	b.frames = append(b.frames, ref)
	if isAckEliciting {
		b.isAckEliciting = true
	}
	return nil
}

// encryptionOverheadEstimate is a conservative AEAD-tag-sized margin kept
// free so a Finalize call is never surprised by running out of room
// while sealing.
func (b *Builder) encryptionOverheadEstimate() int { return 16 }

// Finalize pads and protects the current packet with key, appends it to
// the datagram, and returns the tracked metadata for loss detection. If
// padTo is nonzero and the current packet has a long header, the whole
// datagram (not just this packet) is padded with PADDING frames (zero
// bytes) up to that size before protection, per RFC 9000 section 14.1's
// minimum-Initial-datagram rule; a 1-RTT (short-header) packet is never
// padded.
func (b *Builder) Finalize(key tlsengine.Key, padTo int) (sentpacket.Metadata, error) {
	if !b.inProgress {
		return sentpacket.Metadata{}, ErrNotPrepared
	}
	if padTo > b.maxSize {
		padTo = b.maxSize
	}
	for b.isLongHeader && len(b.datagram) < padTo {
		b.datagram = append(b.datagram, 0x00) // PADDING frame type 0x00
	}

	payloadLength := len(b.datagram) - b.payloadStart + key.Overhead()
	if b.isLongHeader {
		patchLongHeaderLength(b.datagram, b.lengthFieldOffset, payloadLength)
	}

	header := append([]byte(nil), b.datagram[b.packetStart:b.payloadStart]...)
	plaintext := b.datagram[b.payloadStart:]
	nonce := make([]byte, 8)
	for i := 0; i < b.pnLength; i++ {
		nonce[8-b.pnLength+i] = header[len(header)-b.pnLength+i]
	}

	sealed := key.Seal(nil, nonce, plaintext, header)
	b.datagram = append(b.datagram[:b.payloadStart], sealed...)

	if err := b.applyHeaderProtection(key); err != nil {
		return sentpacket.Metadata{}, err
	}

	length := len(b.datagram) - b.packetStart
	b.totalDatagramsLength += length

	meta := sentpacket.Metadata{
		PacketLength:   uint16(length),
		IsAckEliciting: b.isAckEliciting,
		IsMTUProbe:     b.isMTUProbe,
		InFlight:       b.isAckEliciting || b.isMTUProbe,
		Frames:         b.frames,
	}
	b.inProgress = false
	return meta, nil
}

// applyHeaderProtection XORs the header-protection mask over the packet
// number field and the low bits of the first byte, RFC 9001 section 5.4.
func (b *Builder) applyHeaderProtection(key tlsengine.Key) error {
	sampleStart := b.pnOffset + headerProtectionSampleOffset
	if sampleStart+headerProtectionSampleLength > len(b.datagram) {
		return errors.New("packetbuilder: packet too short to sample for header protection")
	}
	sample := b.datagram[sampleStart : sampleStart+headerProtectionSampleLength]
	mask, err := key.HeaderProtectionMask(sample)
	if err != nil {
		return err
	}
	if b.isLongHeader {
		b.datagram[b.packetStart] ^= mask[0] & 0x0f
	} else {
		b.datagram[b.packetStart] ^= mask[0] & 0x1f
	}
	for i := 0; i < b.pnLength; i++ {
		b.datagram[b.pnOffset+i] ^= mask[1+i]
	}
	return nil
}

// Datagram returns the bytes built so far (possibly multiple coalesced
// packets) and resets the builder to begin a fresh datagram.
func (b *Builder) Datagram() []byte {
	out := b.datagram
	b.datagram = nil
	return out
}

// TotalDatagramsLength returns the cumulative length, across every
// Finalize call since creation, of packets this Builder has produced.
func (b *Builder) TotalDatagramsLength() int {
	return b.totalDatagramsLength
}
