package binding

import "errors"

// ErrShortPacket is returned by PeekDestinationCID when packet is
// shorter than the header its first byte advertises.
var ErrShortPacket = errors.New("binding: packet shorter than its header")

// PeekDestinationCID extracts a received UDP payload's destination
// connection ID without decrypting it, just enough to demultiplex the
// packet through a Lookup before any connection-specific processing
// begins. Grounded on RFC 9000 section 17.2 (long header: one flags
// byte, a 4-byte version, a 1-byte DCID length, then the DCID) and
// section 17.3 (short header: the DCID immediately follows the flags
// byte, at a length the receiver alone knows — shortHeaderCIDLength —
// since this implementation never varies the length of CIDs it asks
// peers to use).
func PeekDestinationCID(packet []byte, shortHeaderCIDLength int) ([]byte, error) {
	if len(packet) < 1 {
		return nil, ErrShortPacket
	}
	isLongHeader := packet[0]&0x80 != 0
	if !isLongHeader {
		end := 1 + shortHeaderCIDLength
		if len(packet) < end {
			return nil, ErrShortPacket
		}
		return packet[1:end], nil
	}

	const versionLength = 4
	dcidLenOffset := 1 + versionLength
	if len(packet) < dcidLenOffset+1 {
		return nil, ErrShortPacket
	}
	dcidLen := int(packet[dcidLenOffset])
	start := dcidLenOffset + 1
	end := start + dcidLen
	if len(packet) < end {
		return nil, ErrShortPacket
	}
	return packet[start:end], nil
}
