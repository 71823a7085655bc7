package frame

import (
	"errors"

	"github.com/m-lab/quic-core/rangeset"
	"github.com/m-lab/quic-core/varint"
)

// ErrMalformedAck is returned when an ACK frame's ranges fail to decode to a
// consistent, non-negative set of packet numbers.
var ErrMalformedAck = errors.New("frame: malformed ACK ranges")

// ECN carries the three ECN codepoint counters an ACK frame reports, per
// RFC 9000 section 19.3.2.
type ECN struct {
	ECT0 uint64
	ECT1 uint64
	CE   uint64
}

// Ack is a decoded or to-be-encoded ACK frame. Acked holds every packet
// number the frame covers, reconstructed from the largest-acked/first-range/
// gap-range wire encoding.
type Ack struct {
	Acked      *rangeset.Set
	AckDelay   uint64 // encoded units: microseconds >> delay exponent
	ECNPresent bool
	ECN        ECN
}

// EncodeAck appends the wire encoding of an ACK frame covering acked to buf,
// in the format of RFC 9000 section 19.3: type, largest acknowledged, ACK
// delay, ACK range count, first ACK range, then (gap, ACK range) pairs for
// each subsequent range in descending order, oldest last.
//
// acked must be non-empty. If ecn is non-nil, the frame is encoded with type
// 0x03 and carries the three ECN counts; otherwise it is encoded as type
// 0x02.
func EncodeAck(buf []byte, acked *rangeset.Set, ackDelay uint64, ecn *ECN) []byte {
	n := acked.Len()
	ivs := acked.Intervals()

	if ecn != nil {
		buf = putVarint(buf, uint64(TypeAckECN))
	} else {
		buf = putVarint(buf, uint64(TypeAck))
	}

	largest := ivs[n-1].High()
	buf = putVarint(buf, largest)
	buf = putVarint(buf, ackDelay)
	buf = putVarint(buf, uint64(n-1)) // ACK Range Count: count of additional ranges
	buf = putVarint(buf, ivs[n-1].Count-1)

	// Walk the remaining intervals from highest to lowest, emitting
	// (gap, ack range) pairs.
	prevLow := ivs[n-1].Low
	for i := n - 2; i >= 0; i-- {
		iv := ivs[i]
		gap := prevLow - iv.High() - 2
		buf = putVarint(buf, gap)
		buf = putVarint(buf, iv.Count-1)
		prevLow = iv.Low
	}

	if ecn != nil {
		buf = putVarint(buf, ecn.ECT0)
		buf = putVarint(buf, ecn.ECT1)
		buf = putVarint(buf, ecn.CE)
	}
	return buf
}

// DecodeAck parses an ACK frame (the type code must already be consumed by
// the caller and passed in typ) from data, returning the decoded frame and
// the number of bytes consumed.
func DecodeAck(typ Type, data []byte, maxIntervals int) (*Ack, int, error) {
	if typ != TypeAck && typ != TypeAckECN {
		return nil, 0, errors.New("frame: not an ACK frame type")
	}
	orig := data

	largest, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedAck
	}
	data = data[n:]

	delay, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedAck
	}
	data = data[n:]

	rangeCount, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedAck
	}
	data = data[n:]

	firstRange, n, err := varint.Decode(data)
	if err != nil {
		return nil, 0, ErrMalformedAck
	}
	data = data[n:]

	if firstRange > largest {
		return nil, 0, ErrMalformedAck
	}

	acked := rangeset.New(maxIntervals)
	low := largest - firstRange
	acked.AddRange(low, firstRange+1)

	for i := uint64(0); i < rangeCount; i++ {
		gap, n, err := varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedAck
		}
		data = data[n:]

		blockLen, n, err := varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedAck
		}
		data = data[n:]

		if gap+2 > low {
			return nil, 0, ErrMalformedAck
		}
		high := low - gap - 2
		if blockLen > high {
			return nil, 0, ErrMalformedAck
		}
		low = high - blockLen
		acked.AddRange(low, blockLen+1)
	}

	out := &Ack{Acked: acked, AckDelay: delay}
	if typ == TypeAckECN {
		ect0, n, err := varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedAck
		}
		data = data[n:]
		ect1, n, err := varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedAck
		}
		data = data[n:]
		ce, n, err := varint.Decode(data)
		if err != nil {
			return nil, 0, ErrMalformedAck
		}
		data = data[n:]
		out.ECNPresent = true
		out.ECN = ECN{ECT0: ect0, ECT1: ect1, CE: ce}
	}

	return out, len(orig) - len(data), nil
}
