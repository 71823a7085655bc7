// Package transportparams implements the QUIC transport parameters TLS
// extension (RFC 9000 section 18), grounded on
// original_source/src/core/transport_params.h. Each parameter is encoded as
// a TLV: a varint ID, a varint length, then that many bytes of value.
package transportparams

import (
	"errors"

	"github.com/m-lab/quic-core/varint"
)

// Parameter IDs, per RFC 9000 section 18.2.
const (
	IDOriginalDestinationConnectionID Type = 0x00
	IDMaxIdleTimeout                  Type = 0x01
	IDStatelessResetToken             Type = 0x02
	IDMaxUDPPayloadSize               Type = 0x03
	IDInitialMaxData                  Type = 0x04
	IDInitialMaxStreamDataBidiLocal   Type = 0x05
	IDInitialMaxStreamDataBidiRemote  Type = 0x06
	IDInitialMaxStreamDataUni         Type = 0x07
	IDInitialMaxStreamsBidi           Type = 0x08
	IDInitialMaxStreamsUni            Type = 0x09
	IDAckDelayExponent                Type = 0x0a
	IDMaxAckDelay                     Type = 0x0b
	IDDisableActiveMigration          Type = 0x0c
	IDPreferredAddress                Type = 0x0d
	IDActiveConnectionIDLimit         Type = 0x0e
	IDInitialSourceConnectionID       Type = 0x0f
	IDRetrySourceConnectionID         Type = 0x10
)

// Type is a transport parameter ID.
type Type uint64

// Defaults and bounds, per original_source/src/core/transport_params.h.
const (
	DefaultMaxUDPPayloadSize = 65527
	MinMaxUDPPayloadSize     = 1200
	MaxMaxUDPPayloadSize     = 65527

	DefaultAckDelayExponent = 3
	MaxAckDelayExponent     = 20

	DefaultMaxAckDelayMillis = 25
	MaxMaxAckDelayMillis     = (1 << 14) - 1

	DefaultActiveConnectionIDLimit = 2
	MinActiveConnectionIDLimit     = 2

	// MaxStreamsLimit is the largest value a MAX_STREAMS frame or the
	// corresponding transport parameter may carry: any larger value would
	// let a stream ID overflow the varint encoding.
	MaxStreamsLimit = (uint64(1) << 60) - 1
)

// ErrMalformed is returned when the transport parameter buffer is
// truncated or a value fails its range check.
var ErrMalformed = errors.New("transportparams: malformed transport parameters")

// Params holds the transport parameters exchanged during the handshake.
// Fields at their Go zero value (or nil, for the connection IDs and
// StatelessResetToken) are treated as absent, taking the RFC 9000 default
// where one exists. There is no preferred-address field: Decode skips
// that parameter.
type Params struct {
	OriginalDestinationConnectionID []byte
	MaxIdleTimeout                  uint64 // milliseconds
	StatelessResetToken             *[16]byte
	MaxUDPPayloadSize               uint64
	InitialMaxData                  uint64
	InitialMaxStreamDataBidiLocal   uint64
	InitialMaxStreamDataBidiRemote  uint64
	InitialMaxStreamDataUni         uint64
	InitialMaxStreamsBidi           uint64
	InitialMaxStreamsUni            uint64
	AckDelayExponent                uint64
	MaxAckDelay                     uint64 // milliseconds
	DisableActiveMigration          bool
	ActiveConnectionIDLimit         uint64
	InitialSourceConnectionID       []byte
	RetrySourceConnectionID         []byte

	// set tracks which optional IDs were present on decode, so re-encoding
	// (or a caller inspecting the struct) can distinguish "absent, use
	// default" from "explicitly zero".
	set map[Type]bool
}

// WithDefaults returns a copy of p with RFC 9000 default values filled in
// for any parameter that was never set.
func (p Params) WithDefaults() Params {
	if p.MaxUDPPayloadSize == 0 {
		p.MaxUDPPayloadSize = DefaultMaxUDPPayloadSize
	}
	if !p.isSet(IDAckDelayExponent) {
		p.AckDelayExponent = DefaultAckDelayExponent
	}
	if !p.isSet(IDMaxAckDelay) {
		p.MaxAckDelay = DefaultMaxAckDelayMillis
	}
	if !p.isSet(IDActiveConnectionIDLimit) {
		p.ActiveConnectionIDLimit = DefaultActiveConnectionIDLimit
	}
	return p
}

func (p Params) isSet(t Type) bool {
	return p.set != nil && p.set[t]
}

func putBytesParam(buf []byte, id Type, value []byte) []byte {
	buf, _ = varint.Encode(buf, uint64(id))
	buf, _ = varint.Encode(buf, uint64(len(value)))
	return append(buf, value...)
}

func putVarintParam(buf []byte, id Type, value uint64) []byte {
	buf, _ = varint.Encode(buf, uint64(id))
	buf, _ = varint.Encode(buf, uint64(varint.Len(value)))
	buf, _ = varint.Encode(buf, value)
	return buf
}

func putFlagParam(buf []byte, id Type) []byte {
	buf, _ = varint.Encode(buf, uint64(id))
	buf, _ = varint.Encode(buf, 0)
	return buf
}

// Encode appends the wire encoding of every present parameter in p to buf.
func Encode(buf []byte, p Params) []byte {
	if p.OriginalDestinationConnectionID != nil {
		buf = putBytesParam(buf, IDOriginalDestinationConnectionID, p.OriginalDestinationConnectionID)
	}
	if p.MaxIdleTimeout != 0 {
		buf = putVarintParam(buf, IDMaxIdleTimeout, p.MaxIdleTimeout)
	}
	if p.StatelessResetToken != nil {
		buf = putBytesParam(buf, IDStatelessResetToken, p.StatelessResetToken[:])
	}
	if p.MaxUDPPayloadSize != 0 {
		buf = putVarintParam(buf, IDMaxUDPPayloadSize, p.MaxUDPPayloadSize)
	}
	if p.InitialMaxData != 0 {
		buf = putVarintParam(buf, IDInitialMaxData, p.InitialMaxData)
	}
	if p.InitialMaxStreamDataBidiLocal != 0 {
		buf = putVarintParam(buf, IDInitialMaxStreamDataBidiLocal, p.InitialMaxStreamDataBidiLocal)
	}
	if p.InitialMaxStreamDataBidiRemote != 0 {
		buf = putVarintParam(buf, IDInitialMaxStreamDataBidiRemote, p.InitialMaxStreamDataBidiRemote)
	}
	if p.InitialMaxStreamDataUni != 0 {
		buf = putVarintParam(buf, IDInitialMaxStreamDataUni, p.InitialMaxStreamDataUni)
	}
	if p.InitialMaxStreamsBidi != 0 {
		buf = putVarintParam(buf, IDInitialMaxStreamsBidi, p.InitialMaxStreamsBidi)
	}
	if p.InitialMaxStreamsUni != 0 {
		buf = putVarintParam(buf, IDInitialMaxStreamsUni, p.InitialMaxStreamsUni)
	}
	if p.isSet(IDAckDelayExponent) {
		buf = putVarintParam(buf, IDAckDelayExponent, p.AckDelayExponent)
	}
	if p.isSet(IDMaxAckDelay) {
		buf = putVarintParam(buf, IDMaxAckDelay, p.MaxAckDelay)
	}
	if p.DisableActiveMigration {
		buf = putFlagParam(buf, IDDisableActiveMigration)
	}
	if p.isSet(IDActiveConnectionIDLimit) {
		buf = putVarintParam(buf, IDActiveConnectionIDLimit, p.ActiveConnectionIDLimit)
	}
	if p.InitialSourceConnectionID != nil {
		buf = putBytesParam(buf, IDInitialSourceConnectionID, p.InitialSourceConnectionID)
	}
	if p.RetrySourceConnectionID != nil {
		buf = putBytesParam(buf, IDRetrySourceConnectionID, p.RetrySourceConnectionID)
	}
	return buf
}

// Decode parses a transport parameters buffer into a Params value,
// validating range constraints from original_source/src/core/transport_params.h.
func Decode(data []byte) (Params, error) {
	var p Params
	p.set = make(map[Type]bool)

	for len(data) > 0 {
		idVal, n, err := varint.Decode(data)
		if err != nil {
			return Params{}, ErrMalformed
		}
		data = data[n:]
		id := Type(idVal)

		length, n, err := varint.Decode(data)
		if err != nil {
			return Params{}, ErrMalformed
		}
		data = data[n:]

		if uint64(len(data)) < length {
			return Params{}, ErrMalformed
		}
		value := data[:length]
		data = data[length:]
		p.set[id] = true

		switch id {
		case IDOriginalDestinationConnectionID:
			p.OriginalDestinationConnectionID = append([]byte{}, value...)
		case IDMaxIdleTimeout:
			if p.MaxIdleTimeout, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
		case IDStatelessResetToken:
			if len(value) != 16 {
				return Params{}, ErrMalformed
			}
			var tok [16]byte
			copy(tok[:], value)
			p.StatelessResetToken = &tok
		case IDMaxUDPPayloadSize:
			if p.MaxUDPPayloadSize, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
			if p.MaxUDPPayloadSize < MinMaxUDPPayloadSize || p.MaxUDPPayloadSize > MaxMaxUDPPayloadSize {
				return Params{}, ErrMalformed
			}
		case IDInitialMaxData:
			if p.InitialMaxData, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
		case IDInitialMaxStreamDataBidiLocal:
			if p.InitialMaxStreamDataBidiLocal, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
		case IDInitialMaxStreamDataBidiRemote:
			if p.InitialMaxStreamDataBidiRemote, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
		case IDInitialMaxStreamDataUni:
			if p.InitialMaxStreamDataUni, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
		case IDInitialMaxStreamsBidi:
			if p.InitialMaxStreamsBidi, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
			if p.InitialMaxStreamsBidi > MaxStreamsLimit {
				return Params{}, ErrMalformed
			}
		case IDInitialMaxStreamsUni:
			if p.InitialMaxStreamsUni, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
			if p.InitialMaxStreamsUni > MaxStreamsLimit {
				return Params{}, ErrMalformed
			}
		case IDAckDelayExponent:
			if p.AckDelayExponent, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
			if p.AckDelayExponent > MaxAckDelayExponent {
				return Params{}, ErrMalformed
			}
		case IDMaxAckDelay:
			if p.MaxAckDelay, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
			if p.MaxAckDelay > MaxMaxAckDelayMillis {
				return Params{}, ErrMalformed
			}
		case IDDisableActiveMigration:
			if len(value) != 0 {
				return Params{}, ErrMalformed
			}
			p.DisableActiveMigration = true
		case IDActiveConnectionIDLimit:
			if p.ActiveConnectionIDLimit, err = decodeVarintValue(value); err != nil {
				return Params{}, err
			}
			if p.ActiveConnectionIDLimit < MinActiveConnectionIDLimit {
				return Params{}, ErrMalformed
			}
		case IDInitialSourceConnectionID:
			p.InitialSourceConnectionID = append([]byte{}, value...)
		case IDRetrySourceConnectionID:
			p.RetrySourceConnectionID = append([]byte{}, value...)
		default:
			// Unknown parameters are ignored, per RFC 9000 section 7.4.1.
		}
	}

	return p, nil
}

func decodeVarintValue(value []byte) (uint64, error) {
	v, n, err := varint.Decode(value)
	if err != nil || n != len(value) {
		return 0, ErrMalformed
	}
	return v, nil
}
