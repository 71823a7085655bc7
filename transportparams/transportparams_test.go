package transportparams

import (
	"testing"

	"github.com/go-test/deep"
)

func TestRoundTripBasic(t *testing.T) {
	in := Params{
		InitialMaxData:                1048576,
		InitialMaxStreamDataBidiLocal: 65536,
		InitialMaxStreamsBidi:         100,
		MaxIdleTimeout:                30000,
		InitialSourceConnectionID:     []byte{1, 2, 3, 4},
	}
	buf := Encode(nil, in)
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.InitialMaxData != in.InitialMaxData ||
		out.InitialMaxStreamDataBidiLocal != in.InitialMaxStreamDataBidiLocal ||
		out.InitialMaxStreamsBidi != in.InitialMaxStreamsBidi ||
		out.MaxIdleTimeout != in.MaxIdleTimeout {
		t.Errorf("round-trip mismatch: %+v", out)
	}
	if diff := deep.Equal(out.InitialSourceConnectionID, in.InitialSourceConnectionID); diff != nil {
		t.Errorf("connection id mismatch: %v", diff)
	}
}

func TestDefaultsAppliedWhenAbsent(t *testing.T) {
	out, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out = out.WithDefaults()
	if out.AckDelayExponent != DefaultAckDelayExponent {
		t.Errorf("AckDelayExponent = %d, want default %d", out.AckDelayExponent, DefaultAckDelayExponent)
	}
	if out.MaxAckDelay != DefaultMaxAckDelayMillis {
		t.Errorf("MaxAckDelay = %d, want default %d", out.MaxAckDelay, DefaultMaxAckDelayMillis)
	}
	if out.ActiveConnectionIDLimit != DefaultActiveConnectionIDLimit {
		t.Errorf("ActiveConnectionIDLimit = %d, want default %d", out.ActiveConnectionIDLimit, DefaultActiveConnectionIDLimit)
	}
}

func TestExplicitValueOverridesDefault(t *testing.T) {
	in := Params{}
	in.set = map[Type]bool{IDAckDelayExponent: true}
	in.AckDelayExponent = 5
	buf := Encode(nil, in)
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out = out.WithDefaults()
	if out.AckDelayExponent != 5 {
		t.Errorf("AckDelayExponent = %d, want 5", out.AckDelayExponent)
	}
}

func TestDisableActiveMigrationFlag(t *testing.T) {
	in := Params{DisableActiveMigration: true}
	buf := Encode(nil, in)
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !out.DisableActiveMigration {
		t.Error("expected DisableActiveMigration to round-trip true")
	}
}

func TestRejectsUndersizeMaxUDPPayload(t *testing.T) {
	var buf []byte
	buf = putVarintParam(buf, IDMaxUDPPayloadSize, 100) // below MinMaxUDPPayloadSize
	if _, err := Decode(buf); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestUnknownParameterIgnored(t *testing.T) {
	var buf []byte
	buf = putBytesParam(buf, Type(0xbeef), []byte("vendor extension"))
	buf = putVarintParam(buf, IDInitialMaxData, 42)
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.InitialMaxData != 42 {
		t.Errorf("InitialMaxData = %d, want 42", out.InitialMaxData)
	}
}

func TestStatelessResetTokenRoundTrip(t *testing.T) {
	var tok [16]byte
	for i := range tok {
		tok[i] = byte(i)
	}
	in := Params{StatelessResetToken: &tok}
	buf := Encode(nil, in)
	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.StatelessResetToken == nil || *out.StatelessResetToken != tok {
		t.Errorf("stateless reset token mismatch: %v", out.StatelessResetToken)
	}
}
