package qsettings

import "testing"

func TestWithDefaultsPopulatesEverything(t *testing.T) {
	s := WithDefaults()
	if s.InitialRTT != DefaultInitialRTT {
		t.Errorf("InitialRTT = %v, want %v", s.InitialRTT, DefaultInitialRTT)
	}
	if s.BidiStreamCount != DefaultBidiStreamCount {
		t.Errorf("BidiStreamCount = %d, want %d", s.BidiStreamCount, DefaultBidiStreamCount)
	}
}

func TestCopyLeavesExplicitFieldsAlone(t *testing.T) {
	parent := WithDefaults()
	parent.IdleTimeout = 60_000_000_000 // 60s, expressed in ns to avoid importing time twice
	parent.Set("IdleTimeout")

	child := WithDefaults()
	child.IdleTimeout = 5_000_000_000
	child.Set("IdleTimeout")

	child.Copy(parent)
	if child.IdleTimeout != 5_000_000_000 {
		t.Errorf("explicit IdleTimeout was overwritten: got %v", child.IdleTimeout)
	}
}

func TestCopyInheritsUnsetFields(t *testing.T) {
	parent := WithDefaults()
	parent.BidiStreamCount = 42
	parent.Set("BidiStreamCount")

	child := WithDefaults()
	child.BidiStreamCount = 0 // not explicitly set

	child.Copy(parent)
	if child.BidiStreamCount != 42 {
		t.Errorf("BidiStreamCount = %d, want inherited 42", child.BidiStreamCount)
	}
}
