package normalize

import (
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	first := Fingerprint("7200 MURREL DR", "Williamson", "TN")
	for i := 0; i < 100; i++ {
		if got := Fingerprint("7200 MURREL DR", "Williamson", "TN"); got != first {
			t.Fatalf("Fingerprint not deterministic: %q vs %q", got, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("Fingerprint length = %d, want 64 hex chars", len(first))
	}
}

func TestFingerprintCaseInsensitiveJurisdiction(t *testing.T) {
	a := Fingerprint("7200 MURREL DR", "Williamson", "TN")
	b := Fingerprint("7200 MURREL DR", "WILLIAMSON", "tn")
	if a != b {
		t.Errorf("Fingerprint should uppercase the composite key: %q vs %q", a, b)
	}
}

func TestFingerprintScopedToJurisdiction(t *testing.T) {
	a := Fingerprint("100 MAIN ST", "Williamson", "TN")
	b := Fingerprint("100 MAIN ST", "Maury", "TN")
	if a == b {
		t.Error("same street in different counties must not share a fingerprint")
	}
}

func TestFingerprintEmptyAddress(t *testing.T) {
	if got := Fingerprint("", "Williamson", "TN"); got != "" {
		t.Errorf("Fingerprint of empty canonical address = %q, want empty", got)
	}
}

func TestFingerprintMatchesAcrossRawVariants(t *testing.T) {
	// A property and a permit with different raw strings must meet at
	// the same digest once canonicalized.
	prop := Canonicalize("7200 Murrel Dr")
	permit := Canonicalize("Starnes Creek lot 101 at 7200 Murrel Drive")
	if prop != permit {
		t.Fatalf("canonical forms differ: %q vs %q", prop, permit)
	}
	if Fingerprint(prop, "Williamson", "TN") != Fingerprint(permit, "Williamson", "TN") {
		t.Error("fingerprints differ for identical canonical forms")
	}
}
