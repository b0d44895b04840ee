package knx

import "testing"

func TestIndividualAddrRoundTrip(t *testing.T) {
	a, err := NewIndividualAddr(1, 1, 1)
	if err != nil {
		t.Fatalf("NewIndividualAddr: %v", err)
	}
	if got, want := a.String(), "1.1.1"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	parsed, err := ParseIndividualAddr("1.1.1")
	if err != nil {
		t.Fatalf("ParseIndividualAddr: %v", err)
	}
	if parsed != a {
		t.Fatalf("parsed %v != built %v", parsed, a)
	}
}

func TestIndividualAddrRangeChecks(t *testing.T) {
	if _, err := NewIndividualAddr(16, 0, 0); err == nil {
		t.Fatal("expected error for area > 15")
	}
	if _, err := NewIndividualAddr(0, 16, 0); err == nil {
		t.Fatal("expected error for line > 15")
	}
	if _, err := ParseIndividualAddr("1.1"); err == nil {
		t.Fatal("expected error for malformed address")
	}
}

// TestGroupAddrThreeLevel is scenario S6 from spec.md §8: 0x120A formats as
// "2/2/10" in three-level style, and parses back to the same packed value.
func TestGroupAddrThreeLevel(t *testing.T) {
	old := CurrentGroupStyle()
	SetGroupStyle(ThreeLevel)
	defer SetGroupStyle(old)

	ga := GroupAddrFromUint16(0x120A)
	if got, want := ga.String(), "2/2/10"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	parsed, err := ParseGroupAddr("2/2/10")
	if err != nil {
		t.Fatalf("ParseGroupAddr: %v", err)
	}
	if parsed.Packed() != 0x120A {
		t.Fatalf("Packed() = %#04x, want 0x120a", parsed.Packed())
	}
}

func TestGroupAddrTwoLevel(t *testing.T) {
	old := CurrentGroupStyle()
	SetGroupStyle(TwoLevel)
	defer SetGroupStyle(old)

	ga, err := NewTwoLevelGroupAddr(3, 512)
	if err != nil {
		t.Fatalf("NewTwoLevelGroupAddr: %v", err)
	}
	if got, want := ga.String(), "3/512"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	parsed, err := ParseGroupAddr("3/512")
	if err != nil {
		t.Fatalf("ParseGroupAddr: %v", err)
	}
	if parsed != ga {
		t.Fatalf("parsed %v != built %v", parsed, ga)
	}
}

func TestGroupAddrRangeChecks(t *testing.T) {
	old := CurrentGroupStyle()
	SetGroupStyle(ThreeLevel)
	defer SetGroupStyle(old)

	if _, err := NewThreeLevelGroupAddr(32, 0, 0); err == nil {
		t.Fatal("expected error for main > 31")
	}
	if _, err := NewThreeLevelGroupAddr(0, 8, 0); err == nil {
		t.Fatal("expected error for middle > 7")
	}
}

func TestEqualAddressDiscriminator(t *testing.T) {
	ia := IndividualAddrFromUint16(0x120A)
	ga := GroupAddrFromUint16(0x120A)

	if EqualAddress(ia, ga) {
		t.Fatal("individual and group address with same packed value must not compare equal")
	}
	if !EqualAddress(ia, ia) {
		t.Fatal("address must equal itself")
	}
}
