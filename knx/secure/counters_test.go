package secure

import "testing"

func TestCountersSaturate(t *testing.T) {
	var c Counters
	for i := 0; i < counterMax+10; i++ {
		c.IncInvalidSCF()
	}
	if got := c.InvalidSCF(); got != counterMax {
		t.Fatalf("InvalidSCF = %d, want saturated at %d", got, counterMax)
	}
}

func TestCountersIndependent(t *testing.T) {
	var c Counters
	c.IncSeqError()
	c.IncCryptoError()
	c.IncCryptoError()
	c.IncAccessError()
	c.IncAccessError()
	c.IncAccessError()

	if got := c.SeqError(); got != 1 {
		t.Fatalf("SeqError = %d, want 1", got)
	}
	if got := c.CryptoError(); got != 2 {
		t.Fatalf("CryptoError = %d, want 2", got)
	}
	if got := c.AccessError(); got != 3 {
		t.Fatalf("AccessError = %d, want 3", got)
	}
	if got := c.InvalidSCF(); got != 0 {
		t.Fatalf("InvalidSCF = %d, want 0", got)
	}
}
