package cemi

import (
	"bytes"
	"testing"
)

func TestBusMonRoundTripNonExtended(t *testing.T) {
	b := &BusMon{
		FrameError: false,
		BitError:   false,
		Lost:       true,
		Sequence:   3,
		Extended:   false,
		Timestamp:  0x1234,
		Raw:        []byte{0x01, 0x02, 0x03},
	}
	emitted, err := b.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	parsed, err := Parse(emitted)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pb, ok := parsed.(*BusMon)
	if !ok {
		t.Fatalf("expected *BusMon, got %T", parsed)
	}
	if pb.Extended {
		t.Fatal("expected non-extended timestamp")
	}
	if pb.Timestamp != 0x1234 || !bytes.Equal(pb.Raw, b.Raw) {
		t.Fatalf("round trip mismatch: got %+v", pb)
	}
	if !pb.Lost || pb.Sequence != 3 {
		t.Fatalf("status bits mismatch: got %+v", pb)
	}
}

func TestBusMonRoundTripExtended(t *testing.T) {
	// A raw length that only fits the 4-byte timestamp interpretation when
	// the 2-byte one would overflow 23 bytes.
	raw := make([]byte, 23)
	for i := range raw {
		raw[i] = byte(i)
	}
	b := &BusMon{Extended: true, Timestamp: 0xAABBCCDD, Raw: raw, Sequence: 5}
	emitted, err := b.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	parsed, err := Parse(emitted)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pb, ok := parsed.(*BusMon)
	if !ok {
		t.Fatalf("expected *BusMon, got %T", parsed)
	}
	if !pb.Extended || pb.Timestamp != 0xAABBCCDD {
		t.Fatalf("expected extended timestamp 0xAABBCCDD, got extended=%v ts=%#08x", pb.Extended, pb.Timestamp)
	}
	if !bytes.Equal(pb.Raw, raw) {
		t.Fatalf("raw mismatch: got % x", pb.Raw)
	}
}

func TestBusMonRejectsOversizedRaw(t *testing.T) {
	b := &BusMon{Raw: make([]byte, 24)}
	if _, err := b.Emit(); err == nil {
		t.Fatal("expected error for a 24-byte raw frame")
	}
}
