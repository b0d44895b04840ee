package cemi

import (
	"testing"

	"github.com/nerrad567/calimero/knx"
)

func TestCtrl1RoundTrip(t *testing.T) {
	c := Ctrl1{
		StandardFrame: true,
		Repeat:        true,
		DomainBcast:   true,
		Priority:      knx.PriorityLow,
		AckRequest:    false,
		ConfirmError:  false,
	}
	if got := UnpackCtrl1(c.Pack()); got != c {
		t.Fatalf("round trip: got %+v, want %+v", got, c)
	}
}

func TestCtrl1PacksKnownByte(t *testing.T) {
	// 0xBC = 1011 1100: standard, repeat, domain-bcast, priority=Low(11), ack=0, confirm=0.
	c := UnpackCtrl1(0xBC)
	if !c.StandardFrame || !c.Repeat || !c.DomainBcast {
		t.Fatalf("unexpected flags: %+v", c)
	}
	if c.Priority != knx.PriorityLow {
		t.Fatalf("priority: got %v, want Low", c.Priority)
	}
	if c.Pack() != 0xBC {
		t.Fatalf("re-pack: got %#02x, want 0xBC", c.Pack())
	}
}

func TestCtrl2RoundTrip(t *testing.T) {
	c := Ctrl2{GroupDest: true, HopCount: 6, ExtendedFmt: 0}
	b, err := c.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if b != 0xE0 {
		t.Fatalf("pack: got %#02x, want 0xE0", b)
	}
	if got := UnpackCtrl2(b); got != c {
		t.Fatalf("round trip: got %+v, want %+v", got, c)
	}
}

func TestCtrl2RejectsOutOfRangeHopCount(t *testing.T) {
	_, err := Ctrl2{HopCount: 8}.Pack()
	if err == nil {
		t.Fatal("expected error for hop count 8")
	}
}
