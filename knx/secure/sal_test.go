package secure

import (
	"errors"
	"testing"

	"github.com/nerrad567/calimero/internal/obslog"
	"github.com/nerrad567/calimero/knx"
)

func newTestSAL(t *testing.T, local, peer knx.IndividualAddr, ga knx.GroupAddr, groupKey, toolKey [16]byte) *SAL {
	t.Helper()
	ctx := &Context{
		groupKeys: map[knx.GroupAddr][16]byte{ga: groupKey},
		toolKeys:  map[knx.IndividualAddr][16]byte{peer: toolKey},
	}
	return NewSAL(ctx, local, knx.SerialNumber{9}, nil, obslog.Noop())
}

func TestSALSecureExtractRoundTrip(t *testing.T) {
	local, _ := knx.NewIndividualAddr(1, 1, 1)
	peer, _ := knx.NewIndividualAddr(1, 1, 2)
	ga, _ := knx.NewThreeLevelGroupAddr(1, 1, 1)

	groupKey := testKey()
	sender := newTestSAL(t, peer, local, ga, groupKey, testKey())
	receiver := newTestSAL(t, local, peer, ga, groupKey, testKey())

	plain := []byte{0x80, 0x01}
	wire, err := sender.Secure(ga, 0, plain, false, true)
	if err != nil {
		t.Fatalf("Secure: %v", err)
	}

	apdu, err := receiver.Extract(peer, ga, wire)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if string(apdu) != string(plain) {
		t.Fatalf("apdu = %x, want %x", apdu, plain)
	}
}

func TestSALExtractRejectsReplay(t *testing.T) {
	local, _ := knx.NewIndividualAddr(1, 1, 1)
	peer, _ := knx.NewIndividualAddr(1, 1, 2)
	ga, _ := knx.NewThreeLevelGroupAddr(1, 1, 1)

	groupKey := testKey()
	sender := newTestSAL(t, peer, local, ga, groupKey, testKey())
	receiver := newTestSAL(t, local, peer, ga, groupKey, testKey())

	wire, err := sender.Secure(ga, 0, []byte{0x01}, false, true)
	if err != nil {
		t.Fatalf("Secure: %v", err)
	}

	if _, err := receiver.Extract(peer, ga, wire); err != nil {
		t.Fatalf("first Extract: %v", err)
	}
	if _, err := receiver.Extract(peer, ga, wire); !errors.Is(err, knx.ErrSecure) {
		t.Fatalf("expected ErrSecure replaying the same wire frame, got %v", err)
	}
	if got := receiver.Counters.SeqError(); got != 1 {
		t.Fatalf("SeqError counter = %d, want 1", got)
	}
}

func TestSALResolveKeyRejectsToolAccessOnGroupDestination(t *testing.T) {
	local, _ := knx.NewIndividualAddr(1, 1, 1)
	peer, _ := knx.NewIndividualAddr(1, 1, 2)
	ga, _ := knx.NewThreeLevelGroupAddr(1, 1, 1)

	sal := newTestSAL(t, local, peer, ga, testKey(), testKey())
	if _, err := sal.Secure(ga, 0, []byte{0x01}, true, true); !errors.Is(err, knx.ErrSecure) {
		t.Fatalf("expected ErrSecure for tool access against a group address, got %v", err)
	}
	if got := sal.Counters.AccessError(); got != 1 {
		t.Fatalf("AccessError counter = %d, want 1", got)
	}
}
