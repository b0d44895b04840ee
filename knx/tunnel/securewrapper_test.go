package tunnel

import (
	"errors"
	"testing"

	"github.com/nerrad567/calimero/knx"
)

func testWrapperKey() [16]byte {
	var k [16]byte
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func TestWrapUnwrapSecureRoundTrip(t *testing.T) {
	key := testWrapperKey()
	serial := knx.SerialNumber{1, 2, 3, 4, 5, 6}
	frame := packHeader(ServiceTunnelingReq, 3)
	frame = append(frame, 0x04, 0x01, 0x00)

	wrapped, err := wrapSecure(key, 7, 42, serial, 9, frame)
	if err != nil {
		t.Fatalf("wrapSecure: %v", err)
	}

	sessionID, sendSeq, gotSerial, msgTag, gotFrame, err := unwrapSecure(key, wrapped)
	if err != nil {
		t.Fatalf("unwrapSecure: %v", err)
	}
	if sessionID != 7 {
		t.Fatalf("sessionID = %d, want 7", sessionID)
	}
	if sendSeq != 42 {
		t.Fatalf("sendSeq = %d, want 42", sendSeq)
	}
	if gotSerial != serial {
		t.Fatalf("serial = %v, want %v", gotSerial, serial)
	}
	if msgTag != 9 {
		t.Fatalf("msgTag = %d, want 9", msgTag)
	}
	if string(gotFrame) != string(frame) {
		t.Fatalf("recovered frame = %v, want %v", gotFrame, frame)
	}
}

func TestUnwrapSecureRejectsTamperedMAC(t *testing.T) {
	key := testWrapperKey()
	frame := []byte{0x01, 0x02, 0x03, 0x04}

	wrapped, err := wrapSecure(key, 1, 1, knx.SerialNumber{}, 0, frame)
	if err != nil {
		t.Fatalf("wrapSecure: %v", err)
	}
	wrapped[len(wrapped)-1] ^= 0xFF

	if _, _, _, _, _, err := unwrapSecure(key, wrapped); !errors.Is(err, knx.ErrSecure) {
		t.Fatalf("expected ErrSecure for a tampered mac, got %v", err)
	}
}

func TestUnwrapSecureRejectsWrongKey(t *testing.T) {
	key := testWrapperKey()
	wrong := testWrapperKey()
	wrong[0] ^= 0xFF
	frame := []byte{0xAA, 0xBB}

	wrapped, err := wrapSecure(key, 1, 1, knx.SerialNumber{}, 0, frame)
	if err != nil {
		t.Fatalf("wrapSecure: %v", err)
	}

	if _, _, _, _, _, err := unwrapSecure(wrong, wrapped); !errors.Is(err, knx.ErrSecure) {
		t.Fatalf("expected ErrSecure when decrypting with the wrong key, got %v", err)
	}
}

func TestUnwrapSecureRejectsShortWrapper(t *testing.T) {
	key := testWrapperKey()
	if _, _, _, _, _, err := unwrapSecure(key, make([]byte, 10)); err == nil {
		t.Fatal("expected error for a wrapper shorter than header+mac")
	}
}

func TestWrapSecureRejectsSendSeqOverflow(t *testing.T) {
	key := testWrapperKey()
	_, err := wrapSecure(key, 1, 1<<48, knx.SerialNumber{}, 0, []byte{0x01})
	if !errors.Is(err, knx.ErrFrameFormat) {
		t.Fatalf("expected ErrFrameFormat for a 6-byte sequence overflow, got %v", err)
	}
}

func TestWrapSecureHandlesEmptyFrame(t *testing.T) {
	key := testWrapperKey()
	wrapped, err := wrapSecure(key, 1, 1, knx.SerialNumber{}, 0, nil)
	if err != nil {
		t.Fatalf("wrapSecure: %v", err)
	}
	_, _, _, _, frame, err := unwrapSecure(key, wrapped)
	if err != nil {
		t.Fatalf("unwrapSecure: %v", err)
	}
	if len(frame) != 0 {
		t.Fatalf("frame = %v, want empty", frame)
	}
}
