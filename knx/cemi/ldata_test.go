package cemi

import (
	"bytes"
	"testing"

	"github.com/nerrad567/calimero/knx"
)

// TestParseLDataIndStandard implements the literal standard-frame scenario:
// 29 00 BC E0 11 01 09 01 01 00 81.
func TestParseLDataIndStandard(t *testing.T) {
	input := []byte{0x29, 0x00, 0xBC, 0xE0, 0x11, 0x01, 0x09, 0x01, 0x01, 0x00, 0x81}

	frame, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ld, ok := frame.(*LData)
	if !ok {
		t.Fatalf("expected *LData, got %T", frame)
	}

	if ld.MessageCode() != LDataInd {
		t.Fatalf("message code: got %s, want L_Data.ind", ld.MessageCode())
	}
	if len(ld.Info()) != 0 {
		t.Fatalf("additional-info length: got %d, want 0", len(ld.Info()))
	}
	if ld.Ctrl1().Priority != knx.PriorityLow {
		t.Fatalf("priority: got %v, want Low", ld.Ctrl1().Priority)
	}
	if ld.Ctrl2().HopCount != 6 {
		t.Fatalf("hop count: got %d, want 6", ld.Ctrl2().HopCount)
	}
	wantSrc, _ := knx.NewIndividualAddr(1, 1, 1)
	if ld.Source() != wantSrc {
		t.Fatalf("source: got %s, want %s", ld.Source(), wantSrc)
	}
	dst, ok := ld.Dest().(knx.GroupAddr)
	if !ok {
		t.Fatalf("destination: expected GroupAddr, got %T", ld.Dest())
	}
	if dst.Packed() != 0x0901 {
		t.Fatalf("destination packed: got %#04x, want 0x0901", dst.Packed())
	}
	if !bytes.Equal(ld.TPDU(), []byte{0x00, 0x81}) {
		t.Fatalf("tpdu: got % x, want 00 81", ld.TPDU())
	}

	emitted, err := Emit(frame)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !bytes.Equal(emitted, input) {
		t.Fatalf("round trip: got % x, want % x", emitted, input)
	}
}

// TestExtendedFrameRFMediumInfo implements the extended-frame scenario with
// an RF medium additional-info block.
func TestExtendedFrameRFMediumInfo(t *testing.T) {
	rf := RFMediumInfo{
		RSS:              RSSMedium,
		RetransmitterRSS: RSSVoid,
		BatteryOK:        true,
		TransmitOnly:     false,
		LinkLayerFrameNum: 1,
	}
	copy(rf.DomainOrSerial[:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})

	payload, err := EncodeRFMediumInfo(rf)
	if err != nil {
		t.Fatalf("EncodeRFMediumInfo: %v", err)
	}

	dst, err := knx.NewIndividualAddr(1, 1, 1)
	if err != nil {
		t.Fatalf("NewIndividualAddr: %v", err)
	}
	src, err := knx.NewIndividualAddr(1, 1, 2)
	if err != nil {
		t.Fatalf("NewIndividualAddr: %v", err)
	}

	frame, err := NewLData(LDataInd).
		WithCtrl1(Ctrl1{StandardFrame: false, Priority: knx.PriorityNormal}).
		WithCtrl2(Ctrl2{HopCount: 6}).
		WithSource(src).
		WithDest(dst).
		WithInfo([]Info{{Type: InfoTypeRFMedium, Payload: payload}}).
		WithTPDU([]byte{0x00, 0x80}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !frame.IsExtendedFrame() {
		t.Fatal("expected IsExtendedFrame() true")
	}

	emitted, err := Emit(frame)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	parsed, err := Parse(emitted)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reEmitted, err := Emit(parsed)
	if err != nil {
		t.Fatalf("Emit after parse: %v", err)
	}
	if !bytes.Equal(emitted, reEmitted) {
		t.Fatalf("round trip mismatch: got % x, want % x", reEmitted, emitted)
	}

	pld, ok := parsed.(*LData)
	if !ok {
		t.Fatalf("expected *LData, got %T", parsed)
	}
	if !pld.IsExtendedFrame() {
		t.Fatal("parsed frame: expected IsExtendedFrame() true")
	}
	info := pld.Info()
	if len(info) != 1 || info[0].Type != InfoTypeRFMedium {
		t.Fatalf("expected a single RF medium info block, got %+v", info)
	}
	decoded, err := DecodeRFMediumInfo(info[0].Payload)
	if err != nil {
		t.Fatalf("DecodeRFMediumInfo: %v", err)
	}
	if decoded.RSS != RSSMedium || decoded.RetransmitterRSS != RSSVoid {
		t.Fatalf("RF medium info mismatch: %+v", decoded)
	}
	if !decoded.BatteryOK || decoded.TransmitOnly {
		t.Fatalf("RF medium flags mismatch: %+v", decoded)
	}
	if decoded.LinkLayerFrameNum != 1 {
		t.Fatalf("lfn: got %d, want 1", decoded.LinkLayerFrameNum)
	}
}

func TestLDataBuilderRejectsOversizedStandardTPDU(t *testing.T) {
	dst, _ := knx.NewIndividualAddr(1, 1, 1)
	src, _ := knx.NewIndividualAddr(1, 1, 2)
	_, err := NewLData(LDataReq).
		WithCtrl1(Ctrl1{StandardFrame: true}).
		WithSource(src).
		WithDest(dst).
		WithTPDU(make([]byte, 17)).
		Build()
	if err == nil {
		t.Fatal("expected error for a 17-byte TPDU on a standard frame")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	dst, _ := knx.NewIndividualAddr(1, 1, 1)
	src, _ := knx.NewIndividualAddr(1, 1, 2)
	orig, err := NewLData(LDataReq).
		WithCtrl1(Ctrl1{StandardFrame: true}).
		WithSource(src).
		WithDest(dst).
		WithTPDU([]byte{0x00, 0x80}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	clone := Copy(orig)
	clone.tpdu[0] = 0xFF
	if orig.tpdu[0] == 0xFF {
		t.Fatal("Copy must be independent of the original frame's backing array")
	}
}
