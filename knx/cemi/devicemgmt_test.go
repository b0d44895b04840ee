package cemi

import (
	"bytes"
	"testing"
)

func TestDeviceMgmtRoundTrip(t *testing.T) {
	d := &DeviceMgmt{
		Code:         PropReadReq,
		ObjectType:   0x0001,
		Instance:     1,
		PropertyID:   0x0D,
		ElementCount: 1,
		StartIndex:   1,
		Data:         nil,
	}
	emitted, err := d.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(emitted) != 7 {
		t.Fatalf("header length: got %d, want 7", len(emitted))
	}

	parsed, err := Parse(emitted)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pd, ok := parsed.(*DeviceMgmt)
	if !ok {
		t.Fatalf("expected *DeviceMgmt, got %T", parsed)
	}
	if pd.Code != d.Code || pd.ObjectType != d.ObjectType || pd.Instance != d.Instance ||
		pd.PropertyID != d.PropertyID || pd.ElementCount != d.ElementCount || pd.StartIndex != d.StartIndex {
		t.Fatalf("round trip mismatch: got %+v, want %+v", pd, d)
	}
}

func TestDeviceMgmtNegativeConfirmation(t *testing.T) {
	d := &DeviceMgmt{
		Code:         PropWriteCon,
		ObjectType:   0x0001,
		Instance:     1,
		PropertyID:   0x0D,
		ElementCount: 0,
		Data:         []byte{byte(NegReadOnly)},
	}
	if !d.IsNegativeConfirmation() {
		t.Fatal("expected IsNegativeConfirmation() true")
	}
	emitted, err := d.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	parsed, err := Parse(emitted)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pd := parsed.(*DeviceMgmt)
	if !pd.IsNegativeConfirmation() {
		t.Fatal("parsed frame: expected IsNegativeConfirmation() true")
	}
	if !bytes.Equal(pd.Data, []byte{byte(NegReadOnly)}) {
		t.Fatalf("negative confirmation payload: got % x", pd.Data)
	}
}

func TestDeviceMgmtRejectsWrongNegativeConfirmationLength(t *testing.T) {
	d := &DeviceMgmt{Code: PropWriteCon, Instance: 1, ElementCount: 0, Data: []byte{0x01, 0x02}}
	if _, err := d.Emit(); err == nil {
		t.Fatal("expected error for a 2-byte negative-confirmation payload")
	}
}

func TestResetRoundTrip(t *testing.T) {
	r := &Reset{Code: ResetReq}
	emitted, err := r.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !bytes.Equal(emitted, []byte{byte(ResetReq)}) {
		t.Fatalf("emit: got % x", emitted)
	}
	parsed, err := Parse(emitted)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.MessageCode() != ResetReq {
		t.Fatalf("message code: got %s, want ResetReq", parsed.MessageCode())
	}
}
