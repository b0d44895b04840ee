package cemi

import "testing"

func TestMessageCodePredicates(t *testing.T) {
	cases := []struct {
		code                        MessageCode
		isLData, isDeviceMgmt, isReset bool
	}{
		{LDataReq, true, false, false},
		{LDataCon, true, false, false},
		{LDataInd, true, false, false},
		{LBusmonInd, false, false, false},
		{PropReadReq, false, true, false},
		{PropWriteCon, false, true, false},
		{PropInfoInd, false, true, false},
		{ResetReq, false, false, true},
		{ResetInd, false, false, true},
	}
	for _, c := range cases {
		if got := c.code.IsLData(); got != c.isLData {
			t.Errorf("%s.IsLData() = %v, want %v", c.code, got, c.isLData)
		}
		if got := c.code.IsDeviceMgmt(); got != c.isDeviceMgmt {
			t.Errorf("%s.IsDeviceMgmt() = %v, want %v", c.code, got, c.isDeviceMgmt)
		}
		if got := c.code.IsReset(); got != c.isReset {
			t.Errorf("%s.IsReset() = %v, want %v", c.code, got, c.isReset)
		}
	}
}

func TestMessageCodeStringUnknown(t *testing.T) {
	var mc MessageCode = 0x00
	if got := mc.String(); got == "" {
		t.Fatal("String() must not return an empty string for an unknown code")
	}
}
