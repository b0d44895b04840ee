package cemi

import "testing"

func TestEMIRoundTripLData(t *testing.T) {
	cases := []struct {
		mc              MessageCode
		systemBroadcast bool
	}{
		{LDataReq, false},
		{LDataReq, true},
		{LDataCon, false},
		{LDataCon, true},
		{LDataInd, false},
		{LDataInd, true},
	}
	for _, c := range cases {
		code, err := ToEMI(c.mc, c.systemBroadcast)
		if err != nil {
			t.Fatalf("ToEMI(%s, %v): %v", c.mc, c.systemBroadcast, err)
		}
		gotMC, gotBcast, err := FromEMI(code)
		if err != nil {
			t.Fatalf("FromEMI(%#02x): %v", code, err)
		}
		if gotMC != c.mc || gotBcast != c.systemBroadcast {
			t.Fatalf("round trip %s/%v: got %s/%v", c.mc, c.systemBroadcast, gotMC, gotBcast)
		}
	}
}

func TestEMIBusmonCollision(t *testing.T) {
	code, err := ToEMI(LBusmonInd, false)
	if err != nil {
		t.Fatalf("ToEMI: %v", err)
	}
	// The generic parser resolves the 0x49 collision in favour of L-Data.ind.
	mc, _, err := FromEMI(code)
	if err != nil {
		t.Fatalf("FromEMI: %v", err)
	}
	if mc != LDataInd {
		t.Fatalf("generic FromEMI should prefer L-Data.ind, got %s", mc)
	}

	busmonMC, err := FromEMIBusmon(code)
	if err != nil {
		t.Fatalf("FromEMIBusmon: %v", err)
	}
	if busmonMC != LBusmonInd {
		t.Fatalf("FromEMIBusmon: got %s, want L_Busmon.ind", busmonMC)
	}
}

func TestIsDomainAddressReadAPCI(t *testing.T) {
	if !IsDomainAddressReadAPCI(0x03E1) {
		t.Fatal("expected 0x03E1 to be recognised as the domain-address-read APCI")
	}
	if IsDomainAddressReadAPCI(0x0080) {
		t.Fatal("group-value-write APCI must not be mistaken for domain-address-read")
	}
}
