package secure

import "testing"

func TestNewSCFRoundTrip(t *testing.T) {
	scf, err := NewSCF(true, AlgoAuthConf, false, ServiceData)
	if err != nil {
		t.Fatalf("NewSCF: %v", err)
	}
	if !scf.ToolAccess() {
		t.Fatal("expected tool access bit set")
	}
	if scf.Algorithm() != AlgoAuthConf {
		t.Fatalf("algorithm = %v, want AlgoAuthConf", scf.Algorithm())
	}
	if scf.SystemBroadcast() {
		t.Fatal("expected system-broadcast bit clear")
	}
	if scf.Service() != ServiceData {
		t.Fatalf("service = %v, want ServiceData", scf.Service())
	}
	if !scf.ValidAlgorithm() {
		t.Fatal("expected ValidAlgorithm to hold")
	}
}

func TestNewSCFRejectsBadAlgorithm(t *testing.T) {
	if _, err := NewSCF(false, Algorithm(2), false, ServiceData); err == nil {
		t.Fatal("expected error for algorithm id 2")
	}
}

func TestNewSCFRejectsBadService(t *testing.T) {
	if _, err := NewSCF(false, AlgoAuthOnly, false, Service(4)); err == nil {
		t.Fatal("expected error for service id 4")
	}
}

func TestSCFSystemBroadcastAndService(t *testing.T) {
	scf, err := NewSCF(false, AlgoAuthOnly, true, ServiceSyncRes)
	if err != nil {
		t.Fatalf("NewSCF: %v", err)
	}
	if scf.ToolAccess() {
		t.Fatal("expected tool access bit clear")
	}
	if !scf.SystemBroadcast() {
		t.Fatal("expected system-broadcast bit set")
	}
	if scf.Service() != ServiceSyncRes {
		t.Fatalf("service = %v, want ServiceSyncRes", scf.Service())
	}
}
