package tunnel

import (
	"net"
	"testing"
)

func TestPackParseHeaderRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03}
	h := packHeader(ServiceTunnelingReq, len(body))

	svc, gotBody, err := parseHeader(append(h, body...))
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if svc != ServiceTunnelingReq {
		t.Fatalf("svc = %v, want ServiceTunnelingReq", svc)
	}
	if string(gotBody) != string(body) {
		t.Fatalf("body = %v, want %v", gotBody, body)
	}
}

func TestParseHeaderRejectsWrongLengthByte(t *testing.T) {
	data := []byte{0x05, 0x10, 0x02, 0x05, 0x00, 0x06}
	if _, _, err := parseHeader(data); err == nil {
		t.Fatal("expected error for wrong header length byte")
	}
}

func TestParseHeaderRejectsWrongVersion(t *testing.T) {
	data := []byte{0x06, 0x11, 0x02, 0x05, 0x00, 0x06}
	if _, _, err := parseHeader(data); err == nil {
		t.Fatal("expected error for wrong protocol version")
	}
}

func TestParseHeaderRejectsShortFrame(t *testing.T) {
	if _, _, err := parseHeader([]byte{0x06, 0x10}); err == nil {
		t.Fatal("expected error for a frame shorter than the header")
	}
}

func TestParseHeaderRejectsDeclaredLengthMismatch(t *testing.T) {
	// Declares a total length of 10 but the frame is only 6 bytes long.
	data := []byte{0x06, 0x10, 0x02, 0x05, 0x00, 0x0A}
	if _, _, err := parseHeader(data); err == nil {
		t.Fatal("expected error when declared length does not match actual length")
	}
}

func TestHPAIEncodeParseRoundTrip(t *testing.T) {
	h := HPAI{TCP: false, IP: net.IPv4(192, 168, 1, 10), Port: 3671}
	encoded := h.encode()

	got, rest, err := parseHPAI(encoded)
	if err != nil {
		t.Fatalf("parseHPAI: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %v", rest)
	}
	if got.TCP != h.TCP || !got.IP.Equal(h.IP) || got.Port != h.Port {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestHPAIEncodeTCP(t *testing.T) {
	h := HPAI{TCP: true, IP: net.IPv4(10, 0, 0, 1), Port: 6720}
	encoded := h.encode()
	if encoded[1] != 0x02 {
		t.Fatalf("protocol family byte = %#02x, want 0x02 for TCP", encoded[1])
	}
}

func TestParseHPAIRejectsShortData(t *testing.T) {
	if _, _, err := parseHPAI([]byte{0x08, 0x01, 0x00}); err == nil {
		t.Fatal("expected error for hpai shorter than declared")
	}
}

func TestParseHPAIRejectsWrongDeclaredLength(t *testing.T) {
	data := []byte{0x09, 0x01, 192, 168, 1, 10, 0x0E, 0x57}
	if _, _, err := parseHPAI(data); err == nil {
		t.Fatal("expected error for hpai declaring the wrong length")
	}
}

func TestHpaiFromAddrFallsBackOnUnparseableAddr(t *testing.T) {
	h := hpaiFromAddr(fakeAddr{"not-a-host-port"}, false)
	if !h.IP.Equal(net.IPv4zero) {
		t.Fatalf("IP = %v, want IPv4zero fallback", h.IP)
	}
}

type fakeAddr struct{ s string }

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return a.s }
