package tunnel

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"

	"github.com/nerrad567/calimero/knx"
)

// ServiceType identifies a KNXnet/IP service by its 16-bit code (§6
// "Wire: KNXnet/IP").
type ServiceType uint16

const (
	ServiceConnectReq        ServiceType = 0x0205
	ServiceConnectRes        ServiceType = 0x0206
	ServiceConnStateReq      ServiceType = 0x0207
	ServiceConnStateRes      ServiceType = 0x0208
	ServiceDisconnectReq     ServiceType = 0x0209
	ServiceDisconnectRes     ServiceType = 0x020A
	ServiceTunnelingReq      ServiceType = 0x0420
	ServiceTunnelingAck      ServiceType = 0x0421
	ServiceRoutingInd        ServiceType = 0x0530
	ServiceRoutingBusy       ServiceType = 0x0531
	ServiceSecureWrapper     ServiceType = 0x0950
	ServiceSessionReq        ServiceType = 0x0951
	ServiceSessionRes        ServiceType = 0x0952
	ServiceSessionAuth       ServiceType = 0x0953
	ServiceSessionStatus     ServiceType = 0x0954
)

func (s ServiceType) String() string {
	switch s {
	case ServiceConnectReq:
		return "CONNECT_REQUEST"
	case ServiceConnectRes:
		return "CONNECT_RESPONSE"
	case ServiceConnStateReq:
		return "CONNECTIONSTATE_REQUEST"
	case ServiceConnStateRes:
		return "CONNECTIONSTATE_RESPONSE"
	case ServiceDisconnectReq:
		return "DISCONNECT_REQUEST"
	case ServiceDisconnectRes:
		return "DISCONNECT_RESPONSE"
	case ServiceTunnelingReq:
		return "TUNNELING_REQUEST"
	case ServiceTunnelingAck:
		return "TUNNELING_ACK"
	case ServiceRoutingInd:
		return "ROUTING_INDICATION"
	case ServiceRoutingBusy:
		return "ROUTING_BUSY"
	case ServiceSecureWrapper:
		return "SECURE_WRAPPER"
	case ServiceSessionReq:
		return "SESSION_REQUEST"
	case ServiceSessionRes:
		return "SESSION_RESPONSE"
	case ServiceSessionAuth:
		return "SESSION_AUTHENTICATE"
	case ServiceSessionStatus:
		return "SESSION_STATUS"
	default:
		return fmt.Sprintf("ServiceType(%#04x)", uint16(s))
	}
}

const (
	headerLen          = 6
	protocolVersion    = 0x10
	connectionHeaderID = 0x06
)

// packHeader builds the six-byte KNXnet/IP frame header:
// [0x06][ver=0x10][svc-type(2)][total-len(2)] (§6 "Wire: KNXnet/IP").
func packHeader(svc ServiceType, bodyLen int) []byte {
	h := make([]byte, headerLen)
	h[0] = connectionHeaderID
	h[1] = protocolVersion
	binary.BigEndian.PutUint16(h[2:4], uint16(svc))
	binary.BigEndian.PutUint16(h[4:6], uint16(headerLen+bodyLen))
	return h
}

// parseHeader validates and splits a KNXnet/IP frame's header from its
// body.
func parseHeader(data []byte) (svc ServiceType, body []byte, err error) {
	if len(data) < headerLen {
		return 0, nil, fmt.Errorf("%w: knxnet/ip frame shorter than header (%d bytes)", knx.ErrFrameFormat, headerLen)
	}
	if data[0] != connectionHeaderID {
		return 0, nil, fmt.Errorf("%w: header length byte %#02x, want %#02x", knx.ErrFrameFormat, data[0], connectionHeaderID)
	}
	if data[1] != protocolVersion {
		return 0, nil, fmt.Errorf("%w: protocol version %#02x, want %#02x", knx.ErrFrameFormat, data[1], protocolVersion)
	}
	svc = ServiceType(binary.BigEndian.Uint16(data[2:4]))
	total := int(binary.BigEndian.Uint16(data[4:6]))
	if total != len(data) {
		return 0, nil, fmt.Errorf("%w: frame declares %d bytes, got %d", knx.ErrFrameFormat, total, len(data))
	}
	return svc, data[headerLen:], nil
}

// HPAI is a Host Protocol Address Information block: a 4-byte IPv4 address
// plus a 2-byte port, prefixed by its own one-byte length and a one-byte
// protocol-family code (0x01 = UDP, 0x02 = TCP).
type HPAI struct {
	TCP  bool
	IP   net.IP
	Port uint16
}

const hpaiLen = 8

func (h HPAI) encode() []byte {
	out := make([]byte, hpaiLen)
	out[0] = hpaiLen
	if h.TCP {
		out[1] = 0x02
	} else {
		out[1] = 0x01
	}
	ip4 := h.IP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	copy(out[2:6], ip4)
	binary.BigEndian.PutUint16(out[6:8], h.Port)
	return out
}

func parseHPAI(data []byte) (HPAI, []byte, error) {
	if len(data) < hpaiLen {
		return HPAI{}, nil, fmt.Errorf("%w: hpai shorter than %d bytes", knx.ErrFrameFormat, hpaiLen)
	}
	if int(data[0]) != hpaiLen {
		return HPAI{}, nil, fmt.Errorf("%w: hpai declares length %d, want %d", knx.ErrFrameFormat, data[0], hpaiLen)
	}
	h := HPAI{
		TCP:  data[1] == 0x02,
		IP:   net.IPv4(data[2], data[3], data[4], data[5]),
		Port: binary.BigEndian.Uint16(data[6:8]),
	}
	return h, data[hpaiLen:], nil
}

func hpaiFromAddr(addr net.Addr, tcp bool) HPAI {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return HPAI{TCP: tcp, IP: net.IPv4zero}
	}
	port, _ := strconv.Atoi(portStr)
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	return HPAI{TCP: tcp, IP: ip, Port: uint16(port)}
}
