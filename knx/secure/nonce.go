package secure

import (
	"github.com/nerrad567/calimero/knx"
)

// header is the two-byte TPCI/APCI prefix that marks an APDU as secured
// (§4.4.1: "APCI = 0b1111110001 = 0x3F1 signals 'secure service'"). The top
// two bits of that 10-bit APCI (0b11) sit in the TPCI byte alongside the
// caller's TPCI value; the low 8 bits (0xF1) are the second byte.
func header(tpci byte) [2]byte {
	return [2]byte{tpci<<2 | 0x03, 0xF1}
}

// addressType packs the "at" byte used in B0: bit7 marks a group
// destination, bits3-0 carry the extended frame format nibble of the
// enclosing cEMI control field (0 for standard frames).
func addressType(isGroup bool, eff uint8) byte {
	var b byte
	if isGroup {
		b |= 1 << 7
	}
	return b | (eff & 0x0F)
}

// buildB0 assembles the 16-byte CCM-style "B0" nonce block (§4.4.1):
//
//	seq(6) || src(2) || dst(2) || 0x00 || at || tpci || apci || 0x00 || payload_len
func buildB0(seq [6]byte, src, dst uint16, at, tpciByte, apciByte byte, payloadLen int) [16]byte {
	var b [16]byte
	copy(b[0:6], seq[:])
	b[6] = byte(src >> 8)
	b[7] = byte(src)
	b[8] = byte(dst >> 8)
	b[9] = byte(dst)
	b[10] = 0x00
	b[11] = at
	b[12] = tpciByte
	b[13] = apciByte
	b[14] = 0x00
	b[15] = byte(payloadLen)
	return b
}

// buildCTR0 assembles the 16-byte CCM-style counter block (§4.4.1):
//
//	seq(6) || src(2) || dst(2) || 0x00 x5 || 0x01
//
// The specification's literal "0x00 0x00 0x00 0x00" padding is one byte
// short of a 16-byte block once seq/src/dst/counter are accounted for; this
// implementation pads with five zero bytes so CTR0 is exactly one AES
// block, the only width a single AES-ECB/AES-CTR call can consume (see
// DESIGN.md "CTR0 padding width").
func buildCTR0(seq [6]byte, src, dst uint16) [16]byte {
	var c [16]byte
	copy(c[0:6], seq[:])
	c[6] = byte(src >> 8)
	c[7] = byte(src)
	c[8] = byte(dst >> 8)
	c[9] = byte(dst)
	// c[10..14] stay zero
	c[15] = 0x01
	return c
}

// peerAddress is the minimal shape Secure/Extract need from a knx.Address:
// its packed 16-bit value and whether it is a group address.
func peerAddress(a knx.Address) (packed uint16, isGroup bool) {
	switch v := a.(type) {
	case knx.GroupAddr:
		return v.Packed(), true
	default:
		return a.Packed(), false
	}
}
