package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// Params carries the addressing context Secure/Extract need beyond the key
// material itself: the cEMI source/destination of the frame the APDU rides
// in, and the extended frame format nibble of its control field (0 for
// standard frames).
type Params struct {
	Src knx.IndividualAddr
	Dst knx.Address
	EFF byte
}

// SecureRequest bundles everything Secure needs to build one secured APDU
// (§4.4.1).
type SecureRequest struct {
	Params

	TPCI            byte
	ToolAccess      bool
	SystemBroadcast bool
	Algorithm       Algorithm
	Service         Service

	// Seq is always the sequence used to build the B0/CTR0 nonces. For
	// S-A_Data and sync.req this is also what gets written to the wire;
	// for sync.res the wire carries "random XOR challenge" instead (set
	// WireSeq to override) while the nonce itself still uses the real
	// random (§4.4.3).
	Seq [6]byte

	// WireSeq, if non-nil, is written to the wire's seq(6) field in place
	// of Seq. Only sync.res needs this.
	WireSeq *[6]byte

	// Serial is the optional 6-byte serial number carried after Seq.
	// Only sync.req (ServiceSyncReq) carries one on the wire.
	Serial *knx.SerialNumber

	APDU []byte
}

// ExtractResult is everything Extract recovers from a secured APDU.
type ExtractResult struct {
	SCF    SCF
	Seq    [6]byte
	Serial *knx.SerialNumber
	APDU   []byte
}

// Secure encrypts and/or authenticates req.APDU into the wire form
// `[TPCI|APCI_high][APCI_low=0xF1][SCF][seq(6)][optional SN(6)][APDU*][MAC(4)]`
// (§4.4.1). Tampering with the seq, APDU or MAC bytes makes the matching
// Extract call fail with knx.ErrSecure; a corrupted APCI byte fails
// ParseSecureWire with knx.ErrFrameFormat instead.
func Secure(key [16]byte, req SecureRequest) ([]byte, error) {
	if len(req.APDU) > 255 {
		return nil, fmt.Errorf("%w: secured apdu payload %d exceeds 255 bytes", knx.ErrIllegalArgument, len(req.APDU))
	}

	scf, err := NewSCF(req.ToolAccess, req.Algorithm, req.SystemBroadcast, req.Service)
	if err != nil {
		return nil, err
	}

	hdr := header(req.TPCI)
	dstPacked, isGroup := peerAddress(req.Dst)
	srcPacked := req.Src.Packed()
	at := addressType(isGroup, req.EFF)

	b0 := buildB0(req.Seq, srcPacked, dstPacked, at, hdr[0], hdr[1], len(req.APDU))
	ctr0 := buildCTR0(req.Seq, srcPacked, dstPacked)
	ad := adBytes(scf, req.Serial)

	var cipherAPDU []byte
	var mac [4]byte

	switch req.Algorithm {
	case AlgoAuthConf:
		full, err := cbcMac(key, b0[:], ad, req.APDU)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		plain := append(append([]byte(nil), full[:4]...), req.APDU...)
		ciphered, err := ctrCrypt(key, ctr0, plain)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		copy(mac[:], ciphered[:4])
		cipherAPDU = ciphered[4:]
	case AlgoAuthOnly:
		full, err := cbcMacAuthOnly(key, req.APDU)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		xorBlock, err := ecbBlock(key, ctr0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		for i := range mac {
			mac[i] = full[i] ^ xorBlock[i]
		}
		cipherAPDU = req.APDU
	default:
		return nil, fmt.Errorf("%w: algorithm id %d must be 0 or 1", knx.ErrSecure, req.Algorithm)
	}

	wireSeq := req.Seq
	if req.WireSeq != nil {
		wireSeq = *req.WireSeq
	}

	out := make([]byte, 0, 2+1+6+6+len(cipherAPDU)+4)
	out = append(out, hdr[0], hdr[1], byte(scf))
	out = append(out, wireSeq[:]...)
	if req.Serial != nil {
		out = append(out, req.Serial[:]...)
	}
	// Emission order: encrypted APDU first, then the encrypted MAC suffix
	// (§4.4.1).
	out = append(out, cipherAPDU...)
	out = append(out, mac[:]...)
	return out, nil
}

// SecureHeader is a secured APDU's header, parsed without touching any key
// material. ParseSecureWire produces one; DecryptSecureAPDU consumes one.
// Splitting parse from decrypt lets sync.res (§4.4.3) recover the real
// nonce seq (a receiver-side XOR of the wire field against a stashed
// challenge) before any cryptography runs.
type SecureHeader struct {
	TPCIByte    byte
	APCIByte    byte
	SCF         SCF
	WireSeq     [6]byte
	Serial      *knx.SerialNumber
	CipherAPDU  []byte
	MAC         [4]byte
}

// ParseSecureWire validates and splits a secured APDU into its header
// fields, without decrypting or verifying anything.
func ParseSecureWire(wire []byte) (SecureHeader, error) {
	const minLen = 2 + 1 + 6 + 4
	if len(wire) < minLen {
		return SecureHeader{}, fmt.Errorf("%w: secured apdu shorter than %d bytes", knx.ErrFrameFormat, minLen)
	}
	if wire[1] != 0xF1 || wire[0]&0x03 != 0x03 {
		return SecureHeader{}, fmt.Errorf("%w: not a secure-service apdu (apci != 0x3F1)", knx.ErrFrameFormat)
	}

	scf := SCF(wire[2])
	if !scf.ValidAlgorithm() {
		return SecureHeader{}, fmt.Errorf("%w: algorithm id %d must be 0 or 1", knx.ErrSecure, scf.Algorithm())
	}

	hdr := SecureHeader{TPCIByte: wire[0], APCIByte: wire[1], SCF: scf}
	copy(hdr.WireSeq[:], wire[3:9])
	rest := wire[9:]

	if scf.Service() == ServiceSyncReq {
		if len(rest) < 6+4 {
			return SecureHeader{}, fmt.Errorf("%w: sync.req secured apdu missing serial number", knx.ErrFrameFormat)
		}
		var sn knx.SerialNumber
		copy(sn[:], rest[:6])
		hdr.Serial = &sn
		rest = rest[6:]
	}
	if len(rest) < 4 {
		return SecureHeader{}, fmt.Errorf("%w: secured apdu missing mac", knx.ErrFrameFormat)
	}
	hdr.CipherAPDU = rest[:len(rest)-4]
	copy(hdr.MAC[:], rest[len(rest)-4:])
	return hdr, nil
}

// DecryptSecureAPDU verifies and decrypts hdr using nonceSeq for the
// B0/CTR0 nonces. For everything except sync.res, nonceSeq is simply
// hdr.WireSeq; SAL.HandleSyncRes passes the recovered random instead.
func DecryptSecureAPDU(key [16]byte, p Params, hdr SecureHeader, nonceSeq [6]byte) ([]byte, error) {
	dstPacked, isGroup := peerAddress(p.Dst)
	srcPacked := p.Src.Packed()
	at := addressType(isGroup, p.EFF)
	ctr0 := buildCTR0(nonceSeq, srcPacked, dstPacked)
	ad := adBytes(hdr.SCF, hdr.Serial)

	switch hdr.SCF.Algorithm() {
	case AlgoAuthConf:
		combined := append(append([]byte(nil), hdr.MAC[:]...), hdr.CipherAPDU...)
		plain, err := ctrCrypt(key, ctr0, combined)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		macPlain := plain[:4]
		apdu := plain[4:]

		b0 := buildB0(nonceSeq, srcPacked, dstPacked, at, hdr.TPCIByte, hdr.APCIByte, len(apdu))
		full, err := cbcMac(key, b0[:], ad, apdu)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		if subtle.ConstantTimeCompare(full[:4], macPlain) != 1 {
			return nil, fmt.Errorf("%w: mac mismatch", knx.ErrSecure)
		}
		return apdu, nil
	case AlgoAuthOnly:
		apdu := hdr.CipherAPDU
		full, err := cbcMacAuthOnly(key, apdu)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		xorBlock, err := ecbBlock(key, ctr0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
		}
		var expected [4]byte
		for i := range expected {
			expected[i] = full[i] ^ xorBlock[i]
		}
		if subtle.ConstantTimeCompare(expected[:], hdr.MAC[:]) != 1 {
			return nil, fmt.Errorf("%w: mac mismatch", knx.ErrSecure)
		}
		return apdu, nil
	default:
		return nil, fmt.Errorf("%w: algorithm id %d must be 0 or 1", knx.ErrSecure, hdr.SCF.Algorithm())
	}
}

// Extract reverses Secure for the common case where the wire's seq field
// is itself the nonce seq (S-A_Data and sync.req). A MAC mismatch fails
// with knx.ErrSecure wrapping "mac mismatch".
func Extract(key [16]byte, p Params, wire []byte) (ExtractResult, error) {
	hdr, err := ParseSecureWire(wire)
	if err != nil {
		return ExtractResult{}, err
	}
	apdu, err := DecryptSecureAPDU(key, p, hdr, hdr.WireSeq)
	if err != nil {
		return ExtractResult{}, err
	}
	return ExtractResult{SCF: hdr.SCF, Seq: hdr.WireSeq, Serial: hdr.Serial, APDU: apdu}, nil
}

func adBytes(scf SCF, serial *knx.SerialNumber) []byte {
	if serial != nil {
		return append([]byte{byte(scf)}, serial[:]...)
	}
	return []byte{byte(scf)}
}

// cbcMac is the CCM-style CBC-MAC over B0, the length-prefixed AD and the
// plaintext APDU, each independently zero-padded to the AES block size; the
// final ciphertext block is the MAC (§4.4.1: "the implementation actually
// keeps only the last block").
func cbcMac(key [16]byte, b0 []byte, ad []byte, apdu []byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, err
	}

	var buf []byte
	buf = append(buf, padBlock(b0)...)
	lenAD := make([]byte, 2)
	binary.BigEndian.PutUint16(lenAD, uint16(len(ad)))
	buf = append(buf, padBlock(append(lenAD, ad...))...)
	buf = append(buf, padBlock(apdu)...)

	mode := cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize))
	out := make([]byte, len(buf))
	mode.CryptBlocks(out, buf)

	var last [16]byte
	copy(last[:], out[len(out)-16:])
	return last, nil
}

// cbcMacAuthOnly is the simplified auth-only MAC: CBC-MAC over the
// one-byte-length-prefixed APDU alone, with no B0/AD block at all (§4.4.1).
func cbcMacAuthOnly(key [16]byte, apdu []byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, err
	}
	buf := padBlock(append([]byte{byte(len(apdu))}, apdu...))
	mode := cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize))
	out := make([]byte, len(buf))
	mode.CryptBlocks(out, buf)

	var last [16]byte
	copy(last[:], out[len(out)-16:])
	return last, nil
}

// ecbBlock encrypts a single 16-byte block directly, used both for the
// auth-only MAC's XOR mask and, via ctrCrypt, for AES-CTR.
func ecbBlock(key [16]byte, in [16]byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	block.Encrypt(out[:], in[:])
	return out, nil
}

func ctrCrypt(key [16]byte, ctr0 [16]byte, buf []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, ctr0[:])
	out := make([]byte, len(buf))
	stream.XORKeyStream(out, buf)
	return out, nil
}

func padBlock(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	n := ((len(b) + aes.BlockSize - 1) / aes.BlockSize) * aes.BlockSize
	out := make([]byte, n)
	copy(out, b)
	return out
}
