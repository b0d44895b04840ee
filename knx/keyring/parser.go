package keyring

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/nerrad567/calimero/internal/config"
	"github.com/nerrad567/calimero/internal/obslog"
	"github.com/nerrad567/calimero/knx"
)

const (
	keyringNamespace = "http://knx.org/xml/keyring/1"
	pbkdfSalt        = "1.keyring.ets.knx.org"
	pbkdfIterations  = 65536
	pbkdfKeyLen      = 16
)

// xmlGroup is a <Group> child of <Interface>, recording which individual
// addresses may send on a group address through that interface.
type xmlGroup struct {
	Address string `xml:"Address,attr"`
	Senders string `xml:"Senders,attr"`
}

type xmlInterface struct {
	Type              string     `xml:"Type,attr"`
	Host              string     `xml:"Host,attr"`
	IndividualAddress string     `xml:"IndividualAddress,attr"`
	UserID            uint8      `xml:"UserID,attr"`
	Password          string     `xml:"Password,attr"`
	Authentication    string     `xml:"Authentication,attr"`
	Groups            []xmlGroup `xml:"Group"`
}

type xmlBackbone struct {
	MulticastAddress string `xml:"MulticastAddress,attr"`
	Key              string `xml:"Key,attr"`
}

type xmlDevice struct {
	IndividualAddress  string `xml:"IndividualAddress,attr"`
	ToolKey            string `xml:"ToolKey,attr"`
	ManagementPassword string `xml:"ManagementPassword,attr"`
	Authentication     string `xml:"Authentication,attr"`
	SequenceNumber     string `xml:"SequenceNumber,attr"`
}

type xmlGroupAddress struct {
	Address string `xml:"Address,attr"`
	Key     string `xml:"Key,attr"`
}

type xmlKeyring struct {
	XMLName    xml.Name          `xml:"Keyring"`
	Project    string            `xml:"Project,attr"`
	CreatedBy  string            `xml:"CreatedBy,attr"`
	Created    string            `xml:"Created,attr"`
	Signature  string            `xml:"Signature,attr"`
	Backbone   *xmlBackbone      `xml:"Backbone"`
	Interfaces []xmlInterface    `xml:"Interface"`
	Devices    []xmlDevice       `xml:"Devices>Device"`
	Groups     []xmlGroupAddress `xml:"GroupAddresses>Group"`
}

// Load reads, structurally parses and signature-verifies the ".knxkeys"
// document at cfg.Path, deriving the key-encryption key from cfg.Password.
//
// On a signature mismatch, Load fails with knx.ErrSecure when cfg.Strict is
// true; otherwise it logs a warning through logger and returns the keyring
// anyway, since a non-strict caller has already accepted the risk.
func Load(ctx context.Context, cfg config.KeyringConfig, logger obslog.Logger) (*Keyring, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: keyring path is empty", knx.ErrIllegalArgument)
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", knx.ErrIllegalArgument, cfg.Path, err)
	}

	var doc xmlKeyring
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", knx.ErrFrameFormat, err)
	}
	if doc.XMLName.Space != keyringNamespace {
		return nil, fmt.Errorf("%w: unexpected namespace %q", knx.ErrFrameFormat, doc.XMLName.Space)
	}

	sig, err := base64.StdEncoding.DecodeString(doc.Signature)
	if err != nil || len(sig) != 16 {
		return nil, fmt.Errorf("%w: malformed Signature attribute", knx.ErrFrameFormat)
	}

	createdSum := sha256.Sum256([]byte(doc.Created))
	var createdHash [16]byte
	copy(createdHash[:], createdSum[:16])

	passwordHash := pbkdf2.Key([]byte(cfg.Password), []byte(pbkdfSalt), pbkdfIterations, pbkdfKeyLen, sha256.New)
	defer zero(passwordHash)

	if err := verifySignature(data, passwordHash, sig); err != nil {
		if cfg.Strict {
			return nil, err
		}
		if logger != nil {
			logger.Warn("keyring signature mismatch, continuing in non-strict mode", "path", cfg.Path, "error", err)
		}
	}

	k := &Keyring{
		Project:     doc.Project,
		CreatedBy:   doc.CreatedBy,
		Created:     doc.Created,
		createdHash: createdHash,
		GroupKeys:   make(map[knx.GroupAddr][]byte, len(doc.Groups)),
		Devices:     make(map[knx.IndividualAddr]Device, len(doc.Devices)),
	}
	copy(k.Signature[:], sig)

	if doc.Backbone != nil {
		key, err := base64.StdEncoding.DecodeString(doc.Backbone.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: backbone key: %v", knx.ErrFrameFormat, err)
		}
		k.Backbone = &BackboneInfo{MulticastAddress: doc.Backbone.MulticastAddress, EncryptedKey: key}
	}

	for _, xi := range doc.Interfaces {
		iface, err := parseInterface(xi)
		if err != nil {
			return nil, err
		}
		k.Interfaces = append(k.Interfaces, iface)
	}

	for _, xd := range doc.Devices {
		dev, err := parseDevice(xd)
		if err != nil {
			return nil, err
		}
		k.Devices[dev.IndividualAddress] = dev
	}

	for _, xg := range doc.Groups {
		ga, err := knx.ParseGroupAddr(xg.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: group address %q: %v", knx.ErrFrameFormat, xg.Address, err)
		}
		key, err := base64.StdEncoding.DecodeString(xg.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: group key for %s: %v", knx.ErrFrameFormat, xg.Address, err)
		}
		k.GroupKeys[ga] = key
	}

	return k, nil
}

func parseInterface(xi xmlInterface) (Interface, error) {
	var typ InterfaceType
	switch xi.Type {
	case "Backbone":
		typ = Backbone
	case "Tunneling":
		typ = Tunneling
	case "USB":
		typ = USB
	default:
		return Interface{}, fmt.Errorf("%w: unknown interface type %q", knx.ErrFrameFormat, xi.Type)
	}
	if xi.UserID > 127 {
		return Interface{}, fmt.Errorf("%w: user id %d exceeds 127", knx.ErrFrameFormat, xi.UserID)
	}

	host, err := knx.ParseIndividualAddr(xi.Host)
	if err != nil {
		return Interface{}, fmt.Errorf("%w: interface host %q: %v", knx.ErrFrameFormat, xi.Host, err)
	}

	var tunnelAddr knx.IndividualAddr
	if xi.IndividualAddress != "" {
		tunnelAddr, err = knx.ParseIndividualAddr(xi.IndividualAddress)
		if err != nil {
			return Interface{}, fmt.Errorf("%w: tunnelling address %q: %v", knx.ErrFrameFormat, xi.IndividualAddress, err)
		}
	}

	password, err := decodeOptionalBase64(xi.Password)
	if err != nil {
		return Interface{}, fmt.Errorf("%w: interface password: %v", knx.ErrFrameFormat, err)
	}
	auth, err := decodeOptionalBase64(xi.Authentication)
	if err != nil {
		return Interface{}, fmt.Errorf("%w: interface authentication: %v", knx.ErrFrameFormat, err)
	}

	senders := make(map[knx.GroupAddr][]knx.IndividualAddr, len(xi.Groups))
	for _, g := range xi.Groups {
		ga, err := knx.ParseGroupAddr(g.Address)
		if err != nil {
			return Interface{}, fmt.Errorf("%w: group address %q: %v", knx.ErrFrameFormat, g.Address, err)
		}
		var addrs []knx.IndividualAddr
		for _, tok := range strings.Fields(g.Senders) {
			ia, err := knx.ParseIndividualAddr(tok)
			if err != nil {
				return Interface{}, fmt.Errorf("%w: sender address %q: %v", knx.ErrFrameFormat, tok, err)
			}
			addrs = append(addrs, ia)
		}
		senders[ga] = addrs
	}

	return Interface{
		Type:              typ,
		Host:              host,
		TunnelingAddress:  tunnelAddr,
		UserID:            xi.UserID,
		EncryptedPassword: password,
		EncryptedAuth:     auth,
		Senders:           senders,
	}, nil
}

func parseDevice(xd xmlDevice) (Device, error) {
	addr, err := knx.ParseIndividualAddr(xd.IndividualAddress)
	if err != nil {
		return Device{}, fmt.Errorf("%w: device address %q: %v", knx.ErrFrameFormat, xd.IndividualAddress, err)
	}
	toolKey, err := decodeOptionalBase64(xd.ToolKey)
	if err != nil {
		return Device{}, fmt.Errorf("%w: device %s tool key: %v", knx.ErrFrameFormat, addr, err)
	}
	mgmtPassword, err := decodeOptionalBase64(xd.ManagementPassword)
	if err != nil {
		return Device{}, fmt.Errorf("%w: device %s management password: %v", knx.ErrFrameFormat, addr, err)
	}
	auth, err := decodeOptionalBase64(xd.Authentication)
	if err != nil {
		return Device{}, fmt.Errorf("%w: device %s authentication: %v", knx.ErrFrameFormat, addr, err)
	}

	var seq [6]byte
	if xd.SequenceNumber != "" {
		raw, err := hex.DecodeString(xd.SequenceNumber)
		if err != nil || len(raw) != 6 {
			return Device{}, fmt.Errorf("%w: device %s sequence number %q", knx.ErrFrameFormat, addr, xd.SequenceNumber)
		}
		copy(seq[:], raw)
	}

	return Device{
		IndividualAddress:           addr,
		EncryptedToolKey:            toolKey,
		EncryptedManagementPassword: mgmtPassword,
		EncryptedAuth:               auth,
		LastSeenSequence:            seq,
	}, nil
}

func decodeOptionalBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// verifySignature walks data a second time, rebuilding the exact byte
// stream ETS signs, and compares its truncated SHA-256 against sig.
func verifySignature(data []byte, passwordHash []byte, sig []byte) error {
	stream, err := canonicalStream(data)
	if err != nil {
		return fmt.Errorf("%w: %v", knx.ErrFrameFormat, err)
	}
	writeLenPrefixed(stream, []byte(base64.StdEncoding.EncodeToString(passwordHash)))

	sum := sha256.Sum256(stream.Bytes())
	if !bytes.Equal(sum[:16], sig) {
		return fmt.Errorf("%w: keyring signature mismatch", knx.ErrSecure)
	}
	return nil
}

// canonicalStream reproduces ETS's hand-rolled canonicalisation: for every
// start element, 0x01 followed by the length-prefixed local name, then
// every attribute (excluding xmlns declarations and Signature) sorted by
// local name and written as length-prefixed name/value pairs; for every end
// element, a single 0x02 byte. The one-byte length prefixes match the
// convention used for additional-info blocks elsewhere in this module; ETS
// never signs a name or value longer than 255 bytes in practice.
func canonicalStream(data []byte) (*bytes.Buffer, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var buf bytes.Buffer

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			buf.WriteByte(0x01)
			writeLenPrefixed(&buf, []byte(t.Name.Local))

			attrs := make([]xml.Attr, 0, len(t.Attr))
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || a.Name.Local == "Signature" {
					continue
				}
				attrs = append(attrs, a)
			}
			sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name.Local < attrs[j].Name.Local })
			for _, a := range attrs {
				writeLenPrefixed(&buf, []byte(a.Name.Local))
				writeLenPrefixed(&buf, []byte(a.Value))
			}
		case xml.EndElement:
			buf.WriteByte(0x02)
		}
	}
	return &buf, nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	buf.WriteByte(byte(len(b)))
	buf.Write(b)
}

// DecryptKey recovers a plaintext key from ciphertext recorded in the
// keyring (a group key, backbone key or device tool key), given the same
// password Load was called with.
func (k *Keyring) DecryptKey(password string, ciphertext []byte) ([]byte, error) {
	passwordHash := pbkdf2.Key([]byte(password), []byte(pbkdfSalt), pbkdfIterations, pbkdfKeyLen, sha256.New)
	defer zero(passwordHash)
	return aesCBCDecrypt(passwordHash, k.createdHash[:], ciphertext)
}

// DecryptPassword recovers a plaintext password or auth code: the same
// AES-CBC step as DecryptKey, then stripping the 8-byte random preamble and
// the PKCS-style trailer whose length equals its own last byte.
func (k *Keyring) DecryptPassword(password string, ciphertext []byte) ([]byte, error) {
	plain, err := k.DecryptKey(password, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plain) < 9 {
		return nil, fmt.Errorf("%w: decrypted password shorter than preamble+trailer", knx.ErrFrameFormat)
	}
	trimmed := plain[8:]
	padLen := int(trimmed[len(trimmed)-1])
	if padLen == 0 || padLen > len(trimmed) {
		return nil, fmt.Errorf("%w: invalid password trailer length %d", knx.ErrFrameFormat, padLen)
	}
	return trimmed[:len(trimmed)-padLen], nil
}

func aesCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of the AES block size", knx.ErrFrameFormat, len(ciphertext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", knx.ErrSecure, err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return plain, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
