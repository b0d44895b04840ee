package keyring

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// InterfaceType distinguishes the three kinds of Interface entry a keyring
// can describe (§3).
type InterfaceType uint8

const (
	Backbone InterfaceType = iota
	Tunneling
	USB
)

func (t InterfaceType) String() string {
	switch t {
	case Backbone:
		return "Backbone"
	case Tunneling:
		return "Tunneling"
	case USB:
		return "USB"
	default:
		return fmt.Sprintf("InterfaceType(%d)", uint8(t))
	}
}

// Interface is one host entry in the keyring: a backbone, tunnelling, or
// USB access point and what it is allowed to send.
type Interface struct {
	Type InterfaceType

	// Host is the individual address of the interface itself.
	Host knx.IndividualAddr

	// TunnelingAddress is the address assigned to the tunnel client; zero
	// for Backbone and USB interfaces.
	TunnelingAddress knx.IndividualAddr

	// UserID identifies the tunnelling user slot, 0-127.
	UserID uint8

	// EncryptedPassword and EncryptedAuth are AES-CBC ciphertext; decrypt
	// with (*Keyring).DecryptPassword.
	EncryptedPassword []byte
	EncryptedAuth     []byte

	// Senders maps each group address this interface may act on to the
	// set of individual addresses permitted to send on it.
	Senders map[knx.GroupAddr][]knx.IndividualAddr
}

// Device is one secure-capable device entry, keyed by individual address in
// Keyring.Devices.
type Device struct {
	IndividualAddress knx.IndividualAddr

	// EncryptedToolKey and EncryptedManagementPassword are AES-CBC
	// ciphertext; decrypt with (*Keyring).DecryptKey /
	// (*Keyring).DecryptPassword respectively.
	EncryptedToolKey            []byte
	EncryptedManagementPassword []byte
	EncryptedAuth               []byte

	// LastSeenSequence is the 6-byte sequence number ETS recorded the
	// device at, used to seed a fresh secure session's replay window.
	LastSeenSequence [6]byte
}

// BackboneInfo describes the multicast backbone key shared by every
// Backbone interface in the project.
type BackboneInfo struct {
	MulticastAddress string
	EncryptedKey      []byte
}

// Keyring is the parsed, signature-verified contents of a ".knxkeys"
// export. It is immutable after Load returns: every field is a plain value
// or a map/slice populated once and never mutated again.
type Keyring struct {
	Project   string
	CreatedBy string
	Created   string

	// Signature is the 16-byte truncated SHA-256 ETS recorded over the
	// canonical document, decoded from the Signature attribute.
	Signature [16]byte

	// createdHash is SHA-256(UTF-8(Created))[0:16], used as the AES-CBC IV
	// for every decrypt operation below.
	createdHash [16]byte

	Backbone *BackboneInfo

	Interfaces []Interface

	// GroupKeys maps a group address to its AES-CBC-encrypted group key.
	GroupKeys map[knx.GroupAddr][]byte

	// Devices maps an individual address to its Device entry.
	Devices map[knx.IndividualAddr]Device
}
