package secure

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
	"github.com/nerrad567/calimero/knx/keyring"
)

// Context holds the decrypted key material an SAL needs: group keys by
// group address and device tool keys by individual address. It is built
// once from a loaded Keyring and copied by value into every field, so a
// later keyring reload never mutates a Context already handed to an SAL
// (§5 "Shared-resource policy": "group-key/tool-key tables ... are
// captured by copy at construction — later keyring reloads require
// building a new S-AL").
type Context struct {
	groupKeys map[knx.GroupAddr][16]byte
	toolKeys  map[knx.IndividualAddr][16]byte
}

// NewContext decrypts every group key and device tool key in kr with
// password and returns an immutable Context. Any key that fails to decrypt
// fails the whole call: a ciphertext of invalid length with
// knx.ErrFrameFormat, a decrypted key that is not 16 bytes with
// knx.ErrSecure.
func NewContext(kr *keyring.Keyring, password string) (*Context, error) {
	ctx := &Context{
		groupKeys: make(map[knx.GroupAddr][16]byte),
		toolKeys:  make(map[knx.IndividualAddr][16]byte),
	}

	for ga, enc := range kr.GroupKeys {
		key, err := decrypt16(kr, password, enc)
		if err != nil {
			return nil, fmt.Errorf("group key for %s: %w", ga, err)
		}
		ctx.groupKeys[ga] = key
	}

	for addr, dev := range kr.Devices {
		if len(dev.EncryptedToolKey) == 0 {
			continue
		}
		key, err := decrypt16(kr, password, dev.EncryptedToolKey)
		if err != nil {
			return nil, fmt.Errorf("tool key for %s: %w", addr, err)
		}
		ctx.toolKeys[addr] = key
	}

	return ctx, nil
}

func decrypt16(kr *keyring.Keyring, password string, enc []byte) ([16]byte, error) {
	var key [16]byte
	plain, err := kr.DecryptKey(password, enc)
	if err != nil {
		return key, err
	}
	if len(plain) != 16 {
		return key, fmt.Errorf("%w: decrypted key is %d bytes, want 16", knx.ErrSecure, len(plain))
	}
	copy(key[:], plain)
	return key, nil
}

// GroupKey returns the key for a group address and whether it exists.
func (c *Context) GroupKey(ga knx.GroupAddr) ([16]byte, bool) {
	k, ok := c.groupKeys[ga]
	return k, ok
}

// ToolKey returns the tool-access key for a device and whether it exists.
func (c *Context) ToolKey(addr knx.IndividualAddr) ([16]byte, bool) {
	k, ok := c.toolKeys[addr]
	return k, ok
}
