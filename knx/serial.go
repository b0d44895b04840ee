package knx

import (
	"encoding/hex"
	"fmt"
)

// SerialNumberLen is the fixed length of a KNX serial number.
const SerialNumberLen = 6

// SerialNumber is an opaque 6-byte device serial number, used in the secure
// sync.req and secure-wrapper headers and (on open media) as the alternative
// payload of an RF-medium additional-info block (§3).
type SerialNumber [SerialNumberLen]byte

// ParseSerialNumber copies exactly 6 bytes into a SerialNumber.
func ParseSerialNumber(b []byte) (SerialNumber, error) {
	var sn SerialNumber
	if len(b) != SerialNumberLen {
		return sn, fmt.Errorf("%w: serial number must be %d bytes, got %d", ErrIllegalArgument, SerialNumberLen, len(b))
	}
	copy(sn[:], b)
	return sn, nil
}

// IsZero reports whether every byte is zero — the sentinel used in §4.4.3
// for "we are the target" system-broadcast sync checks.
func (sn SerialNumber) IsZero() bool {
	return sn == SerialNumber{}
}

// String renders the serial number as lower-case hex.
func (sn SerialNumber) String() string {
	return hex.EncodeToString(sn[:])
}
