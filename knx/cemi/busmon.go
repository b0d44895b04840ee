package cemi

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// BusMon is an L_Busmon.ind frame (§3): a raw bus-level capture plus the
// monitor's status byte and timestamp.
//
// Status byte layout: bit7 frame error, bit6 bit error, bit5 parity error,
// bit4 overflow (a frame was lost before this one), bits2-0 sequence number
// 0..7.
type BusMon struct {
	FrameError bool
	BitError   bool
	ParityError bool
	Lost        bool
	Sequence    uint8 // 0..7
	Extended    bool  // true if Timestamp is a 4-byte extended counter, false if 2-byte
	Timestamp   uint32
	Raw         []byte // 1..23 raw frame bytes as seen on the bus
}

const (
	busmonMinRaw = 1
	busmonMaxRaw = 23
)

func packBusMonStatus(b BusMon) (byte, error) {
	if b.Sequence > 7 {
		return 0, fmt.Errorf("%w: busmon sequence %d exceeds 7", knx.ErrIllegalArgument, b.Sequence)
	}
	var status byte
	if b.FrameError {
		status |= 1 << 7
	}
	if b.BitError {
		status |= 1 << 6
	}
	if b.ParityError {
		status |= 1 << 5
	}
	if b.Lost {
		status |= 1 << 4
	}
	status |= b.Sequence & 0x07
	return status, nil
}

func unpackBusMonStatus(status byte) BusMon {
	return BusMon{
		FrameError:  status&(1<<7) != 0,
		BitError:    status&(1<<6) != 0,
		ParityError: status&(1<<5) != 0,
		Lost:        status&(1<<4) != 0,
		Sequence:    status & 0x07,
	}
}

// emit serialises a BusMon frame. The message-code byte and the
// additional-info length byte (always 0; no block type is defined for
// busmon frames here) are written by the caller in frame.go.
func (b *BusMon) emit() ([]byte, error) {
	if len(b.Raw) < busmonMinRaw || len(b.Raw) > busmonMaxRaw {
		return nil, fmt.Errorf("%w: busmon raw frame length %d out of range %d..%d", knx.ErrIllegalArgument, len(b.Raw), busmonMinRaw, busmonMaxRaw)
	}
	status, err := packBusMonStatus(*b)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+4+len(b.Raw))
	out = append(out, status)
	if b.Extended {
		out = append(out, byte(b.Timestamp>>24), byte(b.Timestamp>>16), byte(b.Timestamp>>8), byte(b.Timestamp))
	} else {
		out = append(out, byte(b.Timestamp>>8), byte(b.Timestamp))
	}
	out = append(out, b.Raw...)
	return out, nil
}

// parseBusMon decodes the body following the message-code and
// additional-info-length bytes. Because the timestamp width is not tagged
// on the wire, the codec tries the 2-byte (non-extended) interpretation
// first and only falls back to 4-byte if that leaves an invalid raw-frame
// length.
func parseBusMon(data []byte) (*BusMon, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: busmon frame missing status byte", knx.ErrFrameFormat)
	}
	b := unpackBusMonStatus(data[0])
	rest := data[1:]

	tryWidth := func(width int) bool {
		if len(rest) < width {
			return false
		}
		rawLen := len(rest) - width
		return rawLen >= busmonMinRaw && rawLen <= busmonMaxRaw
	}

	switch {
	case tryWidth(2):
		b.Extended = false
		b.Timestamp = uint32(rest[0])<<8 | uint32(rest[1])
		b.Raw = append([]byte(nil), rest[2:]...)
	case tryWidth(4):
		b.Extended = true
		b.Timestamp = uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3])
		b.Raw = append([]byte(nil), rest[4:]...)
	default:
		return nil, fmt.Errorf("%w: busmon frame length %d does not fit a 2- or 4-byte timestamp plus a 1..23 byte raw frame", knx.ErrFrameFormat, len(data))
	}

	return &b, nil
}
