package cemi

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// Ctrl1 is the first control octet of an L-Data frame (§4.2):
//
//	bit7    standard frame (1) / extended frame (0)
//	bit6    reserved, always 0
//	bit5    repeat flag; on .req it means "do not repeat", on .ind/.con it is
//	        inverted to mean "this is a repetition"
//	bit4    broadcast; 1 = domain broadcast, 0 = system broadcast
//	bit3-2  Priority
//	bit1    acknowledge request
//	bit0    confirm; 0 = no error, 1 = error (meaningful only on .con)
type Ctrl1 struct {
	StandardFrame bool
	Repeat        bool
	DomainBcast   bool
	Priority      knx.Priority
	AckRequest    bool
	ConfirmError  bool
}

// Pack encodes Ctrl1 into a single byte.
func (c Ctrl1) Pack() byte {
	var b byte
	if c.StandardFrame {
		b |= 1 << 7
	}
	if c.Repeat {
		b |= 1 << 5
	}
	if c.DomainBcast {
		b |= 1 << 4
	}
	b |= byte(c.Priority&0x03) << 2
	if c.AckRequest {
		b |= 1 << 1
	}
	if c.ConfirmError {
		b |= 1 << 0
	}
	return b
}

// UnpackCtrl1 decodes a single control byte into Ctrl1.
func UnpackCtrl1(b byte) Ctrl1 {
	return Ctrl1{
		StandardFrame: b&(1<<7) != 0,
		Repeat:        b&(1<<5) != 0,
		DomainBcast:   b&(1<<4) != 0,
		Priority:      knx.Priority(b>>2) & 0x03,
		AckRequest:    b&(1<<1) != 0,
		ConfirmError:  b&(1<<0) != 0,
	}
}

// Ctrl2 is the second control octet of an L-Data frame (§4.2):
//
//	bit7    destination address is a group address (1) or individual (0)
//	bit6-4  hop count, 0-7
//	bit3-0  extended frame format; 0 for standard frames
type Ctrl2 struct {
	GroupDest   bool
	HopCount    uint8
	ExtendedFmt uint8
}

// Pack encodes Ctrl2 into a single byte.
func (c Ctrl2) Pack() (byte, error) {
	if c.HopCount > 7 {
		return 0, fmt.Errorf("%w: hop count %d exceeds 7", knx.ErrIllegalArgument, c.HopCount)
	}
	if c.ExtendedFmt > 0x0F {
		return 0, fmt.Errorf("%w: extended frame format %d exceeds 4 bits", knx.ErrIllegalArgument, c.ExtendedFmt)
	}
	var b byte
	if c.GroupDest {
		b |= 1 << 7
	}
	b |= (c.HopCount & 0x07) << 4
	b |= c.ExtendedFmt & 0x0F
	return b, nil
}

// UnpackCtrl2 decodes a single control byte into Ctrl2.
func UnpackCtrl2(b byte) Ctrl2 {
	return Ctrl2{
		GroupDest:   b&(1<<7) != 0,
		HopCount:    (b >> 4) & 0x07,
		ExtendedFmt: b & 0x0F,
	}
}
