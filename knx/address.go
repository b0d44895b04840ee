package knx

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is the discriminated union over IndividualAddr and GroupAddr
// (§3). Both implement it; a type switch (or Packed()+dynamic type
// comparison through plain Go interface equality) is the discriminator.
type Address interface {
	fmt.Stringer

	// Packed returns the 16-bit wire representation.
	Packed() uint16

	isAddress()
}

// Individual address bit widths: area(4)·line(4)·device(8).
const (
	maxArea   = 0x0F
	maxLine   = 0x0F
	maxDevice = 0xFF
)

// IndividualAddr identifies a physical device on the bus: area.line.device.
type IndividualAddr uint16

func (IndividualAddr) isAddress() {}

// Packed returns the 16-bit wire representation.
func (a IndividualAddr) Packed() uint16 { return uint16(a) }

// NewIndividualAddr builds an IndividualAddr from its three fields,
// rejecting any field that overflows its bit width.
func NewIndividualAddr(area, line, device uint8) (IndividualAddr, error) {
	if area > maxArea {
		return 0, fmt.Errorf("%w: area %d exceeds %d", ErrIllegalArgument, area, maxArea)
	}
	if line > maxLine {
		return 0, fmt.Errorf("%w: line %d exceeds %d", ErrIllegalArgument, line, maxLine)
	}
	return IndividualAddr(uint16(area)<<12 | uint16(line)<<8 | uint16(device)), nil
}

// Area returns the 4-bit area field.
func (a IndividualAddr) Area() uint8 { return uint8(a>>12) & maxArea }

// Line returns the 4-bit line field.
func (a IndividualAddr) Line() uint8 { return uint8(a>>8) & maxLine }

// Device returns the 8-bit device field.
func (a IndividualAddr) Device() uint8 { return uint8(a) }

// String renders "area.line.device".
func (a IndividualAddr) String() string {
	return fmt.Sprintf("%d.%d.%d", a.Area(), a.Line(), a.Device())
}

// ParseIndividualAddr parses the "area.line.device" format.
func ParseIndividualAddr(s string) (IndividualAddr, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: expected area.line.device, got %q", ErrIllegalArgument, s)
	}

	area, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || area > maxArea {
		return 0, fmt.Errorf("%w: area must be 0-%d, got %q", ErrIllegalArgument, maxArea, parts[0])
	}
	line, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || line > maxLine {
		return 0, fmt.Errorf("%w: line must be 0-%d, got %q", ErrIllegalArgument, maxLine, parts[1])
	}
	device, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || device > maxDevice {
		return 0, fmt.Errorf("%w: device must be 0-%d, got %q", ErrIllegalArgument, maxDevice, parts[2])
	}

	return IndividualAddr(uint16(area)<<12 | uint16(line)<<8 | uint16(device)), nil
}

// IndividualAddrFromUint16 builds an IndividualAddr from its packed form.
func IndividualAddrFromUint16(value uint16) IndividualAddr {
	return IndividualAddr(value)
}

// Group address bit widths. ThreeLevel uses main(5)·middle(3)·sub(8);
// TwoLevel uses main(5)·sub(11) — both total 16 bits, matching the packed
// value regardless of which style is active. See DESIGN.md "group address
// bit widths" for why 5/3/8 is used rather than the 4/4/8 split spec.md's
// prose mentions: the worked example in spec.md §8 (S6) only round-trips
// under 5/3/8.
const (
	gaMainBits3   = 5
	gaMiddleBits3 = 3
	gaSubBits3    = 8
	gaMainMask3   = (1 << gaMainBits3) - 1
	gaMiddleMask3 = (1 << gaMiddleBits3) - 1
	gaSubMask3    = (1 << gaSubBits3) - 1

	gaMainBits2 = 5
	gaSubBits2  = 11
	gaMainMask2 = (1 << gaMainBits2) - 1
	gaSubMask2  = (1 << gaSubBits2) - 1
)

// GroupAddr identifies a communication group. Its packed form is always the
// 16-bit value; Main/Middle/Sub only have meaning relative to the active
// GroupStyle (see SetGroupStyle).
type GroupAddr uint16

func (GroupAddr) isAddress() {}

// Packed returns the 16-bit wire representation.
func (a GroupAddr) Packed() uint16 { return uint16(a) }

// GroupAddrFromUint16 builds a GroupAddr from its packed form.
func GroupAddrFromUint16(value uint16) GroupAddr {
	return GroupAddr(value)
}

// NewThreeLevelGroupAddr builds a GroupAddr from main/middle/sub fields.
func NewThreeLevelGroupAddr(main, middle, sub uint8) (GroupAddr, error) {
	if main > gaMainMask3 {
		return 0, fmt.Errorf("%w: main group must be 0-%d, got %d", ErrIllegalArgument, gaMainMask3, main)
	}
	if middle > gaMiddleMask3 {
		return 0, fmt.Errorf("%w: middle group must be 0-%d, got %d", ErrIllegalArgument, gaMiddleMask3, middle)
	}
	return GroupAddr(uint16(main)<<11 | uint16(middle)<<8 | uint16(sub)), nil
}

// NewTwoLevelGroupAddr builds a GroupAddr from main/sub fields.
func NewTwoLevelGroupAddr(main uint8, sub uint16) (GroupAddr, error) {
	if main > gaMainMask2 {
		return 0, fmt.Errorf("%w: main group must be 0-%d, got %d", ErrIllegalArgument, gaMainMask2, main)
	}
	if sub > gaSubMask2 {
		return 0, fmt.Errorf("%w: sub group must be 0-%d, got %d", ErrIllegalArgument, gaSubMask2, sub)
	}
	return GroupAddr(uint16(main)<<11 | sub), nil
}

// Main returns the main group field under the active GroupStyle.
func (a GroupAddr) Main() uint8 { return uint8(a>>11) & gaMainMask3 }

// Middle returns the middle group field (ThreeLevel only; 0 under TwoLevel).
func (a GroupAddr) Middle() uint8 {
	if CurrentGroupStyle() == TwoLevel {
		return 0
	}
	return uint8(a>>8) & gaMiddleMask3
}

// Sub returns the sub group field under the active GroupStyle.
func (a GroupAddr) Sub() uint16 {
	if CurrentGroupStyle() == TwoLevel {
		return uint16(a) & gaSubMask2
	}
	return uint16(a) & gaSubMask3
}

// String renders the address per the active GroupStyle.
func (a GroupAddr) String() string {
	if CurrentGroupStyle() == TwoLevel {
		return fmt.Sprintf("%d/%d", a.Main(), a.Sub())
	}
	return fmt.Sprintf("%d/%d/%d", a.Main(), a.Middle(), a.Sub())
}

// ParseGroupAddr parses a group address string in the active GroupStyle.
func ParseGroupAddr(s string) (GroupAddr, error) {
	parts := strings.Split(s, "/")
	switch CurrentGroupStyle() {
	case TwoLevel:
		if len(parts) != 2 {
			return 0, fmt.Errorf("%w: expected main/sub format, got %q", ErrIllegalArgument, s)
		}
		main, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil || main > gaMainMask2 {
			return 0, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrIllegalArgument, gaMainMask2, parts[0])
		}
		sub, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil || sub > gaSubMask2 {
			return 0, fmt.Errorf("%w: sub group must be 0-%d, got %q", ErrIllegalArgument, gaSubMask2, parts[1])
		}
		return NewTwoLevelGroupAddr(uint8(main), uint16(sub))
	default:
		if len(parts) != 3 {
			return 0, fmt.Errorf("%w: expected main/middle/sub format, got %q", ErrIllegalArgument, s)
		}
		main, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil || main > gaMainMask3 {
			return 0, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrIllegalArgument, gaMainMask3, parts[0])
		}
		middle, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil || middle > gaMiddleMask3 {
			return 0, fmt.Errorf("%w: middle group must be 0-%d, got %q", ErrIllegalArgument, gaMiddleMask3, parts[1])
		}
		sub, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil || sub > gaSubMask3 {
			return 0, fmt.Errorf("%w: sub group must be 0-%d, got %q", ErrIllegalArgument, gaSubMask3, parts[2])
		}
		return NewThreeLevelGroupAddr(uint8(main), uint8(middle), uint8(sub))
	}
}

// EqualAddress reports whether two addresses have the same packed value and
// the same concrete type (§4.1: "equality is by the 16-bit packed value plus
// the discriminator").
func EqualAddress(a, b Address) bool {
	ai, aIsIndividual := a.(IndividualAddr)
	bi, bIsIndividual := b.(IndividualAddr)
	if aIsIndividual || bIsIndividual {
		return aIsIndividual && bIsIndividual && ai == bi
	}
	ag, _ := a.(GroupAddr)
	bg, _ := b.(GroupAddr)
	return ag == bg
}
