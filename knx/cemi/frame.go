package cemi

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// Frame is the common contract over the five cEMI frame shapes (§3): typed
// frames for L-Data, bus-monitor, device-management and reset.
type Frame interface {
	MessageCode() MessageCode

	// Emit serialises the frame to its wire bytes, including the leading
	// message-code byte.
	Emit() ([]byte, error)
}

// Emit serialises any Frame to its wire bytes; it is the package-level form
// of the Frame.Emit method.
func Emit(f Frame) ([]byte, error) { return f.Emit() }

// Emit is the full cEMI header for LData: message code, additional-info
// length and blocks, ctrl1/ctrl2, source/dest and TPDU.
func (f *LData) Emit() ([]byte, error) { return f.emit() }

// MessageCode always reports LBusmonInd.
func (b *BusMon) MessageCode() MessageCode { return LBusmonInd }

// Emit prepends the message code and a zero additional-info length to the
// status/timestamp/raw body; this codec defines no additional-info block
// type for bus-monitor frames.
func (b *BusMon) Emit() ([]byte, error) {
	body, err := b.emit()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+len(body))
	out = append(out, byte(LBusmonInd), 0)
	out = append(out, body...)
	return out, nil
}

// MessageCode reports the frame's own device-management code.
func (d *DeviceMgmt) MessageCode() MessageCode { return d.Code }

func (d *DeviceMgmt) Emit() ([]byte, error) { return d.emit() }

// MessageCode reports the frame's own reset code.
func (r *Reset) MessageCode() MessageCode { return r.Code }

func (r *Reset) Emit() ([]byte, error) { return r.emit() }

// Parse dispatches on the leading message-code byte and returns the typed
// Frame. Unknown codes fail with ErrFrameFormat. Trailing bytes beyond a
// frame shape's declared length are never an error; callers that need to
// know about them must track length themselves before calling Parse (§4.2
// "parsing never throws on trailing bytes").
func Parse(data []byte) (Frame, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty cEMI frame", knx.ErrFrameFormat)
	}
	mc := MessageCode(data[0])
	rest := data[1:]

	switch {
	case mc.IsLData():
		return parseLData(mc, rest)
	case mc == LBusmonInd:
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: busmon frame missing additional-info length byte", knx.ErrFrameFormat)
		}
		ailLen := int(rest[0])
		if len(rest) < 1+ailLen {
			return nil, fmt.Errorf("%w: busmon additional-info declares %d bytes, only %d available", knx.ErrFrameFormat, ailLen, len(rest)-1)
		}
		return parseBusMon(rest[1+ailLen:])
	case mc.IsDeviceMgmt():
		return parseDeviceMgmt(mc, rest)
	case mc.IsReset():
		return parseReset(mc)
	default:
		return nil, fmt.Errorf("%w: unknown message code %s", knx.ErrFrameFormat, mc)
	}
}

// CopyFrame returns a deep clone for the mutable-at-construction LData
// shape and the original reference for the other, already-immutable shapes
// (§9 "Mutable cEMI-ex frames").
func CopyFrame(f Frame) Frame {
	if ld, ok := f.(*LData); ok {
		return Copy(ld)
	}
	return f
}
