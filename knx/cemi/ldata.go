package cemi

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// LData is an L-Data frame (standard or extended, §4.2). Values are
// immutable once returned from Build or Parse; mutate through a fresh
// LDataBuilder and Build again, or use Copy for a deep clone (§9 "Mutable
// cEMI-ex frames").
type LData struct {
	messageCode MessageCode
	ctrl1       Ctrl1
	ctrl2       Ctrl2
	source      knx.IndividualAddr
	dest        knx.Address
	info        []Info
	tpdu        []byte
}

func (f *LData) MessageCode() MessageCode   { return f.messageCode }
func (f *LData) Ctrl1() Ctrl1               { return f.ctrl1 }
func (f *LData) Ctrl2() Ctrl2               { return f.ctrl2 }
func (f *LData) Source() knx.IndividualAddr { return f.source }
func (f *LData) Dest() knx.Address          { return f.dest }

// Info returns a defensive copy of the additional-information blocks.
func (f *LData) Info() []Info { return append([]Info(nil), f.info...) }

// TPDU returns a defensive copy of the transport-layer payload.
func (f *LData) TPDU() []byte { return append([]byte(nil), f.tpdu...) }

// IsExtendedFrame reports whether ctrl1's standard-frame bit is clear.
func (f *LData) IsExtendedFrame() bool { return !f.ctrl1.StandardFrame }

// Copy returns a deep clone of f (§9).
func Copy(f *LData) *LData {
	clone := *f
	clone.info = append([]Info(nil), f.info...)
	clone.tpdu = append([]byte(nil), f.tpdu...)
	return &clone
}

// LDataBuilder assembles an LData frame. Obtain one with NewLData, configure
// it, then call Build; the frame it returns is immutable.
type LDataBuilder struct {
	f LData
}

// NewLData starts a builder for the given message code.
func NewLData(mc MessageCode) *LDataBuilder {
	return &LDataBuilder{f: LData{messageCode: mc}}
}

func (b *LDataBuilder) WithCtrl1(c Ctrl1) *LDataBuilder { b.f.ctrl1 = c; return b }
func (b *LDataBuilder) WithCtrl2(c Ctrl2) *LDataBuilder { b.f.ctrl2 = c; return b }

func (b *LDataBuilder) WithSource(a knx.IndividualAddr) *LDataBuilder {
	b.f.source = a
	return b
}

// WithDest sets the destination; it must be an IndividualAddr or GroupAddr.
// The ctrl2 group-destination bit is derived from it at Build time, so it
// need not be set explicitly on the Ctrl2 passed to WithCtrl2.
func (b *LDataBuilder) WithDest(a knx.Address) *LDataBuilder {
	b.f.dest = a
	return b
}

func (b *LDataBuilder) WithInfo(info []Info) *LDataBuilder {
	b.f.info = append([]Info(nil), info...)
	return b
}

func (b *LDataBuilder) WithTPDU(tpdu []byte) *LDataBuilder {
	b.f.tpdu = append([]byte(nil), tpdu...)
	return b
}

// Build validates the assembled frame against §3's invariants and returns
// an immutable LData.
func (b *LDataBuilder) Build() (*LData, error) {
	f := b.f

	switch d := f.dest.(type) {
	case knx.GroupAddr:
		f.ctrl2.GroupDest = true
	case knx.IndividualAddr:
		f.ctrl2.GroupDest = false
	default:
		return nil, fmt.Errorf("%w: destination address is required (got %T)", knx.ErrIllegalArgument, d)
	}

	if len(f.tpdu) < 1 || len(f.tpdu) > 255 {
		return nil, fmt.Errorf("%w: tpdu length %d out of range 1..255", knx.ErrIllegalArgument, len(f.tpdu))
	}
	if f.ctrl1.StandardFrame && len(f.tpdu) > 16 {
		return nil, fmt.Errorf("%w: standard frame tpdu length %d exceeds 16", knx.ErrIllegalArgument, len(f.tpdu))
	}
	if _, err := encodeInfoList(f.info); err != nil {
		return nil, err
	}

	out := f
	out.tpdu = append([]byte(nil), f.tpdu...)
	out.info = append([]Info(nil), f.info...)
	return &out, nil
}

// parseLData decodes the body following the message-code byte.
func parseLData(mc MessageCode, data []byte) (*LData, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: l-data frame missing additional-info length byte", knx.ErrFrameFormat)
	}
	ailLen := int(data[0])
	data = data[1:]
	if len(data) < ailLen {
		return nil, fmt.Errorf("%w: l-data additional-info declares %d bytes, only %d available", knx.ErrFrameFormat, ailLen, len(data))
	}
	info, err := decodeInfoList(data[:ailLen])
	if err != nil {
		return nil, err
	}
	data = data[ailLen:]

	if len(data) < 6 {
		return nil, fmt.Errorf("%w: l-data frame truncated before ctrl/src/dst", knx.ErrFrameFormat)
	}
	ctrl1 := UnpackCtrl1(data[0])
	ctrl2 := UnpackCtrl2(data[1])
	source := knx.IndividualAddrFromUint16(uint16(data[2])<<8 | uint16(data[3]))
	destRaw := uint16(data[4])<<8 | uint16(data[5])
	data = data[6:]

	var dest knx.Address
	if ctrl2.GroupDest {
		dest = knx.GroupAddrFromUint16(destRaw)
	} else {
		dest = knx.IndividualAddrFromUint16(destRaw)
	}

	if len(data) < 1 {
		return nil, fmt.Errorf("%w: l-data frame missing npdu length byte", knx.ErrFrameFormat)
	}
	npduLen := int(data[0])
	data = data[1:]

	tpduLen := npduLen + 1
	if npduLen == 0 && hasRFMediumInfo(info) {
		tpduLen = len(data)
	}
	if tpduLen < 1 || tpduLen > 255 {
		return nil, fmt.Errorf("%w: l-data tpdu length %d out of range 1..255", knx.ErrFrameFormat, tpduLen)
	}
	if len(data) < tpduLen {
		return nil, fmt.Errorf("%w: l-data tpdu declares %d bytes, only %d available", knx.ErrFrameFormat, tpduLen, len(data))
	}

	return &LData{
		messageCode: mc,
		ctrl1:       ctrl1,
		ctrl2:       ctrl2,
		source:      source,
		dest:        dest,
		info:        info,
		tpdu:        append([]byte(nil), data[:tpduLen]...),
	}, nil
}

// emit serialises the frame per the standard/extended L-Data layout (§4.2).
func (f *LData) emit() ([]byte, error) {
	infoBytes, err := encodeInfoList(f.info)
	if err != nil {
		return nil, err
	}
	ctrl2b, err := f.ctrl2.Pack()
	if err != nil {
		return nil, err
	}

	var destRaw uint16
	switch d := f.dest.(type) {
	case knx.GroupAddr:
		destRaw = d.Packed()
	case knx.IndividualAddr:
		destRaw = d.Packed()
	default:
		return nil, fmt.Errorf("%w: unsupported destination address type %T", knx.ErrIllegalArgument, d)
	}

	var npduLen byte
	if hasRFMediumInfo(f.info) {
		npduLen = 0
	} else {
		if len(f.tpdu) < 1 {
			return nil, fmt.Errorf("%w: tpdu must not be empty", knx.ErrIllegalArgument)
		}
		npduLen = byte(len(f.tpdu) - 1)
	}

	out := make([]byte, 0, 8+len(infoBytes)+len(f.tpdu))
	out = append(out, byte(f.messageCode), byte(len(infoBytes)))
	out = append(out, infoBytes...)
	out = append(out, f.ctrl1.Pack(), ctrl2b)
	out = append(out, byte(f.source.Packed()>>8), byte(f.source.Packed()))
	out = append(out, byte(destRaw>>8), byte(destRaw))
	out = append(out, npduLen)
	out = append(out, f.tpdu...)
	return out, nil
}

func hasRFMediumInfo(blocks []Info) bool {
	for _, b := range blocks {
		if b.Type == InfoTypeRFMedium {
			return true
		}
	}
	return false
}
