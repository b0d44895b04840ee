package cemi

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// NegativeConfirmation is the error code carried as the sole payload byte
// when a device-management confirmation reports element-count zero (§4.2).
type NegativeConfirmation uint8

const (
	NegUnspecified      NegativeConfirmation = 0x00
	NegOutOfMaxRange    NegativeConfirmation = 0x01
	NegOutOfMinRange    NegativeConfirmation = 0x02
	NegMemoryError      NegativeConfirmation = 0x03
	NegReadOnly         NegativeConfirmation = 0x04
	NegIllegalCommand   NegativeConfirmation = 0x05
	NegVoidDatapoint    NegativeConfirmation = 0x06
	NegTypeConflict     NegativeConfirmation = 0x07
	NegPropIndexRange   NegativeConfirmation = 0x08
	NegValueTempNotWrit NegativeConfirmation = 0x09
	NegUnknown          NegativeConfirmation = 0x0A
)

func (n NegativeConfirmation) String() string {
	switch n {
	case NegUnspecified:
		return "unspecified error"
	case NegOutOfMaxRange:
		return "out of max range"
	case NegOutOfMinRange:
		return "out of min range"
	case NegMemoryError:
		return "memory error"
	case NegReadOnly:
		return "read only"
	case NegIllegalCommand:
		return "illegal command"
	case NegVoidDatapoint:
		return "void datapoint"
	case NegTypeConflict:
		return "type conflict"
	case NegPropIndexRange:
		return "property index out of range"
	case NegValueTempNotWrit:
		return "value temporarily not writeable"
	default:
		return fmt.Sprintf("unknown negative confirmation (%#02x)", uint8(n))
	}
}

// DeviceMgmt is a device-management request, confirmation or indication
// (§3, §4.2): property read/write/info, addressed by interface-object-type,
// object instance and property ID.
type DeviceMgmt struct {
	Code        MessageCode
	ObjectType  uint16
	Instance    uint8 // 1..0xFF
	PropertyID  uint8
	ElementCount uint8 // 4 bits: 0..15; 0 on a .con frame signals a negative confirmation
	StartIndex   uint16 // 12 bits: 0..4095
	Data         []byte
}

// IsNegativeConfirmation reports whether this is a .con frame with
// element-count zero — Data[0] then holds a NegativeConfirmation code.
func (d *DeviceMgmt) IsNegativeConfirmation() bool {
	return d.ElementCount == 0 && (d.Code == PropReadCon || d.Code == PropWriteCon)
}

func validateDeviceMgmtCode(mc MessageCode) error {
	switch mc {
	case PropReadReq, PropReadCon, PropWriteReq, PropWriteCon, PropInfoInd:
		return nil
	default:
		return fmt.Errorf("%w: message code %s is not a device-management code", knx.ErrIllegalArgument, mc)
	}
}

// emit writes the 7-byte device-management header followed by Data.
func (d *DeviceMgmt) emit() ([]byte, error) {
	if err := validateDeviceMgmtCode(d.Code); err != nil {
		return nil, err
	}
	if d.Instance == 0 {
		return nil, fmt.Errorf("%w: object instance must be 1..255, got 0", knx.ErrIllegalArgument)
	}
	if d.ElementCount > 0x0F {
		return nil, fmt.Errorf("%w: element count %d exceeds 4 bits", knx.ErrIllegalArgument, d.ElementCount)
	}
	if d.StartIndex > 0x0FFF {
		return nil, fmt.Errorf("%w: start index %d exceeds 12 bits", knx.ErrIllegalArgument, d.StartIndex)
	}
	if d.IsNegativeConfirmation() && len(d.Data) != 1 {
		return nil, fmt.Errorf("%w: negative confirmation payload must be exactly 1 byte, got %d", knx.ErrIllegalArgument, len(d.Data))
	}

	packed := uint16(d.ElementCount)<<12 | d.StartIndex

	out := make([]byte, 0, 8+len(d.Data))
	out = append(out, byte(d.Code))
	out = append(out, byte(d.ObjectType>>8), byte(d.ObjectType))
	out = append(out, d.Instance, d.PropertyID)
	out = append(out, byte(packed>>8), byte(packed))
	out = append(out, d.Data...)
	return out, nil
}

// parseDeviceMgmt decodes the body following the message-code byte.
func parseDeviceMgmt(mc MessageCode, data []byte) (*DeviceMgmt, error) {
	if err := validateDeviceMgmtCode(mc); err != nil {
		return nil, err
	}
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: device-management frame shorter than 6-byte header tail", knx.ErrFrameFormat)
	}
	objectType := uint16(data[0])<<8 | uint16(data[1])
	instance := data[2]
	propertyID := data[3]
	packed := uint16(data[4])<<8 | uint16(data[5])

	return &DeviceMgmt{
		Code:         mc,
		ObjectType:   objectType,
		Instance:     instance,
		PropertyID:   propertyID,
		ElementCount: uint8(packed >> 12),
		StartIndex:   packed & 0x0FFF,
		Data:         append([]byte(nil), data[6:]...),
	}, nil
}

// Reset is a reset request or indication — the message code carries all
// the information in this frame shape (§3).
type Reset struct {
	Code MessageCode
}

func parseReset(mc MessageCode) (*Reset, error) {
	if mc != ResetReq && mc != ResetInd {
		return nil, fmt.Errorf("%w: message code %s is not a reset code", knx.ErrIllegalArgument, mc)
	}
	return &Reset{Code: mc}, nil
}

func (r *Reset) emit() ([]byte, error) {
	if r.Code != ResetReq && r.Code != ResetInd {
		return nil, fmt.Errorf("%w: message code %s is not a reset code", knx.ErrIllegalArgument, r.Code)
	}
	return []byte{byte(r.Code)}, nil
}
