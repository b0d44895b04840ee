package cemi

import "fmt"

// MessageCode identifies the shape and direction of a cEMI frame.
type MessageCode uint8

// cEMI message codes (§4.2, §4.3 data-management table).
const (
	LDataReq MessageCode = 0x11
	LDataCon MessageCode = 0x2E
	LDataInd MessageCode = 0x29

	LBusmonInd MessageCode = 0x2B

	PropReadReq  MessageCode = 0xFC
	PropReadCon  MessageCode = 0xFB
	PropWriteReq MessageCode = 0xF6
	PropWriteCon MessageCode = 0xF5
	PropInfoInd  MessageCode = 0xF7

	ResetReq MessageCode = 0xF1
	ResetInd MessageCode = 0xF0
)

// String renders a human-readable message code name.
func (c MessageCode) String() string {
	switch c {
	case LDataReq:
		return "L_Data.req"
	case LDataCon:
		return "L_Data.con"
	case LDataInd:
		return "L_Data.ind"
	case LBusmonInd:
		return "L_Busmon.ind"
	case PropReadReq:
		return "M_PropRead.req"
	case PropReadCon:
		return "M_PropRead.con"
	case PropWriteReq:
		return "M_PropWrite.req"
	case PropWriteCon:
		return "M_PropWrite.con"
	case PropInfoInd:
		return "M_PropInfo.ind"
	case ResetReq:
		return "M_Reset.req"
	case ResetInd:
		return "M_Reset.ind"
	default:
		return fmt.Sprintf("MessageCode(%#02x)", uint8(c))
	}
}

// IsLData reports whether the code belongs to the L-Data family.
func (c MessageCode) IsLData() bool {
	return c == LDataReq || c == LDataCon || c == LDataInd
}

// IsDeviceMgmt reports whether the code belongs to the device-management
// family (property read/write/info, excluding reset).
func (c MessageCode) IsDeviceMgmt() bool {
	switch c {
	case PropReadReq, PropReadCon, PropWriteReq, PropWriteCon, PropInfoInd:
		return true
	default:
		return false
	}
}

// IsReset reports whether the code is one of the two reset codes.
func (c MessageCode) IsReset() bool {
	return c == ResetReq || c == ResetInd
}
