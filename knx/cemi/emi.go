package cemi

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// EMI1/EMI2 message codes (§4.2). These dialects predate cEMI and are still
// spoken by some USB interfaces; ToEMI/FromEMI translate between them and
// the cEMI codes in messagecode.go.
const (
	emiLDataReq         = 0x11
	emiSysBcastReq      = 0x15
	emiLDataConNormal   = 0x4E
	emiLDataConSysBcast = 0x4C
	emiLDataIndNormal   = 0x49
	emiLDataIndSysBcast = 0x4D
	emiBusmonInd        = 0x49 // shares its code with emiLDataIndNormal
)

// domainAddressReadAPCI is the group-value-read APCI that §4.2 forces to
// system-broadcast regardless of the frame's own broadcast flag.
const domainAddressReadAPCI = 0x03E1

// IsDomainAddressReadAPCI reports whether apci is the domain-address-read
// service, which always travels as a system broadcast.
func IsDomainAddressReadAPCI(apci uint16) bool {
	return apci == domainAddressReadAPCI
}

// ToEMI translates a cEMI L-Data message code to its EMI1/EMI2 wire code.
// systemBroadcast selects the L-SysBcast variant where one exists.
func ToEMI(mc MessageCode, systemBroadcast bool) (byte, error) {
	switch mc {
	case LDataReq:
		if systemBroadcast {
			return emiSysBcastReq, nil
		}
		return emiLDataReq, nil
	case LDataCon:
		if systemBroadcast {
			return emiLDataConSysBcast, nil
		}
		return emiLDataConNormal, nil
	case LDataInd:
		if systemBroadcast {
			return emiLDataIndSysBcast, nil
		}
		return emiLDataIndNormal, nil
	case LBusmonInd:
		return emiBusmonInd, nil
	default:
		return 0, fmt.Errorf("%w: message code %s has no EMI1/EMI2 equivalent", knx.ErrIllegalArgument, mc)
	}
}

// FromEMI translates an EMI1/EMI2 wire code back to a cEMI message code.
// Because L_Data.ind and L_Busmon.ind share the code 0x49, the generic
// translation always resolves the collision in favour of L-Data.ind; a
// caller that knows the link is in bus-monitor mode must use
// FromEMIBusmon instead.
func FromEMI(code byte) (mc MessageCode, systemBroadcast bool, err error) {
	switch code {
	case emiLDataReq:
		return LDataReq, false, nil
	case emiSysBcastReq:
		return LDataReq, true, nil
	case emiLDataConNormal:
		return LDataCon, false, nil
	case emiLDataConSysBcast:
		return LDataCon, true, nil
	case emiLDataIndNormal:
		return LDataInd, false, nil
	case emiLDataIndSysBcast:
		return LDataInd, true, nil
	default:
		return 0, false, fmt.Errorf("%w: EMI code %#02x has no cEMI equivalent", knx.ErrFrameFormat, code)
	}
}

// FromEMIBusmon resolves the 0x49 collision in favour of L_Busmon.ind, for
// callers operating a link known to be in bus-monitor mode.
func FromEMIBusmon(code byte) (MessageCode, error) {
	if code != emiBusmonInd {
		return 0, fmt.Errorf("%w: EMI code %#02x is not a bus-monitor indication", knx.ErrFrameFormat, code)
	}
	return LBusmonInd, nil
}
