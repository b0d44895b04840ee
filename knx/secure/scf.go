package secure

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// Algorithm identifies the confidentiality mode of a secured APDU (§4.4.1).
type Algorithm uint8

const (
	// AlgoAuthOnly authenticates the APDU but sends it in the clear.
	AlgoAuthOnly Algorithm = 0
	// AlgoAuthConf authenticates and encrypts the APDU.
	AlgoAuthConf Algorithm = 1
)

// Service identifies the secure sub-service carried in an SCF byte.
type Service uint8

const (
	ServiceData    Service = 0
	ServiceSyncReq Service = 2
	ServiceSyncRes Service = 3
)

func (s Service) String() string {
	switch s {
	case ServiceData:
		return "S-A_Data"
	case ServiceSyncReq:
		return "SyncReq"
	case ServiceSyncRes:
		return "SyncRes"
	default:
		return fmt.Sprintf("Service(%d)", uint8(s))
	}
}

// SCF is the Security Control Field, one byte (§4.4.1):
//
//	bit7    tool access
//	bit6-4  algorithm id
//	bit3    system broadcast
//	bit2-0  service
type SCF uint8

// NewSCF packs an SCF, rejecting any algorithm id other than the two
// defined values (§4.4.4: "algorithm ids other than 0 and 1 fail with
// InvalidScf").
func NewSCF(toolAccess bool, algo Algorithm, systemBroadcast bool, service Service) (SCF, error) {
	if algo != AlgoAuthOnly && algo != AlgoAuthConf {
		return 0, fmt.Errorf("%w: algorithm id %d must be 0 or 1", knx.ErrIllegalArgument, algo)
	}
	if service > ServiceSyncRes {
		return 0, fmt.Errorf("%w: service id %d out of range", knx.ErrIllegalArgument, service)
	}

	var b byte
	if toolAccess {
		b |= 1 << 7
	}
	b |= byte(algo&0x07) << 4
	if systemBroadcast {
		b |= 1 << 3
	}
	b |= byte(service & 0x07)
	return SCF(b), nil
}

func (s SCF) ToolAccess() bool        { return s&(1<<7) != 0 }
func (s SCF) Algorithm() Algorithm    { return Algorithm(s>>4) & 0x07 }
func (s SCF) SystemBroadcast() bool   { return s&(1<<3) != 0 }
func (s SCF) Service() Service        { return Service(s & 0x07) }
func (s SCF) ValidAlgorithm() bool    { a := s.Algorithm(); return a == AlgoAuthOnly || a == AlgoAuthConf }
