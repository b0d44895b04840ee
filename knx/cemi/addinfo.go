package cemi

import (
	"fmt"

	"github.com/nerrad567/calimero/knx"
)

// InfoType identifies the kind of an additional-information block. Values
// 0x00-0xFE are defined by KNX; 0xFF is reserved as "no more blocks" and
// never appears on the wire as a type byte.
type InfoType uint8

const (
	// InfoTypeRFMedium carries RF medium status, §3 "Additional-info block
	// (RF medium)".
	InfoTypeRFMedium InfoType = 0x02
)

// fixedInfoLen holds the length KNX mandates for info types this codec
// understands structurally. Unknown types are round-tripped as opaque
// blocks using their own declared length.
var fixedInfoLen = map[InfoType]int{
	InfoTypeRFMedium: 8,
}

// Info is one additional-information block: {type(1), len(1), payload(len)}.
// Payload is opaque unless Type is recognised, in which case DecodeRFMedium
// interprets it.
type Info struct {
	Type    InfoType
	Payload []byte
}

// Size returns the block's wire length including its 2-byte header.
func (i Info) Size() int { return 2 + len(i.Payload) }

// RSS is the 2-bit received-signal-strength indicator used on RF media.
type RSS uint8

const (
	RSSVoid RSS = iota
	RSSWeak
	RSSMedium
	RSSStrong
)

func (r RSS) String() string {
	switch r {
	case RSSVoid:
		return "void"
	case RSSWeak:
		return "weak"
	case RSSMedium:
		return "medium"
	case RSSStrong:
		return "strong"
	default:
		return fmt.Sprintf("rss(%d)", uint8(r))
	}
}

// LFNFillIn is the link-layer frame number value meaning "let the cEMI
// server fill this in" (GLOSSARY: LFN).
const LFNFillIn = 0xFF

// RFMediumInfo is the decoded form of an InfoTypeRFMedium block (§3).
type RFMediumInfo struct {
	RSS               RSS
	RetransmitterRSS  RSS
	BatteryOK         bool
	TransmitOnly      bool
	DomainOrSerial    knx.SerialNumber // domain address (open media) or serial number, disambiguated by the enclosing frame's system-broadcast flag
	LinkLayerFrameNum uint8            // 0..7, or LFNFillIn (255)
}

// EncodeRFMediumInfo packs an RFMediumInfo into its 8-byte wire form.
func EncodeRFMediumInfo(info RFMediumInfo) ([]byte, error) {
	if info.LinkLayerFrameNum > 7 && info.LinkLayerFrameNum != LFNFillIn {
		return nil, fmt.Errorf("%w: link-layer frame number %d must be 0-7 or 255", knx.ErrIllegalArgument, info.LinkLayerFrameNum)
	}

	status := byte(info.RSS&0x03)<<6 | byte(info.RetransmitterRSS&0x03)<<4
	if info.BatteryOK {
		status |= 1 << 3
	}
	if info.TransmitOnly {
		status |= 1 << 2
	}

	buf := make([]byte, 8)
	buf[0] = status
	copy(buf[1:7], info.DomainOrSerial[:])
	buf[7] = info.LinkLayerFrameNum
	return buf, nil
}

// DecodeRFMediumInfo unpacks an 8-byte RF medium additional-info payload.
func DecodeRFMediumInfo(payload []byte) (RFMediumInfo, error) {
	if len(payload) != 8 {
		return RFMediumInfo{}, fmt.Errorf("%w: RF medium info must be 8 bytes, got %d", knx.ErrFrameFormat, len(payload))
	}

	status := payload[0]
	lfn := payload[7]
	if lfn > 7 && lfn != LFNFillIn {
		return RFMediumInfo{}, fmt.Errorf("%w: link-layer frame number %d must be 0-7 or 255", knx.ErrFrameFormat, lfn)
	}

	var sn knx.SerialNumber
	copy(sn[:], payload[1:7])

	return RFMediumInfo{
		RSS:               RSS(status>>6) & 0x03,
		RetransmitterRSS:  RSS(status>>4) & 0x03,
		BatteryOK:         status&(1<<3) != 0,
		TransmitOnly:      status&(1<<2) != 0,
		DomainOrSerial:    sn,
		LinkLayerFrameNum: lfn,
	}, nil
}

// maxAddInfoTotalLen is the §3/§4.2 invariant: "additional-info total
// length ≤ 253".
const maxAddInfoTotalLen = 253

// encodeInfoList sorts blocks by ascending type (§4.2 "on emission they are
// sorted by ascending type") and serialises them.
func encodeInfoList(blocks []Info) ([]byte, error) {
	sorted := make([]Info, len(blocks))
	copy(sorted, blocks)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Type > sorted[j].Type; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	total := 0
	for _, b := range sorted {
		total += b.Size()
	}
	if total > maxAddInfoTotalLen {
		return nil, fmt.Errorf("%w: additional-info total length %d exceeds %d", knx.ErrIllegalArgument, total, maxAddInfoTotalLen)
	}

	out := make([]byte, 0, total)
	for _, b := range sorted {
		out = append(out, byte(b.Type), byte(len(b.Payload)))
		out = append(out, b.Payload...)
	}
	return out, nil
}

// decodeInfoList parses a sequence of {type,len,payload} tuples until data
// is exhausted.
func decodeInfoList(data []byte) ([]Info, error) {
	if len(data) > maxAddInfoTotalLen {
		return nil, fmt.Errorf("%w: additional-info total length %d exceeds %d", knx.ErrFrameFormat, len(data), maxAddInfoTotalLen)
	}

	var blocks []Info
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: truncated additional-info block header", knx.ErrFrameFormat)
		}
		typ := InfoType(data[0])
		length := int(data[1])
		if len(data) < 2+length {
			return nil, fmt.Errorf("%w: truncated additional-info payload for type %#02x", knx.ErrFrameFormat, typ)
		}
		if want, ok := fixedInfoLen[typ]; ok && want != length {
			return nil, fmt.Errorf("%w: additional-info type %#02x must be %d bytes, got %d", knx.ErrFrameFormat, typ, want, length)
		}
		payload := make([]byte, length)
		copy(payload, data[2:2+length])
		blocks = append(blocks, Info{Type: typ, Payload: payload})
		data = data[2+length:]
	}
	return blocks, nil
}
