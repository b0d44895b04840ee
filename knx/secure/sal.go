package secure

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/calimero/internal/obslog"
	"github.com/nerrad567/calimero/knx"
)

// Transport is the minimal send hook an SAL needs to carry a secured APDU
// to a peer for the sync.req/sync.res handshake and group-object
// diagnostics. knx/tunnel's Session implements it.
type Transport interface {
	SendSecured(ctx context.Context, dst knx.IndividualAddr, tpci byte, securedAPDU []byte) error
}

// SAL is the Secure Application Layer for one local device: it ties a key
// Context to the mutable state the device needs — its own outgoing
// sequence counters, the per-peer last-accepted sequence, the error
// counters of §4.4.4, and any sync/diagnostic exchanges in flight.
type SAL struct {
	ctx       *Context
	local     knx.IndividualAddr
	localSN   knx.SerialNumber
	seqs      *SequenceTables
	Counters  Counters
	transport Transport
	logger    obslog.Logger
	sync      *syncState
	diag      *diagState
}

// NewSAL constructs an SAL for the given local device. transport may be
// nil if the caller never needs RequestSync, HandleSyncReq/Res or group
// diagnostics (e.g. a pure codec test only exercising Secure/Extract).
func NewSAL(ctx *Context, local knx.IndividualAddr, localSN knx.SerialNumber, transport Transport, logger obslog.Logger) *SAL {
	if logger == nil {
		logger = obslog.Noop()
	}
	return &SAL{
		ctx:       ctx,
		local:     local,
		localSN:   localSN,
		seqs:      NewSequenceTables(),
		transport: transport,
		logger:    logger,
		sync:      newSyncState(),
		diag:      newDiagState(),
	}
}

// resolveKey picks the group key or device tool key for dst, enforcing
// §4.4.4's access invariant: tool access against a group address that
// already has a group key is an attack, not a routing choice.
func resolveKey(ctx *Context, dst knx.Address, toolAccess bool, counters *Counters) ([16]byte, error) {
	switch a := dst.(type) {
	case knx.GroupAddr:
		key, ok := ctx.GroupKey(a)
		if !ok {
			return [16]byte{}, fmt.Errorf("%w: no group key for %s", knx.ErrSecure, a)
		}
		if toolAccess {
			counters.IncAccessError()
			return [16]byte{}, fmt.Errorf("%w: tool access requested for group-addressed %s", knx.ErrSecure, a)
		}
		return key, nil
	case knx.IndividualAddr:
		key, ok := ctx.ToolKey(a)
		if !ok {
			return [16]byte{}, fmt.Errorf("%w: no tool key for %s", knx.ErrSecure, a)
		}
		return key, nil
	default:
		return [16]byte{}, fmt.Errorf("%w: unsupported destination type %T", knx.ErrIllegalArgument, dst)
	}
}

// Secure encrypts/authenticates plain for dst, consuming the next outgoing
// sequence number of the matching domain (§4.4.2). tool selects the
// tool-access key domain, conf selects auth+conf over auth-only.
func (s *SAL) Secure(dst knx.Address, tpci byte, plain []byte, tool bool, conf bool) ([]byte, error) {
	key, err := resolveKey(s.ctx, dst, tool, &s.Counters)
	if err != nil {
		return nil, err
	}

	algo := AlgoAuthOnly
	if conf {
		algo = AlgoAuthConf
	}

	seq := s.seqs.out(tool).Advance()
	if seq == 0 {
		return nil, fmt.Errorf("%w: outgoing sequence must not be 0", knx.ErrSecure)
	}
	seqBytes, err := knx.PutUnsignedBE(seq, 6)
	if err != nil {
		return nil, fmt.Errorf("%w: outgoing sequence %d overflows 48 bits", knx.ErrSecure, seq)
	}
	var seqArr [6]byte
	copy(seqArr[:], seqBytes)

	req := SecureRequest{
		Params:     Params{Src: s.local, Dst: dst},
		TPCI:       tpci,
		ToolAccess: tool,
		Algorithm:  algo,
		Service:    ServiceData,
		Seq:        seqArr,
		APDU:       plain,
	}
	return Secure(key, req)
}

// Extract decrypts/authenticates a secured APDU received from src
// addressed to dst (our own address, individual or group), enforcing the
// replay-rejection invariant of §4.4.2.
func (s *SAL) Extract(src knx.IndividualAddr, dst knx.Address, wire []byte) ([]byte, error) {
	// ParseSecureWire rejects an invalid algorithm id itself, so the SCF is
	// checked here first for the counter to see it.
	if len(wire) > 2 && !SCF(wire[2]).ValidAlgorithm() {
		s.Counters.IncInvalidSCF()
		return nil, fmt.Errorf("%w: algorithm id %d invalid", knx.ErrSecure, SCF(wire[2]).Algorithm())
	}
	hdr, err := ParseSecureWire(wire)
	if err != nil {
		return nil, err
	}
	if !hdr.SCF.ValidAlgorithm() {
		s.Counters.IncInvalidSCF()
		return nil, fmt.Errorf("%w: algorithm id %d invalid", knx.ErrSecure, hdr.SCF.Algorithm())
	}

	key, err := resolveKey(s.ctx, dst, hdr.SCF.ToolAccess(), &s.Counters)
	if err != nil {
		return nil, err
	}

	apdu, err := DecryptSecureAPDU(key, Params{Src: src, Dst: dst}, hdr, hdr.WireSeq)
	if err != nil {
		if !errors.Is(err, knx.ErrFrameFormat) {
			s.Counters.IncCryptoError()
		}
		return nil, err
	}

	seq, err := knx.UnsignedBE(hdr.WireSeq[:])
	if err != nil {
		return nil, err
	}
	if err := s.seqs.in(hdr.SCF.ToolAccess()).CheckAndAccept(src, seq); err != nil {
		s.Counters.IncSeqError()
		return nil, err
	}
	return apdu, nil
}
