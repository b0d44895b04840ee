package secure

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/calimero/knx"
)

// SyncTimeout bounds a sync.req/sync.res exchange (§4.4.2: "failures time
// out after 6 s with KnxSecure").
const SyncTimeout = 6 * time.Second

// syncResDebounce is how long after sending a sync.res we ignore further
// sync.reqs from the same peer (§4.4.3).
const syncResDebounce = 1000 * time.Millisecond

type pendingSyncReq struct {
	tool      bool
	challenge [6]byte
	done      chan error
}

type stashedChallenge struct {
	challenge [6]byte
	tool      bool
}

// syncState is the mutable sync.req/sync.res bookkeeping embedded in SAL.
// All three maps are guarded by the single mu below, which belongs to
// syncState rather than to SAL.
type syncState struct {
	mu             sync.Mutex
	pendingByPeer  map[knx.IndividualAddr]*pendingSyncReq
	challengeByPeer map[knx.IndividualAddr]stashedChallenge
	lastSyncResSent map[knx.IndividualAddr]time.Time
}

func newSyncState() *syncState {
	return &syncState{
		pendingByPeer:   make(map[knx.IndividualAddr]*pendingSyncReq),
		challengeByPeer: make(map[knx.IndividualAddr]stashedChallenge),
		lastSyncResSent: make(map[knx.IndividualAddr]time.Time),
	}
}

// RequestSync issues a sync.req to peer over the configured Transport and
// blocks until the matching sync.res arrives, the context is cancelled, or
// SyncTimeout elapses (§4.4.3 "A sends sync.req with challenge C").
func (s *SAL) RequestSync(ctx context.Context, peer knx.IndividualAddr, tool bool) error {
	if s.transport == nil {
		return fmt.Errorf("%w: sal has no transport configured for sync.req", knx.ErrIllegalArgument)
	}

	var challenge [6]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return fmt.Errorf("%w: generating sync challenge: %v", knx.ErrSecure, err)
	}

	key, err := resolveKey(s.ctx, peer, tool, &s.Counters)
	if err != nil {
		return err
	}

	// The serial field names the target; the peer's serial number is not
	// known here, so the all-zero "we are the target" form is sent, which
	// HandleSyncReq accepts.
	var targetSN knx.SerialNumber
	req := SecureRequest{
		Params:     Params{Src: s.local, Dst: peer},
		ToolAccess: tool,
		Algorithm:  AlgoAuthOnly,
		Service:    ServiceSyncReq,
		Seq:        challenge,
		Serial:     &targetSN,
	}
	wire, err := Secure(key, req)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	s.sync.mu.Lock()
	s.sync.pendingByPeer[peer] = &pendingSyncReq{tool: tool, challenge: challenge, done: done}
	s.sync.mu.Unlock()
	defer func() {
		s.sync.mu.Lock()
		delete(s.sync.pendingByPeer, peer)
		s.sync.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()

	if err := s.transport.SendSecured(ctx, peer, wire[0]>>2, wire); err != nil {
		return fmt.Errorf("%w: sending sync.req to %s: %v", knx.ErrTimeout, peer, err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w: sync.req to %s", knx.ErrSecure, knx.ErrTimeout, peer)
	}
}

// HandleSyncReq processes an incoming sync.req (§4.4.3): it stashes the
// challenge, picks a fresh random, and answers with a sync.res carrying
// both devices' next sequence counters. A sync.req whose serial number is
// neither ours nor zero is silently dropped, and a sync.req arriving
// within syncResDebounce of our last sync.res to the same peer is ignored.
func (s *SAL) HandleSyncReq(ctx context.Context, peer knx.IndividualAddr, wire []byte) error {
	hdr, err := ParseSecureWire(wire)
	if err != nil {
		return err
	}
	if hdr.SCF.Service() != ServiceSyncReq {
		return fmt.Errorf("%w: expected sync.req service", knx.ErrIllegalArgument)
	}
	tool := hdr.SCF.ToolAccess()

	key, err := resolveKey(s.ctx, peer, tool, &s.Counters)
	if err != nil {
		return err
	}
	apdu, err := DecryptSecureAPDU(key, Params{Src: peer, Dst: s.local}, hdr, hdr.WireSeq)
	if err != nil {
		s.Counters.IncCryptoError()
		return err
	}
	_ = apdu // sync.req carries no payload beyond the challenge in the seq field

	if hdr.Serial != nil && !hdr.Serial.IsZero() && *hdr.Serial != s.localSN {
		return nil // not addressed to us; silently dropped (§4.4.3)
	}

	s.sync.mu.Lock()
	if last, ok := s.sync.lastSyncResSent[peer]; ok && time.Since(last) < syncResDebounce {
		s.sync.mu.Unlock()
		return nil
	}
	s.sync.challengeByPeer[peer] = stashedChallenge{challenge: hdr.WireSeq, tool: tool}
	s.sync.mu.Unlock()

	var random [6]byte
	if _, err := rand.Read(random[:]); err != nil {
		return fmt.Errorf("%w: generating sync random: %v", knx.ErrSecure, err)
	}
	wireSeq := xor6(random, hdr.WireSeq)

	ourNext := s.seqs.out(tool).Peek()
	ourBytes, err := knx.PutUnsignedBE(ourNext, 6)
	if err != nil {
		return fmt.Errorf("%w: %v", knx.ErrSecure, err)
	}
	peerNext := s.seqs.in(tool).LastValid(peer) + 1
	peerBytes, err := knx.PutUnsignedBE(peerNext, 6)
	if err != nil {
		return fmt.Errorf("%w: %v", knx.ErrSecure, err)
	}
	payload := append(append([]byte(nil), ourBytes...), peerBytes...)

	resReq := SecureRequest{
		Params:     Params{Src: s.local, Dst: peer},
		ToolAccess: tool,
		Algorithm:  AlgoAuthOnly,
		Service:    ServiceSyncRes,
		Seq:        random,
		WireSeq:    &wireSeq,
		APDU:       payload,
	}
	outWire, err := Secure(key, resReq)
	if err != nil {
		return err
	}

	if s.transport == nil {
		return fmt.Errorf("%w: sal has no transport configured for sync.res", knx.ErrIllegalArgument)
	}
	if err := s.transport.SendSecured(ctx, peer, outWire[0]>>2, outWire); err != nil {
		return err
	}

	s.sync.mu.Lock()
	s.sync.lastSyncResSent[peer] = time.Now()
	s.sync.mu.Unlock()
	return nil
}

// HandleSyncRes processes an incoming sync.res (§4.4.3): it recovers the
// random the peer used from the stashed challenge, verifies and decrypts
// the counter payload, updates our own next-sequence (max) and the peer's
// last-valid sequence (max−1), and wakes the matching RequestSync call.
func (s *SAL) HandleSyncRes(peer knx.IndividualAddr, wire []byte) error {
	hdr, err := ParseSecureWire(wire)
	if err != nil {
		return err
	}
	if hdr.SCF.Service() != ServiceSyncRes {
		return fmt.Errorf("%w: expected sync.res service", knx.ErrIllegalArgument)
	}

	s.sync.mu.Lock()
	pending, ok := s.sync.pendingByPeer[peer]
	s.sync.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unexpected sync.res from %s", knx.ErrSecure, peer)
	}

	random := xor6(hdr.WireSeq, pending.challenge)

	key, err := resolveKey(s.ctx, peer, pending.tool, &s.Counters)
	if err != nil {
		s.completeSync(peer, err)
		return err
	}

	apdu, err := DecryptSecureAPDU(key, Params{Src: peer, Dst: s.local}, hdr, random)
	if err != nil {
		s.Counters.IncCryptoError()
		s.completeSync(peer, err)
		return err
	}
	if len(apdu) != 12 {
		err := fmt.Errorf("%w: sync.res payload must be 12 bytes, got %d", knx.ErrFrameFormat, len(apdu))
		s.completeSync(peer, err)
		return err
	}

	peerNext, err := knx.UnsignedBE(apdu[0:6])
	if err != nil {
		s.completeSync(peer, err)
		return err
	}
	ourNext, err := knx.UnsignedBE(apdu[6:12])
	if err != nil {
		s.completeSync(peer, err)
		return err
	}

	s.seqs.out(pending.tool).Set(ourNext)
	if peerNext > 0 {
		s.seqs.in(pending.tool).SetLastValid(peer, peerNext-1)
	}

	s.completeSync(peer, nil)
	return nil
}

func (s *SAL) completeSync(peer knx.IndividualAddr, err error) {
	s.sync.mu.Lock()
	pending, ok := s.sync.pendingByPeer[peer]
	s.sync.mu.Unlock()
	if ok {
		select {
		case pending.done <- err:
		default:
		}
	}
}

func xor6(a, b [6]byte) [6]byte {
	var out [6]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
