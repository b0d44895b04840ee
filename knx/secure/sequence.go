package secure

import (
	"fmt"
	"sync"

	"github.com/nerrad567/calimero/knx"
)

// outgoingCounter is one local next-sequence scalar (§3 "S-AL sequence
// tables": "a local device keeps its own outgoing next-sequence"). Peek
// reports the value a send would use without consuming it; Advance consumes
// it. SAL.Secure calls Advance before it builds the secured APDU, so the
// sequence is spent even if the result is never sent.
type outgoingCounter struct {
	mu   sync.Mutex
	next uint64
}

func newOutgoingCounter() *outgoingCounter {
	return &outgoingCounter{next: 1}
}

// Peek returns the sequence number the next Secure call will use.
func (c *outgoingCounter) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Advance consumes the current sequence and moves to the next one
// (§4.4.2: "seq ← next; next ← next+1 after the call returns").
func (c *outgoingCounter) Advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.next
	c.next++
	return seq
}

// Set forces the counter to a specific value, used once a sync.res
// negotiates a higher starting point (§4.4.3: "take max").
func (c *outgoingCounter) Set(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v > c.next {
		c.next = v
	}
}

// peerSequences is the per-peer last-accepted-sequence map for one key
// domain (tool access or p2p).
type peerSequences struct {
	mu       sync.Mutex
	lastSeen map[knx.IndividualAddr]uint64
}

func newPeerSequences() *peerSequences {
	return &peerSequences{lastSeen: make(map[knx.IndividualAddr]uint64)}
}

// CheckAndAccept enforces the replay invariant of §4.4.2: a receive is
// rejected with knx.ErrSecure when received < expected (last+1); on
// acceptance, last is advanced to received.
func (p *peerSequences) CheckAndAccept(peer knx.IndividualAddr, received uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.lastSeen[peer]
	expected := last + 1
	if received < expected {
		return fmt.Errorf("%w: sequence %d below expected %d for %s", knx.ErrSecure, received, expected, peer)
	}
	p.lastSeen[peer] = received
	return nil
}

// LastValid returns the last accepted sequence for peer, 0 if none yet.
func (p *peerSequences) LastValid(peer knx.IndividualAddr) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen[peer]
}

// SetLastValid forces the last-accepted sequence for peer to at least v
// (§4.4.3: sync.res "updates ... the peer's last-valid (take max − 1)").
func (p *peerSequences) SetLastValid(peer knx.IndividualAddr, v uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v > p.lastSeen[peer] {
		p.lastSeen[peer] = v
	}
}

// SequenceTables is the pair of sequence domains a local device keeps:
// tool-access and ordinary p2p, each with its own outgoing counter and
// per-peer last-accepted map (§3).
type SequenceTables struct {
	OutTool *outgoingCounter
	OutP2P  *outgoingCounter
	InTool  *peerSequences
	InP2P   *peerSequences
}

// NewSequenceTables returns a fresh pair of sequence domains, both
// outgoing counters starting at 1, the "fresh state" NeedsSync reports.
// SAL.Secure neither consults NeedsSync nor issues a sync.req itself; a
// sync.req goes out only through an explicit SAL.RequestSync call.
func NewSequenceTables() *SequenceTables {
	return &SequenceTables{
		OutTool: newOutgoingCounter(),
		OutP2P:  newOutgoingCounter(),
		InTool:  newPeerSequences(),
		InP2P:   newPeerSequences(),
	}
}

func (t *SequenceTables) out(tool bool) *outgoingCounter {
	if tool {
		return t.OutTool
	}
	return t.OutP2P
}

func (t *SequenceTables) in(tool bool) *peerSequences {
	if tool {
		return t.InTool
	}
	return t.InP2P
}

// NeedsSync reports whether the outgoing counter for the given domain is
// still at or below 1, the "fresh state" that must be preceded by a
// sync.req before the first real payload (§4.4.2).
func (t *SequenceTables) NeedsSync(tool bool) bool {
	return t.out(tool).Peek() <= 1
}
