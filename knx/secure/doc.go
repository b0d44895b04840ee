// Package secure implements the KNX Data Secure application layer (§4.4):
// authenticated encryption of cEMI APDUs with AES-128 CCM, per-peer
// sequence discipline that rejects replays, and the sync.req/sync.res
// challenge protocol that aligns a fresh peer's sequence counters.
//
// A Context holds the key material (group keys, per-device tool keys)
// copied out of a loaded keyring. An SAL ties a Context to the mutable
// state one local device needs: its own outgoing sequence counters, the
// per-peer last-accepted sequence it has seen, the saturating error
// counters of §4.4.4, and any sync.req/diagnostic exchanges in flight.
//
// Secure/Extract operate on a single APDU given an already-decided
// sequence number; SAL.Secure/SAL.Extract wrap them with the sequence
// and access-control discipline a real device needs and are the entry
// points most callers want.
package secure
