// Package tunnel implements the KNXnet/IP tunneling and routing connection
// (§4.5): the Disconnected→Connecting→Connected→Closing→Closed state
// machine, per-channel sequence-acknowledged L-Data forwarding, the
// connectionless routing variant, heartbeats via ConnectionStateRequest,
// and the KNXnet/IP secure wrapper that frames a session distinct from
// knx/secure's S-AL.
//
// A Session carries plain cEMI frames end to end; when secure is enabled,
// every outbound datagram is wrapped and every inbound one unwrapped
// transparently, so callers of Session.Send/OnIndication never see the
// wrapper bytes.
package tunnel
