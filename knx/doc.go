// Package knx implements the address, serial number and priority primitives
// shared by every other Calimero package (§4.1 of the design).
//
// # Addresses
//
// An Address is a discriminated union over IndividualAddr (area.line.device)
// and GroupAddr (main/middle/sub or main/sub, depending on the configured
// formatting style). Both pack into 16 bits; equality compares the packed
// value and the discriminator together, so an individual and a group address
// sharing the same bit pattern never compare equal.
//
// # Group address style
//
// ETS projects may use either a 3-level ("1/2/3") or 2-level ("1/2")
// group address notation. The style only affects String() and ParseGroupAddr;
// the packed representation is always 16 bits. Call SetGroupStyle once,
// before any code that formats or parses group addresses, typically at
// process start from configuration (see internal/config).
//
// # Sub-packages
//
//   - knx/cemi    — the cEMI frame codec (§4.2)
//   - knx/keyring — the ETS keyring loader (§4.3)
//   - knx/secure  — the Data Secure application layer (§4.4)
//   - knx/tunnel  — the KNXnet/IP tunnelling session (§4.5)
package knx
