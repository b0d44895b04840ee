// Package cemi implements the cEMI frame codec (§4.2): typed frames for
// L-Data (standard and extended), bus-monitor indications, device-management
// requests/confirmations/indications and reset, across standard and
// extended frame formats and across the EMI1/EMI2/cEMI dialects.
//
// Parse dispatches on message code and returns a Frame; Emit is size-exact
// and round-trips Parse. Frames constructed through their builders are
// immutable; CopyFrame returns a deep clone (via Copy) for any L-Data frame,
// standard or extended, and the original reference for the other,
// already-immutable shapes (§9 "Mutable cEMI-ex frames").
package cemi
