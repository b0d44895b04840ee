package cemi

// This package never mints new sentinel errors; it wraps the two wire-level
// kinds from the parent package at the point of detection so callers can
// errors.Is against a single fixed vocabulary regardless of which frame
// shape failed to parse. See addinfo.go, control.go, ldata.go, busmon.go
// and devicemgmt.go for the wrap sites.
