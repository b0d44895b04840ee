package secure

// Like knx/keyring, this package mints no sentinel errors of its own: a
// malformed secure APDU wraps knx.ErrFrameFormat, a MAC mismatch, replay,
// access violation or sync failure wraps knx.ErrSecure, a bad caller
// argument wraps knx.ErrIllegalArgument, an expired diagnostic wait wraps
// knx.ErrTimeout, and an expired sync.req wait wraps both knx.ErrSecure and
// knx.ErrTimeout. See crypto.go, sequence.go and sync.go for the
// wrap sites.
