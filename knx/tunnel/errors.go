package tunnel

// This package mints no new sentinel errors: every failure wraps one of
// knx.ErrFrameFormat, knx.ErrIllegalArgument, knx.ErrTimeout,
// knx.ErrLinkClosed, or (for a secure-wrapper MAC mismatch) knx.ErrSecure via fmt.Errorf("%w: ...", ...), matching how knx/cemi
// and knx/secure report errors (§7).
