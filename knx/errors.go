package knx

import "errors"

// The five error kinds of §7's taxonomy. Every sub-package (cemi, keyring,
// secure, tunnel) wraps one of these with fmt.Errorf("%w: ...") at the
// point of detection, so a caller anywhere in Calimero can use errors.Is
// against this fixed vocabulary regardless of which component raised it.
var (
	// ErrFrameFormat: wire bytes do not conform to the cEMI/KNXnet/IP
	// grammar. Recoverable at the parser boundary.
	ErrFrameFormat = errors.New("knx: frame format error")

	// ErrIllegalArgument: caller misuse, e.g. a TPDU too long or a hop
	// count above 7. Fatal for the call, never for the process.
	ErrIllegalArgument = errors.New("knx: illegal argument")

	// ErrTimeout: a bounded wait elapsed.
	ErrTimeout = errors.New("knx: operation timed out")

	// ErrLinkClosed: the transport is gone.
	ErrLinkClosed = errors.New("knx: link closed")

	// ErrSecure: a cryptographic or sequence-counter violation.
	ErrSecure = errors.New("knx: secure violation")
)
