package keyring

// This package never mints new sentinel errors; a malformed document or a
// ciphertext that cannot be decrypted (invalid length or trailer) wraps
// knx.ErrFrameFormat, a signature mismatch wraps knx.ErrSecure, and a bad
// caller argument wraps knx.ErrIllegalArgument. See
// parser.go for the wrap sites.
