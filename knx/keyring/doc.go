// Package keyring loads an ETS ".knxkeys" export: the signed, encrypted
// bundle of tool keys, group keys and tunnelling credentials for a KNX
// secure project.
//
// A Keyring is loaded once per process from a file path via Load, verified
// against its embedded signature, and treated as immutable thereafter.
// Individual secrets stay encrypted in memory; callers derive them on
// demand with DecryptKey/DecryptPassword, which take the keyring password
// again rather than have Load cache the password hash on the struct.
//
// The signature check reproduces the ETS canonicalisation byte stream by
// hand (see verifySignature in parser.go) rather than using a generic XML
// canonicalisation library, because the byte grammar ETS actually signs
// does not match any standard canonical-XML form.
package keyring
