// Package obslog provides structured logging for Calimero.
//
// It wraps log/slog to give every component — the tunnel connection, the
// secure session, the keyring loader — a consistent, structured logger
// without making log/slog part of any package's exported API: components
// accept the narrow Logger interface instead of *obslog.StructuredLogger directly.
//
// # Configuration
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "json"   # json, text
//	  output: "stdout" # stdout, stderr
//
// # Usage
//
//	logger := obslog.New(cfg.Logging, "0.1.0")
//	logger.Info("session established", "session_id", id)
//
// Never log key material: session keys, tool keys, group keys, or keyring
// passwords. Log correlation identifiers (session id, sequence number)
// instead.
package obslog
