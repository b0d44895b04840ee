// Package config loads Calimero's process-wide configuration from YAML,
// the way gray-logic-core's infrastructure/config package does for its own
// application. Calimero is a library, not a daemon, so this package is
// deliberately small: it covers the one gateway connection a caller is
// dialling, the keyring it should load, and the secure-session timeouts —
// nothing about HTTP, MQTT, or persistence, none of which this core touches.
package config
