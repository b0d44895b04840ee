package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a Calimero-based process.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Keyring KeyringConfig `yaml:"keyring"`
	Secure  SecureConfig  `yaml:"secure"`
	Logging LoggingConfig `yaml:"logging"`
}

// GatewayConfig describes the KNXnet/IP gateway to dial.
type GatewayConfig struct {
	// Host is the gateway's IP address or hostname.
	Host string `yaml:"host"`

	// Port is the gateway's control endpoint port. Default: 3671.
	Port int `yaml:"port"`

	// Transport selects "udp" or "tcp". Default: "udp".
	Transport string `yaml:"transport"`

	// Routing selects the connectionless multicast routing variant instead
	// of a connection-oriented tunnel.
	Routing bool `yaml:"routing"`

	// MulticastAddress is used only when Routing is true. Default: "224.0.23.12".
	MulticastAddress string `yaml:"multicast_address,omitempty"`

	// GroupAddressStyle selects "2-level" or "3-level" formatting (§4.1).
	// Default: "3-level".
	GroupAddressStyle string `yaml:"group_address_style"`
}

// KeyringConfig locates and unlocks an ETS keyring export.
type KeyringConfig struct {
	// Path is the filesystem path of the .knxkeys resource. keyring.Load
	// reads it with os.ReadFile; URIs are not resolved.
	Path string `yaml:"path"`

	// Password unlocks the keyring's key-encryption key. Prefer the
	// CALIMERO_KEYRING_PASSWORD environment variable over storing this in
	// a file on disk.
	Password string `yaml:"password,omitempty"`

	// Strict, when true, fails loading on a signature mismatch (§4.3).
	// Default: true.
	Strict bool `yaml:"strict"`
}

// SecureConfig holds the secure-session and S-AL timeouts from §4.4/§4.5.
type SecureConfig struct {
	// Enabled wraps the tunnel in a KNXnet/IP secure session (§4.5).
	Enabled bool `yaml:"enabled"`

	// SyncTimeout bounds a sync.req/sync.res exchange. Default: 6s.
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// DiagnosticTimeout bounds a group-object diagnostic round trip.
	// Default: 3s.
	DiagnosticTimeout time.Duration `yaml:"diagnostic_timeout"`

	// HeartbeatInterval paces CONNECTIONSTATE_REQUEST on an open tunnel.
	// Default: 60s, matching the KNXnet/IP tunnelling heartbeat interval.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// AckTimeout bounds a single TUNNELING_REQUEST acknowledgement wait.
	// Default: 1s.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// AckRetries is the number of TUNNELING_REQUEST send attempts, the
	// first send included, before the channel is closed. Default: 3.
	AckRetries int `yaml:"ack_retries"`
}

// LoggingConfig contains logging settings, identical in shape to
// gray-logic-core's infrastructure/config.LoggingConfig.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, applies defaults and
// environment overrides, and validates the result.
//
// Environment variables follow the pattern CALIMERO_SECTION_KEY, e.g.
// CALIMERO_KEYRING_PASSWORD, CALIMERO_GATEWAY_HOST.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:              3671,
			Transport:         "udp",
			MulticastAddress:  "224.0.23.12",
			GroupAddressStyle: "3-level",
		},
		Keyring: KeyringConfig{
			Strict: true,
		},
		Secure: SecureConfig{
			SyncTimeout:       6 * time.Second,
			DiagnosticTimeout: 3 * time.Second,
			HeartbeatInterval: 60 * time.Second,
			AckTimeout:        1 * time.Second,
			AckRetries:        3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALIMERO_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("CALIMERO_KEYRING_PATH"); v != "" {
		cfg.Keyring.Path = v
	}
	if v := os.Getenv("CALIMERO_KEYRING_PASSWORD"); v != "" {
		cfg.Keyring.Password = v
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.Host == "" {
		errs = append(errs, "gateway.host is required")
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Gateway.Transport) {
	case "udp", "tcp":
	default:
		errs = append(errs, "gateway.transport must be \"udp\" or \"tcp\"")
	}
	switch c.Gateway.GroupAddressStyle {
	case "2-level", "3-level":
	default:
		errs = append(errs, "gateway.group_address_style must be \"2-level\" or \"3-level\"")
	}
	if c.Secure.AckRetries < 0 {
		errs = append(errs, "secure.ack_retries must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
