package config

import "time"

// InstanceRegistryConfig tunes the Instance Registry (C3, spec §4.3).
type InstanceRegistryConfig struct {
	// StaleAfter is how long a session can go without a heartbeat before the
	// Health Monitor (C6) ignores it as stale. Default 1h (spec §4.3).
	StaleAfter time.Duration `yaml:"stale_after"`
}

// DefaultInstanceRegistryConfig returns the built-in Instance Registry defaults.
func DefaultInstanceRegistryConfig() InstanceRegistryConfig {
	return InstanceRegistryConfig{StaleAfter: 1 * time.Hour}
}
