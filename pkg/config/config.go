// Package config provides configuration management for the supervisor
// runtime: instance-registry TTLs, background-worker intervals, retention
// policy, and the tunnel/dispatcher surfaces. It never holds secret values
// themselves — tokens are fetched at call time through the secrets
// interface (spec §6 "Environment"); this package only records which
// hierarchical key paths to ask for.
package config

// Config is the umbrella configuration object that encapsulates every
// component's runtime knobs. This is the primary object returned by
// Initialize() and threaded through the C1-C11 components at construction
// time.
type Config struct {
	configDir string // Configuration directory path (for reference)

	InstanceRegistry InstanceRegistryConfig
	HealthMonitor    HealthMonitorConfig
	Spawn            SpawnConfig
	Checkpoint       CheckpointConfig
	Topology         TopologyConfig
	Tunnel           TunnelConfig
	Dispatcher       DispatcherConfig
	Secrets          SecretsConfig
}

// Initialize is defined in loader.go

// ConfigStats contains statistics about loaded configuration, for startup logging.
type ConfigStats struct {
	KnownZones        int
	AllowedWSOrigins  int
	HealthProbeEvery  string
	TopologyPollEvery string
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		KnownZones:        len(c.Tunnel.KnownZones),
		AllowedWSOrigins:  len(c.Dispatcher.AllowedWSOrigins),
		HealthProbeEvery:  c.HealthMonitor.ProbeInterval.String(),
		TopologyPollEvery: c.Topology.PollInterval.String(),
	}
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
