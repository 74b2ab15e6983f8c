package config

import "time"

// HealthMonitorConfig tunes the Health Monitor (C6, spec §4.6). The
// threshold-policy zone boundaries themselves are a fixed design decision
// per spec §4.7, not a runtime knob — only the probe cadence is configurable.
type HealthMonitorConfig struct {
	// ProbeInterval is how often the three probes (spawn sweep, context
	// probe, orphaned work) run per live session. Default 10m.
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// CriticalReprobeInterval is how often a session in the Critical zone
	// is re-prompted while it stays in that zone. Default 10m (spec §4.7).
	CriticalReprobeInterval time.Duration `yaml:"critical_reprobe_interval"`
}

// DefaultHealthMonitorConfig returns the built-in Health Monitor defaults.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		ProbeInterval:           10 * time.Minute,
		CriticalReprobeInterval: 10 * time.Minute,
	}
}

// SpawnConfig tunes the Spawn Tracker's background sweeper (C5, spec §4.5).
type SpawnConfig struct {
	// SweepInterval is how often the sweeper scans running spawns for stalls.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// StallThreshold marks a running spawn stalled once its output file has
	// gone this long without an mtime change. Default 15m.
	StallThreshold time.Duration `yaml:"stall_threshold"`

	// AbandonedThreshold marks a stalled spawn abandoned once its output
	// file has been untouched this long with no owning process found.
	AbandonedThreshold time.Duration `yaml:"abandoned_threshold"`
}

// DefaultSpawnConfig returns the built-in Spawn Tracker defaults.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		SweepInterval:      1 * time.Minute,
		StallThreshold:     15 * time.Minute,
		AbandonedThreshold: 2 * time.Hour,
	}
}

// CheckpointConfig tunes the Checkpoint Engine's retention (C4, spec §4.4).
type CheckpointConfig struct {
	// RetentionDays is how many days a checkpoint is kept before cleanup
	// removes it. Default 30.
	RetentionDays int `yaml:"retention_days"`

	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultCheckpointConfig returns the built-in Checkpoint Engine defaults.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		RetentionDays:   30,
		CleanupInterval: 12 * time.Hour,
	}
}

// TopologyConfig tunes the Docker Topology Intel poller (C10, spec §4.9).
type TopologyConfig struct {
	// PollInterval is how often the container/network inventory is refreshed.
	PollInterval time.Duration `yaml:"poll_interval"`

	// StaleAfter prunes cache entries not seen this recently.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// DefaultTopologyConfig returns the built-in Docker Topology Intel defaults.
func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		PollInterval: 60 * time.Second,
		StaleAfter:   5 * time.Minute,
	}
}
