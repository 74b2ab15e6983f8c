package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		InstanceRegistry: DefaultInstanceRegistryConfig(),
		HealthMonitor:    DefaultHealthMonitorConfig(),
		Spawn:            DefaultSpawnConfig(),
		Checkpoint:       DefaultCheckpointConfig(),
		Topology:         DefaultTopologyConfig(),
		Tunnel: TunnelConfig{
			KnownZones:     []string{"tunnels.example.com"},
			StableHostname: "stable.example.com",
			DaemonControl:  DaemonControlSystemd,
		},
		Dispatcher: DefaultDispatcherConfig(),
		Secrets:    DefaultSecretsConfig(),
	}
}

func TestValidateAll_Valid(t *testing.T) {
	err := NewValidator(validConfig()).ValidateAll()
	assert.NoError(t, err)
}

func TestValidateAll_EmptyTunnelIsValid(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel = TunnelConfig{}
	err := NewValidator(cfg).ValidateAll()
	assert.NoError(t, err)
}

func TestValidateInstanceRegistry_NonPositiveStaleAfter(t *testing.T) {
	cfg := validConfig()
	cfg.InstanceRegistry.StaleAfter = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance_registry")
}

func TestValidateHealthMonitor_NonPositiveIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.HealthMonitor.ProbeInterval = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health_monitor")
}

func TestValidateSpawn_AbandonedMustExceedStall(t *testing.T) {
	cfg := validConfig()
	cfg.Spawn.StallThreshold = 15 * time.Minute
	cfg.Spawn.AbandonedThreshold = 10 * time.Minute
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abandoned_threshold")
}

func TestValidateCheckpoint_NonPositiveRetention(t *testing.T) {
	cfg := validConfig()
	cfg.Checkpoint.RetentionDays = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint")
}

func TestValidateTopology_NonPositivePollInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Topology.PollInterval = 0
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topology")
}

func TestValidateTunnel_EmptyZoneName(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.KnownZones = []string{""}
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known_zones")
}

func TestValidateTunnel_DuplicateZone(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.KnownZones = []string{"a.com", "a.com"}
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateTunnel_InvalidDaemonControl(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.DaemonControl = "kubernetes"
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon_control")
}

func TestValidateTunnel_ZonesWithoutStableHostname(t *testing.T) {
	cfg := validConfig()
	cfg.Tunnel.StableHostname = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stable_hostname")
}

func TestValidateDispatcher_MissingListenAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Dispatcher.ListenAddr = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatcher")
}

func TestValidateSecrets_MissingKeyPaths(t *testing.T) {
	cfg := validConfig()
	cfg.Secrets.DNSEditTokenPath = ""
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secrets")
}
