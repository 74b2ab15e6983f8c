package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigStats(t *testing.T) {
	cfg := &Config{
		configDir: "/test/config",
		Tunnel:    TunnelConfig{KnownZones: []string{"example.com", "internal.example.com"}},
		Dispatcher: DispatcherConfig{
			AllowedWSOrigins: []string{"https://dashboard.example.com"},
		},
		HealthMonitor: HealthMonitorConfig{ProbeInterval: 10 * time.Minute},
		Topology:      TopologyConfig{PollInterval: 60 * time.Second},
	}

	stats := cfg.Stats()
	assert.Equal(t, 2, stats.KnownZones)
	assert.Equal(t, 1, stats.AllowedWSOrigins)
	assert.Equal(t, "10m0s", stats.HealthProbeEvery)
	assert.Equal(t, "1m0s", stats.TopologyPollEvery)
}

func TestConfigDir(t *testing.T) {
	cfg := &Config{configDir: "/etc/overseer"}
	assert.Equal(t, "/etc/overseer", cfg.ConfigDir())
}
