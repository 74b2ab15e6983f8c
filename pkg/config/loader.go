package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the complete overseer.yaml file structure. Every
// section is optional; unset sections fall back to their DefaultXConfig(),
// except tunnel, which has no defaults and stays at its zero value.
type YAMLConfig struct {
	InstanceRegistry *InstanceRegistryConfig `yaml:"instance_registry"`
	HealthMonitor    *HealthMonitorConfig    `yaml:"health_monitor"`
	Spawn            *SpawnConfig            `yaml:"spawn"`
	Checkpoint       *CheckpointConfig       `yaml:"checkpoint"`
	Topology         *TopologyConfig         `yaml:"topology"`
	Tunnel           *TunnelConfig           `yaml:"tunnel"`
	Dispatcher       *DispatcherConfig       `yaml:"dispatcher"`
	Secrets          *SecretsConfig          `yaml:"secrets"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load overseer.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined sections over built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"known_zones", stats.KnownZones,
		"allowed_ws_origins", stats.AllowedWSOrigins,
		"health_probe_every", stats.HealthProbeEvery,
		"topology_poll_every", stats.TopologyPollEvery)

	return cfg, nil
}

// load is the internal loader (not exported).
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadOverseerYAML()
	if err != nil {
		return nil, NewLoadError("overseer.yaml", err)
	}

	instanceRegistry := DefaultInstanceRegistryConfig()
	if yamlCfg.InstanceRegistry != nil {
		if err := mergo.Merge(&instanceRegistry, yamlCfg.InstanceRegistry, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge instance_registry config: %w", err)
		}
	}

	healthMonitor := DefaultHealthMonitorConfig()
	if yamlCfg.HealthMonitor != nil {
		if err := mergo.Merge(&healthMonitor, yamlCfg.HealthMonitor, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge health_monitor config: %w", err)
		}
	}

	spawn := DefaultSpawnConfig()
	if yamlCfg.Spawn != nil {
		if err := mergo.Merge(&spawn, yamlCfg.Spawn, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge spawn config: %w", err)
		}
	}

	checkpoint := DefaultCheckpointConfig()
	if yamlCfg.Checkpoint != nil {
		if err := mergo.Merge(&checkpoint, yamlCfg.Checkpoint, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge checkpoint config: %w", err)
		}
	}

	topology := DefaultTopologyConfig()
	if yamlCfg.Topology != nil {
		if err := mergo.Merge(&topology, yamlCfg.Topology, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge topology config: %w", err)
		}
	}

	// Tunnel has no built-in defaults: zones/hostnames are deployment-specific.
	var tunnel TunnelConfig
	if yamlCfg.Tunnel != nil {
		tunnel = *yamlCfg.Tunnel
	}

	dispatcher := DefaultDispatcherConfig()
	if yamlCfg.Dispatcher != nil {
		if err := mergo.Merge(&dispatcher, yamlCfg.Dispatcher, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return nil, fmt.Errorf("failed to merge dispatcher config: %w", err)
		}
	}

	secrets := DefaultSecretsConfig()
	if yamlCfg.Secrets != nil {
		if err := mergo.Merge(&secrets, yamlCfg.Secrets, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge secrets config: %w", err)
		}
	}

	return &Config{
		configDir:        configDir,
		InstanceRegistry: instanceRegistry,
		HealthMonitor:    healthMonitor,
		Spawn:            spawn,
		Checkpoint:       checkpoint,
		Topology:         topology,
		Tunnel:           tunnel,
		Dispatcher:       dispatcher,
		Secrets:          secrets,
	}, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using shell-style $VAR/${VAR} syntax.
	// Unset variables expand to the empty string; expansion itself never fails,
	// so any malformed content is reported by the YAML parser below.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadOverseerYAML() (*YAMLConfig, error) {
	var cfg YAMLConfig
	if err := l.loadYAML("overseer.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
