package config

import (
	"fmt"
)

// Validator runs structural checks over a loaded Config before it is handed
// to the C1-C11 components. One method per section, mirroring the shape of
// the loaded YAMLConfig.
type Validator struct {
	cfg *Config
}

// NewValidator creates a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every section validator and returns the first failure.
func (v *Validator) ValidateAll() error {
	validations := []func() error{
		v.validateInstanceRegistry,
		v.validateHealthMonitor,
		v.validateSpawn,
		v.validateCheckpoint,
		v.validateTopology,
		v.validateTunnel,
		v.validateDispatcher,
		v.validateSecrets,
	}

	for _, fn := range validations {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateInstanceRegistry() error {
	r := v.cfg.InstanceRegistry
	if r.StaleAfter <= 0 {
		return NewValidationError("instance_registry", "stale_after", "stale_after",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateHealthMonitor() error {
	h := v.cfg.HealthMonitor
	if h.ProbeInterval <= 0 {
		return NewValidationError("health_monitor", "probe_interval", "probe_interval",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if h.CriticalReprobeInterval <= 0 {
		return NewValidationError("health_monitor", "critical_reprobe_interval", "critical_reprobe_interval",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateSpawn() error {
	s := v.cfg.Spawn
	if s.SweepInterval <= 0 {
		return NewValidationError("spawn", "sweep_interval", "sweep_interval",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.StallThreshold <= 0 {
		return NewValidationError("spawn", "stall_threshold", "stall_threshold",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.AbandonedThreshold <= s.StallThreshold {
		return NewValidationError("spawn", "abandoned_threshold", "abandoned_threshold",
			fmt.Errorf("%w: must be greater than stall_threshold", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateCheckpoint() error {
	c := v.cfg.Checkpoint
	if c.RetentionDays <= 0 {
		return NewValidationError("checkpoint", "retention_days", "retention_days",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.CleanupInterval <= 0 {
		return NewValidationError("checkpoint", "cleanup_interval", "cleanup_interval",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateTopology() error {
	t := v.cfg.Topology
	if t.PollInterval <= 0 {
		return NewValidationError("topology", "poll_interval", "poll_interval",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if t.StaleAfter <= 0 {
		return NewValidationError("topology", "stale_after", "stale_after",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

// validateTunnel only validates structural well-formedness: zone names are
// non-empty and unique, and DaemonControl (when set) is a known mode. An
// empty Tunnel section is valid — deployments with no tunnel integration
// simply never populate CNAME requests.
func (v *Validator) validateTunnel() error {
	t := v.cfg.Tunnel

	seen := make(map[string]bool, len(t.KnownZones))
	for _, zone := range t.KnownZones {
		if zone == "" {
			return NewValidationError("tunnel", "known_zones", "known_zones",
				fmt.Errorf("%w: zone name cannot be empty", ErrInvalidValue))
		}
		if seen[zone] {
			return NewValidationError("tunnel", "known_zones", "known_zones",
				fmt.Errorf("%w: duplicate zone %q", ErrInvalidValue, zone))
		}
		seen[zone] = true
	}

	if t.DaemonControl != "" && !t.DaemonControl.IsValid() {
		return NewValidationError("tunnel", "daemon_control", "daemon_control",
			fmt.Errorf("%w: %q", ErrInvalidValue, t.DaemonControl))
	}

	if len(t.KnownZones) > 0 && t.StableHostname == "" {
		return NewValidationError("tunnel", "stable_hostname", "stable_hostname",
			fmt.Errorf("%w: required when known_zones is non-empty", ErrMissingRequiredField))
	}

	return nil
}

func (v *Validator) validateDispatcher() error {
	d := v.cfg.Dispatcher
	if d.ListenAddr == "" {
		return NewValidationError("dispatcher", "listen_addr", "listen_addr", ErrMissingRequiredField)
	}
	return nil
}

func (v *Validator) validateSecrets() error {
	s := v.cfg.Secrets
	if s.DNSEditTokenPath == "" {
		return NewValidationError("secrets", "dns_edit_token_path", "dns_edit_token_path", ErrMissingRequiredField)
	}
	if s.DNSZoneIDPath == "" {
		return NewValidationError("secrets", "dns_zone_id_path", "dns_zone_id_path", ErrMissingRequiredField)
	}
	return nil
}
