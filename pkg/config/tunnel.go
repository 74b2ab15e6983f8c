package config

// DaemonControlMode selects how the Restart Manager reloads the tunnel
// daemon (spec §4.8 step 7, §4.10).
type DaemonControlMode string

const (
	// DaemonControlSystemd restarts the daemon via a systemd unit.
	DaemonControlSystemd DaemonControlMode = "systemd"
	// DaemonControlContainer restarts the daemon via its container runtime.
	DaemonControlContainer DaemonControlMode = "container"
)

// IsValid reports whether the daemon control mode is one of the known values.
func (m DaemonControlMode) IsValid() bool {
	return m == DaemonControlSystemd || m == DaemonControlContainer
}

// TunnelConfig tunes the Tunnel Manager (C9, spec §4.8) and the Docker
// Topology Intel target-selection it depends on (C10, spec §4.9). DNS/tunnel
// API credentials are never held here — they are fetched through the
// secrets interface at call time (see SecretsConfig).
type TunnelConfig struct {
	// KnownZones lists the DNS zones the runtime is permitted to create
	// CNAMEs under (spec §4.8 step 3, "validate that the domain is a known zone").
	KnownZones []string `yaml:"known_zones"`

	// IngressFilePath is the tunnel daemon's ingress rule file. Writes are
	// atomic (write-then-rename) with a backup of the previous version
	// (spec §4.8).
	IngressFilePath string `yaml:"ingress_file_path"`

	// IngressBackupPath is where the previous ingress file version is kept
	// before an atomic write replaces it.
	IngressBackupPath string `yaml:"ingress_backup_path"`

	// DaemonControl selects how the Restart Manager reloads the daemon.
	DaemonControl DaemonControlMode `yaml:"daemon_control"`

	// DaemonContainerName identifies the tunnel daemon's own container, used
	// by the Docker Topology Intel target-selection algorithm to determine
	// which Docker networks the daemon itself is attached to (spec §4.9 step 2).
	DaemonContainerName string `yaml:"daemon_container_name,omitempty"`

	// StableHostname is the tunnel's own stable hostname that CNAME records
	// point at (spec §4.8 step 5).
	StableHostname string `yaml:"stable_hostname"`
}
