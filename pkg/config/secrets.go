package config

// SecretsConfig names the hierarchical key paths the Tunnel Manager (C9)
// asks the secrets component for (spec §6 "Environment": "the core never
// reads environment variables directly; it asks the secrets component").
// Values themselves never live in config — only the paths to request.
type SecretsConfig struct {
	// DNSEditTokenPath is the key path for the DNS provider's zone-edit
	// token, e.g. "meta/cloudflare/dns_edit_token".
	DNSEditTokenPath string `yaml:"dns_edit_token_path"`

	// DNSZoneIDPath is the key path for the DNS provider's zone identifier.
	DNSZoneIDPath string `yaml:"dns_zone_id_path"`
}

// DefaultSecretsConfig returns the built-in secrets key-path defaults.
func DefaultSecretsConfig() SecretsConfig {
	return SecretsConfig{
		DNSEditTokenPath: "meta/cloudflare/dns_edit_token",
		DNSZoneIDPath:    "meta/cloudflare/zone_id",
	}
}
