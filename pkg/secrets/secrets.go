// Package secrets defines the contract the secrets component satisfies
// (spec §6 "Environment": "the core never reads environment variables
// directly; it asks the secrets component"). Only key paths are configured
// in-tree (pkg/config.SecretsConfig) — values are always fetched at call
// time through this interface.
package secrets

import "context"

// Store resolves a hierarchical key path to its current secret value.
type Store interface {
	Get(ctx context.Context, path string) (string, error)
}
