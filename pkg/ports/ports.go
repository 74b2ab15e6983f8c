// Package ports defines the contract the Port Directory satisfies (C8,
// spec §3/§4: "external, contract only" — range-partitioned allocation and
// persisted assignments live outside this module).
package ports

import "context"

// Assignment is a persisted (project, service, hostname, protocol) -> port
// mapping (spec §3 "Port Assignment").
type Assignment struct {
	Project  string
	Service  string
	Hostname string
	Protocol string
	Port     int
}

// Directory is consumed, not owned, by the Tunnel Manager (C9) during CNAME
// validation (spec §4.8 step 1: "Validate that (project, port) is an active
// port assignment, that the port is in the project's assigned range").
type Directory interface {
	Lookup(ctx context.Context, project, service string) (*Assignment, error)
	InRange(project string, port int) bool
}
