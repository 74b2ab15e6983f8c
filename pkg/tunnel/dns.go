package tunnel

import "context"

// DNSRegistrar is the narrow interface the Tunnel Manager consumes for DNS
// CNAME create/delete (spec §4.8 steps 5/8; spec §6 places the concrete
// Cloudflare/GCloud clients out of scope — only this interface lives here).
type DNSRegistrar interface {
	CreateCNAME(ctx context.Context, subdomain, domain, target string) (recordID string, err error)
	DeleteCNAME(ctx context.Context, recordID string) error
}

// DaemonReloader reloads the tunnel daemon after an ingress change (spec
// §4.8 step 7: "systemd restart or container restart, depending on
// deployment topology").
type DaemonReloader interface {
	Reload(ctx context.Context) error
	Status(ctx context.Context) (active bool, err error)
}
