package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CNAME holds the schema definition for the CNAME Record entity (C9, Tunnel
// Manager). Row commit happens only after every external side-effect
// (DNS create, ingress insert, daemon reload) has succeeded — see
// pkg/tunnel.Manager.
type CNAME struct {
	ent.Schema
}

// Fields of the CNAME.
func (CNAME) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("cname_id").
			Unique().
			Immutable(),
		field.String("subdomain").
			Immutable(),
		field.String("domain").
			Immutable(),
		field.String("target").
			Comment("http://<container>:<port> or http://localhost:<port>"),
		field.Enum("target_type").
			Values("localhost", "container", "external"),
		field.Int("target_port"),
		field.String("project").
			Immutable(),
		field.String("dns_record_id").
			Comment("Backing record id returned by the DNS registrar"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the CNAME.
func (CNAME) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("subdomain", "domain").
			Unique(),
		index.Fields("project"),
	}
}
