package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// HealthCheck holds the schema definition for the Health Check entity (C6,
// Health Monitor) — an append-only audit row.
type HealthCheck struct {
	ent.Schema
}

// Fields of the HealthCheck.
func (HealthCheck) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("health_check_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable(),
		field.Time("check_time").
			Default(time.Now).
			Immutable(),
		field.Enum("check_type").
			Values("spawn", "context", "handoff", "orphaned_work").
			Immutable(),
		field.Enum("status").
			Values("ok", "warning", "critical").
			Immutable(),
		field.JSON("details", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.String("action_taken").
			Optional().
			Nillable().
			Immutable(),
		field.String("ps_response").
			Optional().
			Nillable().
			Immutable(),
	}
}

// Indexes of the HealthCheck.
func (HealthCheck) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "check_time"),
		index.Fields("check_type", "status"),
	}
}
