package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the Event entity — the append-only
// causal event log (C1, Event Store). Depth and root_uuid are derived and
// enforced by a BEFORE INSERT trigger installed by the migrations in
// pkg/database/migrations, not by application code.
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.String("instance_id").
			Immutable().
			Comment("Owning session"),
		field.String("event_type").
			Immutable().
			Comment("Short tag, e.g. user_message, tool_use, spawn_decision"),
		field.Int("sequence_num").
			Immutable().
			Comment("Strictly increasing per instance_id"),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.JSON("event_data", map[string]interface{}{}).
			Optional().
			Comment("Sanitized structured payload"),
		field.String("parent_uuid").
			Optional().
			Nillable().
			Immutable(),
		field.String("root_uuid").
			Immutable().
			Comment("Set by trigger: self when parent_uuid is null, else parent's root_uuid"),
		field.Int("depth").
			Default(0).
			Immutable().
			Comment("Set by trigger: 0 when parent_uuid is null, else parent.depth + 1"),
	}
}

// Edges of the Event.
func (Event) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", Session.Type).
			Ref("events").
			Field("instance_id").
			Unique().
			Required().
			Immutable(),
		edge.To("children", Event.Type).
			Annotations(entsql.OnDelete(entsql.SetNull)),
		edge.From("parent", Event.Type).
			Ref("children").
			Field("parent_uuid").
			Unique().
			Immutable(),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("parent_uuid"),
		index.Fields("root_uuid"),
		index.Fields("depth"),
		index.Fields("instance_id", "timestamp"),
		index.Fields("instance_id", "sequence_num").
			Unique(),
	}
}
