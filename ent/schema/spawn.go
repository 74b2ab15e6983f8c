package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Spawn holds the schema definition for the Active Spawn entity (C5, Spawn
// Tracker) — a child agent run fired by a PS.
type Spawn struct {
	ent.Schema
}

// Fields of the Spawn.
func (Spawn) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("spawn_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable(),
		field.String("task_id").
			Immutable().
			Comment("Unique within project"),
		field.String("task_type").
			Immutable(),
		field.String("description").
			Optional(),
		field.Time("spawn_time").
			Default(time.Now).
			Immutable(),
		field.Time("last_output_change").
			Default(time.Now),
		field.String("output_file").
			Immutable(),
		field.Enum("status").
			Values("running", "completed", "failed", "stalled", "abandoned").
			Default("running"),
		field.Int("exit_code").
			Optional().
			Nillable(),
		field.String("error_message").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the Spawn.
func (Spawn) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project", "task_id").
			Unique(),
		index.Fields("status", "last_output_change"),
	}
}
