package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Checkpoint holds the schema definition for the Checkpoint entity (C4,
// Checkpoint Engine) — an immutable snapshot of a session's visible work
// state at a moment.
type Checkpoint struct {
	ent.Schema
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("checkpoint_id").
			Unique().
			Immutable(),
		field.String("instance_id").
			Immutable(),
		field.Enum("kind").
			Values("context_window", "epic_completion", "manual").
			Immutable(),
		field.Int("sequence_num").
			Immutable().
			Comment("Monotonic per instance_id"),
		field.Float("context_window_percent").
			Immutable().
			Comment("[0,100]"),
		field.Time("snapshot_at").
			Default(time.Now).
			Immutable(),
		field.JSON("work_state", map[string]interface{}{}).
			Immutable().
			Comment("Serialized WorkState: current_epic, files_modified, git_status, last_commands, prd_status, environment"),
		field.JSON("metadata", map[string]interface{}{}).
			Optional().
			Immutable(),
	}
}

// Edges of the Checkpoint.
func (Checkpoint) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", Session.Type).
			Ref("checkpoints").
			Field("instance_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Checkpoint.
func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("instance_id", "sequence_num").
			Unique(),
		index.Fields("instance_id", "kind"),
		index.Fields("snapshot_at").
			Annotations(entsql.IndexWhere("kind <> 'manual'")),
	}
}
