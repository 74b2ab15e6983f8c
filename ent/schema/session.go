package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session holds the schema definition for the Supervisor Session entity (C3,
// Instance Registry) — one row per live project supervisor (PS) or
// meta-supervisor (MS).
type Session struct {
	ent.Schema
}

// Fields of the Session.
func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("instance_id").
			Unique().
			Immutable(),
		field.String("project").
			Immutable().
			Comment("Project tag this instance belongs to"),
		field.Enum("instance_type").
			Values("PS", "MS").
			Default("PS").
			Immutable(),
		field.Enum("transport").
			Values("cli", "sdk").
			Default("cli").
			Immutable(),
		field.String("external_handle").
			Comment("tmux session name or browser session id"),
		field.Time("started_at").
			Default(time.Now).
			Immutable(),
		field.Time("last_activity").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("last_context_check").
			Optional().
			Nillable(),
		field.Float("context_usage").
			Default(0).
			Comment("Fraction in [0,1]"),
		field.Int64("estimated_tokens_used").
			Default(0),
		field.Int64("estimated_tokens_total").
			Default(200000),
		field.Time("closed_at").
			Optional().
			Nillable().
			Comment("Set by explicit close; row retained for audit until TTL cleanup"),
	}
}

// Annotations of the Session — named supervisor_sessions per spec §4.3,
// rather than ent's default pluralized type name.
func (Session) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "supervisor_sessions"},
	}
}

// Edges of the Session.
func (Session) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("events", Event.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("checkpoints", Checkpoint.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Session.
func (Session) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project").
			Annotations(entsql.IndexWhere("closed_at IS NULL")).
			Unique(),
		index.Fields("last_activity"),
	}
}
