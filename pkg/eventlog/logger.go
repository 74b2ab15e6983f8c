// Package eventlog implements the Event Logger (C2): an ambient-parent
// context wrapper over the Event Lineage Store (C1) with a bounded
// recent-events query (spec §4.2); it holds no events in memory.
package eventlog

import (
	"context"

	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/bmad-run/overseer/pkg/lineage"
)

// DefaultLimit and HardCapLimit bound how many events the logger's Recent
// query asks the store for (default 50, hard cap 1000).
const (
	DefaultLimit = 50
	HardCapLimit = 1000
)

// Store is the subset of *lineage.Store the logger needs, so tests can fake
// it without a live database.
type Store interface {
	Append(ctx context.Context, instanceID, eventType string, payload map[string]any, parent *string) (*lineage.Record, error)
	GetRecent(ctx context.Context, instanceID string, limit int) ([]lineage.Record, error)
}

// Logger wraps a Store with the ambient-parent-id context described in
// spec §4.2. A Logger is safe for concurrent use: the ambient parent lives
// in the caller's context.Context (see context.go), not in any field here.
type Logger struct {
	store      Store
	instanceID string
	limit      int
}

// New creates a Logger for one instance's event stream. limit is the row
// count this Logger's Recent method passes to the store's GetRecent;
// limit<=0 or >HardCapLimit is clamped to DefaultLimit/HardCapLimit
// respectively.
func New(store Store, instanceID string, limit int) *Logger {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > HardCapLimit {
		limit = HardCapLimit
	}
	return &Logger{store: store, instanceID: instanceID, limit: limit}
}

// Log appends an event, defaulting its parent to ctx's ambient parent (set
// by WithParent) unless explicitParent overrides it.
func (l *Logger) Log(ctx context.Context, eventType string, payload map[string]any, explicitParent *string) (string, error) {
	parent := explicitParent
	if parent == nil {
		if p, ok := parentFromContext(ctx); ok {
			parent = &p
		}
	}
	rec, err := l.store.Append(ctx, l.instanceID, eventType, payload, parent)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// WithParent runs fn with a context under which every Log call defaults its
// parent to uuid. Nested WithParent calls form a chain whose depths are
// consecutive integers (spec §8 round-trip property), since each call
// derives from whatever context it was given rather than resetting to root.
func (l *Logger) WithParent(ctx context.Context, uuid string, fn func(ctx context.Context)) {
	fn(WithParent(ctx, uuid))
}

// Recent returns the logger's bounded recent-events view, translating the
// configured limit through to the store (spec §4.2(b): "every query on the
// logger translates to a bounded SQL query").
func (l *Logger) Recent(ctx context.Context) ([]lineage.Record, error) {
	recs, err := l.store.GetRecent(ctx, l.instanceID, l.limit)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to read recent events", err)
	}
	return recs, nil
}
