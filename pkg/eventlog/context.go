package eventlog

import "context"

// Ambient parent propagation is built directly on context.Context, the
// standard Go mechanism for task-local values that is safe to share across
// goroutines: every WithParent call derives a new, immutable context node
// rather than mutating shared state, so parallel sibling tasks forked from
// the same ancestor context never leak their own parent id into each other
// (spec §4.2's concurrency contract, satisfied here without any
// thread-local-style storage of our own).
type parentKey struct{}

// WithParent returns a derived context under which Log calls default their
// parent to uuid. Nested calls chain: WithParent(ctx, a) then
// WithParent(ctx2, b) makes b's children descend from a via b, not replace
// it — each call only changes what the *next* Log call downstream sees.
func WithParent(ctx context.Context, uuid string) context.Context {
	return context.WithValue(ctx, parentKey{}, uuid)
}

func parentFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(parentKey{}).(string)
	return v, ok
}
