package events

import (
	"context"

	"github.com/bmad-run/overseer/pkg/lineage"
)

// LineagePublisherAdapter adapts an *EventPublisher to lineage.Publisher, so
// pkg/lineage.Store can broadcast event.appended notices without importing
// this package's websocket machinery.
type LineagePublisherAdapter struct {
	publisher *EventPublisher
}

// NewLineagePublisherAdapter creates a LineagePublisherAdapter.
func NewLineagePublisherAdapter(p *EventPublisher) *LineagePublisherAdapter {
	return &LineagePublisherAdapter{publisher: p}
}

// PublishAppendedNow implements lineage.Publisher.
func (a *LineagePublisherAdapter) PublishAppendedNow(ctx context.Context, payload lineage.EventAppendedPayload) error {
	return a.publisher.PublishAppendedNow(ctx, NewEventAppendedPayload(
		payload.EventID, payload.InstanceID, payload.EventType, payload.ParentUUID,
		payload.RootUUID, payload.Depth, payload.SequenceNum, payload.EventData, payload.Timestamp,
	))
}
