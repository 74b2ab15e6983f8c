package events

import (
	"context"

	"github.com/bmad-run/overseer/ent"
)

// eventQuerier abstracts the event query method needed by EventServiceAdapter.
// Implemented by *lineage.Store (C1).
type eventQuerier interface {
	GetEventsSince(ctx context.Context, instanceID string, sinceSeq, limit int) ([]*ent.Event, error)
}

// EventServiceAdapter wraps an eventQuerier to implement CatchupQuerier.
type EventServiceAdapter struct {
	querier eventQuerier
}

// NewEventServiceAdapter creates a CatchupQuerier from the Event Lineage Store.
func NewEventServiceAdapter(es eventQuerier) *EventServiceAdapter {
	return &EventServiceAdapter{querier: es}
}

// GetCatchupEvents queries events since sinceSeq up to limit for the catchup
// mechanism. channel is an instance's NOTIFY channel name as produced by
// InstanceChannel; the instance id is recovered by trimming its prefix.
func (a *EventServiceAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceSeq, limit int) ([]CatchupEvent, error) {
	instanceID := instanceIDFromChannel(channel)
	if instanceID == "" {
		return nil, nil
	}

	events, err := a.querier.GetEventsSince(ctx, instanceID, sinceSeq, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(events))
	for i, evt := range events {
		payload := NewEventAppendedPayload(
			evt.ID, evt.InstanceID, evt.EventType, evt.ParentUUID,
			evt.RootUUID, evt.Depth, evt.SequenceNum, evt.EventData, evt.Timestamp,
		)
		result[i] = CatchupEvent{
			SequenceNum: evt.SequenceNum,
			Payload:     payload.asMap(),
		}
	}
	return result, nil
}

// instanceIDFromChannel recovers the instance id from an InstanceChannel
// name. Returns "" for any other channel (e.g. GlobalInstancesChannel, which
// carries no replayable rows).
func instanceIDFromChannel(channel string) string {
	const prefix = "overseer:instance:"
	if len(channel) <= len(prefix) || channel[:len(prefix)] != prefix {
		return ""
	}
	return channel[len(prefix):]
}
