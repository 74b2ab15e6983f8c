package events

import (
	"encoding/json"
	"time"
)

// EventAppendedPayload is the payload for event.appended notices — one per
// row appended to the events table (C1). Mirrors the persisted Event entity
// (spec §3) plus the lineage fields the insert trigger derives.
type EventAppendedPayload struct {
	Type        string         `json:"type"` // always EventTypeAppended
	EventID     string         `json:"event_id"`
	InstanceID  string         `json:"instance_id"`
	EventType   string         `json:"event_type"` // caller-defined, e.g. "spawn_started"
	ParentUUID  *string        `json:"parent_uuid,omitempty"`
	RootUUID    string         `json:"root_uuid"`
	Depth       int            `json:"depth"`
	SequenceNum int            `json:"sequence_num"`
	EventData   map[string]any `json:"event_data,omitempty"`
	Timestamp   string         `json:"timestamp"` // RFC3339Nano
}

// InstanceStatusPayload is the payload for instance.status transient events.
// Published when a supervisor session starts or closes — not itself a
// lineage event, so it carries no sequence_num and is not replayed by catchup.
type InstanceStatusPayload struct {
	Type       string `json:"type"` // always EventTypeInstanceStatus
	InstanceID string `json:"instance_id"`
	Project    string `json:"project"`
	Status     string `json:"status"` // "started" or "closed"
	Timestamp  string `json:"timestamp"`
}

// NewEventAppendedPayload builds the wire payload for a persisted event row.
func NewEventAppendedPayload(eventID, instanceID, eventType string, parentUUID *string, rootUUID string, depth, sequenceNum int, eventData map[string]any, ts time.Time) EventAppendedPayload {
	return EventAppendedPayload{
		Type:        EventTypeAppended,
		EventID:     eventID,
		InstanceID:  instanceID,
		EventType:   eventType,
		ParentUUID:  parentUUID,
		RootUUID:    rootUUID,
		Depth:       depth,
		SequenceNum: sequenceNum,
		EventData:   eventData,
		Timestamp:   ts.Format(time.RFC3339Nano),
	}
}

// asMap round-trips the payload through JSON into a generic map, the shape
// CatchupEvent.Payload carries; ConnectionManager.handleCatchup re-marshals
// it for the wire unchanged.
func (p EventAppendedPayload) asMap() map[string]interface{} {
	data, err := json.Marshal(p)
	if err != nil {
		return map[string]interface{}{"type": p.Type, "event_id": p.EventID}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"type": p.Type, "event_id": p.EventID}
	}
	return m
}
