package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceChannel(t *testing.T) {
	tests := []struct {
		name       string
		instanceID string
		want       string
	}{
		{
			name:       "formats instance channel correctly",
			instanceID: "abc-123",
			want:       "overseer:instance:abc-123",
		},
		{
			name:       "handles UUID format",
			instanceID: "550e8400-e29b-41d4-a716-446655440000",
			want:       "overseer:instance:550e8400-e29b-41d4-a716-446655440000",
		},
		{
			name:       "handles empty string",
			instanceID: "",
			want:       "overseer:instance:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InstanceChannel(tt.instanceID))
		})
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []string{
		EventTypeAppended,
		EventTypeInstanceStatus,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.NotEmpty(t, typ, "event type should not be empty")
		assert.False(t, seen[typ], "duplicate event type: %s", typ)
		seen[typ] = true
	}
}

func TestGlobalInstancesChannel(t *testing.T) {
	assert.Equal(t, "overseer:instances", GlobalInstancesChannel)
}

func TestInstanceIDFromChannel(t *testing.T) {
	assert.Equal(t, "abc-123", instanceIDFromChannel(InstanceChannel("abc-123")))
	assert.Equal(t, "", instanceIDFromChannel(GlobalInstancesChannel))
	assert.Equal(t, "", instanceIDFromChannel("garbage"))
}
