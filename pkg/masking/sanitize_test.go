package masking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeEventData_RedactsSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"tool":    "Task",
		"api_key": "sk-abc",
		"ok":      true,
	}

	out := SanitizeEventData(in)

	assert.Equal(t, "Task", out["tool"])
	assert.Equal(t, "[REDACTED]", out["api_key"])
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "sk-abc", in["api_key"], "input map must not be mutated")
}

func TestSanitizeEventData_CaseInsensitive(t *testing.T) {
	in := map[string]any{"API_Key": "x", "Password": "y", "Secret_Token": "z"}
	out := SanitizeEventData(in)
	for k := range in {
		assert.Equal(t, "[REDACTED]", out[k])
	}
}

func TestSanitizeEventData_Nested(t *testing.T) {
	in := map[string]any{
		"config": map[string]any{
			"api_key": "sk-nested",
			"region":  "us-east-1",
		},
	}

	out := SanitizeEventData(in)
	nested := out["config"].(map[string]any)
	assert.Equal(t, "[REDACTED]", nested["api_key"])
	assert.Equal(t, "us-east-1", nested["region"])
}

func TestSanitizeEventData_NestedArray(t *testing.T) {
	in := map[string]any{
		"items": []any{
			map[string]any{"token": "abc"},
			map[string]any{"name": "ok"},
		},
	}

	out := SanitizeEventData(in)
	items := out["items"].([]any)
	assert.Equal(t, "[REDACTED]", items[0].(map[string]any)["token"])
	assert.Equal(t, "ok", items[1].(map[string]any)["name"])
}

func TestSanitizeEventData_TruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("a", 600)
	in := map[string]any{"message": long}

	out := SanitizeEventData(in)
	assert.Len(t, out["message"], 500)
}

func TestSanitizeEventData_Nil(t *testing.T) {
	assert.Nil(t, SanitizeEventData(nil))
}
