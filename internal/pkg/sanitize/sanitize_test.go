package sanitize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBodyEscapesStringLeaves(t *testing.T) {
	type payload struct {
		Name string         `json:"name"`
		Tags []string       `json:"tags"`
		Meta map[string]any `json:"meta"`
		N    int            `json:"n"`
	}

	out, err := JSONBody(payload{
		Name: `<script>alert("x")</script>`,
		Tags: []string{"a&b"},
		Meta: map[string]any{"note": "<b>hi</b>", "depth": map[string]any{"v": "1<2"}},
		N:    7,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Equal(t, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;", decoded["name"])
	assert.Equal(t, []any{"a&amp;b"}, decoded["tags"])

	meta := decoded["meta"].(map[string]any)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", meta["note"])
	assert.Equal(t, "1&lt;2", meta["depth"].(map[string]any)["v"])

	assert.Equal(t, float64(7), decoded["n"])
}

func TestValuePassesScalarsThrough(t *testing.T) {
	assert.Equal(t, 3.5, Value(3.5))
	assert.Equal(t, true, Value(true))
	assert.Nil(t, Value(nil))
}
