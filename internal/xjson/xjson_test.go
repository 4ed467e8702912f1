package xjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal_NumbersDecodeAsFloat(t *testing.T) {
	var m map[string]any
	require.NoError(t, Unmarshal([]byte(`{"workers": 8, "nested": {"on": true}}`), &m))

	assert.Equal(t, float64(8), m["workers"])
	assert.Equal(t, map[string]any{"on": true}, m["nested"])
}

func TestRawMessage_Deferred(t *testing.T) {
	type envelope struct {
		Kind string     `json:"kind"`
		Body RawMessage `json:"body"`
	}

	data, err := Marshal(envelope{Kind: "node", Body: RawMessage(`{"name":"s1"}`)})
	require.NoError(t, err)

	var out envelope
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, "node", out.Kind)
	assert.JSONEq(t, `{"name":"s1"}`, string(out.Body))
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"a": 1}, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}
