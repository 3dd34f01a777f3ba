package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest_IsOrderIndependentForMaps(t *testing.T) {
	a := map[string]any{"mood": "calm", "score": 5, "tags": []any{"a", "b"}}
	b := map[string]any{"tags": []any{"a", "b"}, "score": 5, "mood": "calm"}

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	dc, err := Digest(map[string]any{"mood": "tense"})
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}

func TestUnmarshal_DecodesMapsAsStringKeyed(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "v"}})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, Unmarshal(data, &out))

	inner, ok := out["outer"].(map[string]any)
	require.True(t, ok, "nested map should decode as map[string]any, got %T", out["outer"])
	assert.Equal(t, "v", inner["inner"])
}

func TestSize(t *testing.T) {
	small, err := Size(map[string]any{"k": "v"})
	require.NoError(t, err)
	large, err := Size(map[string]any{"k": "a much longer value that takes more bytes"})
	require.NoError(t, err)

	assert.Positive(t, small)
	assert.Greater(t, large, small)
}
