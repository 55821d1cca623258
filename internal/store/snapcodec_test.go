package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codecState struct {
	AgentID string    `json:"agent_id"`
	Count   int       `json:"count"`
	SeenAt  time.Time `json:"seen_at"`
	Tags    []string  `json:"tags"`
}

func TestSnapshotCodecRoundTrip(t *testing.T) {
	in := codecState{
		AgentID: "planner",
		Count:   42,
		SeenAt:  time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		Tags:    []string{"storage", "architecture"},
	}

	data, err := EncodeSnapshotState(in)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	var out codecState
	require.NoError(t, DecodeSnapshotState(data, &out))
	assert.Equal(t, in.AgentID, out.AgentID)
	assert.Equal(t, in.Count, out.Count)
	assert.Equal(t, in.Tags, out.Tags)
	assert.True(t, in.SeenAt.Equal(out.SeenAt), "want %v, got %v", in.SeenAt, out.SeenAt)
}

func TestSnapshotCodecDeterministic(t *testing.T) {
	state := map[string]any{"b": 2, "a": 1, "c": []string{"x", "y"}}

	first, err := EncodeSnapshotState(state)
	require.NoError(t, err)
	second, err := EncodeSnapshotState(state)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSnapshotCodecZstdFraming(t *testing.T) {
	data, err := EncodeSnapshotState("hello")
	require.NoError(t, err)

	// zstd frame magic.
	require.GreaterOrEqual(t, len(data), 4)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, data[:4])
}

func TestSnapshotCodecRejectsGarbage(t *testing.T) {
	var out codecState
	assert.Error(t, DecodeSnapshotState([]byte("not a snapshot"), &out))
}
