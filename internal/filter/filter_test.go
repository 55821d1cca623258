package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc() map[string]any {
	return map[string]any{
		"workflow_id": "wf-1",
		"event_type":  "agent.message.sent",
		"agent_id":    "planner",
		"sequence":    int64(7),
		"timestamp":   "2026-03-01T10:00:00Z",
		"payload": map[string]any{
			"message": map[string]any{
				"priority": "urgent",
				"to_agent": "coder",
			},
		},
	}
}

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher()
	require.NoError(t, err)
	return m
}

func TestMatcherExprDefault(t *testing.T) {
	m := newTestMatcher(t)
	ctx := context.Background()

	matched, err := m.Match(ctx, `event_type == "agent.message.sent"`, testDoc())
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = m.Match(ctx, `agent_id == "coder"`, testDoc())
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatcherExprPayloadAccess(t *testing.T) {
	m := newTestMatcher(t)
	matched, err := m.Match(context.Background(),
		`payload?.message?.priority == "urgent"`, testDoc())
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestMatcherCELPrefix(t *testing.T) {
	m := newTestMatcher(t)
	ctx := context.Background()

	matched, err := m.Match(ctx, `cel: event_type.startsWith("agent.message.")`, testDoc())
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = m.Match(ctx, `cel: sequence > 100`, testDoc())
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatcherJQPrefix(t *testing.T) {
	m := newTestMatcher(t)
	ctx := context.Background()

	matched, err := m.Match(ctx, `jq: .payload.message.to_agent == "coder"`, testDoc())
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = m.Match(ctx, `jq: .sequence > 100`, testDoc())
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatcherNonBooleanResultDoesNotMatch(t *testing.T) {
	m := newTestMatcher(t)
	ctx := context.Background()

	matched, err := m.Match(ctx, `event_type`, testDoc())
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = m.Match(ctx, `jq: .payload`, testDoc())
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatcherMissingFieldsTolerated(t *testing.T) {
	m := newTestMatcher(t)
	ctx := context.Background()
	sparse := map[string]any{"event_type": "agent.note.decision"}

	matched, err := m.Match(ctx, `agent_id == ""`, sparse)
	require.NoError(t, err)
	assert.False(t, matched) // undefined variable is nil, not ""

	matched, err = m.Match(ctx, `cel: agent_id == ""`, sparse)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestMatcherCompileErrors(t *testing.T) {
	m := newTestMatcher(t)
	ctx := context.Background()

	_, err := m.Match(ctx, `cel: event_type ==`, testDoc())
	require.Error(t, err)

	_, err = m.Match(ctx, `jq: .[unclosed`, testDoc())
	require.Error(t, err)
}

func TestMatcherCheck(t *testing.T) {
	m := newTestMatcher(t)

	assert.NoError(t, m.Check(`event_type == "x"`))
	assert.NoError(t, m.Check(`cel: sequence >= 0`))
	assert.NoError(t, m.Check(`jq: .agent_id == "a"`))

	assert.Error(t, m.Check(`cel: ==`))
	assert.Error(t, m.Check(`jq: .[`))
	assert.Error(t, m.Check(``))
}

func TestGoJQMultipleOutputsCollected(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `.payload.message | keys[]`, testDoc())
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"priority", "to_agent"}, out)
}

func TestEngineCachesReused(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := e.Evaluate(ctx, `sequence > 1`, testDoc())
		require.NoError(t, err)
		assert.Equal(t, true, out)
	}
	assert.Len(t, e.cache, 1)
}
