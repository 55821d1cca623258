package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

// mockAgentStore satisfies the store.Store methods used by identity.
// Only agent methods are implemented; others panic.
type mockAgentStore struct {
	store.Store // embed to satisfy interface; unused methods panic
	agents      map[string]*store.Agent
	seen        map[string]int
}

func newMockAgentStore() *mockAgentStore {
	return &mockAgentStore{
		agents: make(map[string]*store.Agent),
		seen:   make(map[string]int),
	}
}

func (m *mockAgentStore) RegisterAgent(_ context.Context, a *store.Agent) error {
	if _, exists := m.agents[a.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "agent %q already exists", a.ID)
	}
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockAgentStore) GetAgent(_ context.Context, id string) (*store.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "agent %q not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockAgentStore) UpdateAgentSeen(_ context.Context, id string) error {
	if _, ok := m.agents[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "agent %q not found", id)
	}
	m.seen[id]++
	return nil
}

func TestValidateAgentType(t *testing.T) {
	for _, typ := range []string{AgentTypeLLM, AgentTypeSystem, AgentTypeHuman, AgentTypeService} {
		assert.NoError(t, ValidateAgentType(typ), "type %q should be valid", typ)
	}

	err := ValidateAgentType("robot")
	require.Error(t, err)
	var courierErr *schema.CourierError
	require.True(t, errors.As(err, &courierErr))
	assert.Equal(t, schema.ErrCodeValidation, courierErr.Code)

	assert.Error(t, ValidateAgentType(""))
}

func TestValidateAgent(t *testing.T) {
	assert.NoError(t, ValidateAgent(&store.Agent{ID: "x", Name: "n", Type: AgentTypeService}))

	err := ValidateAgent(&store.Agent{Name: "n", Type: AgentTypeLLM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")

	err = ValidateAgent(&store.Agent{ID: "x", Type: AgentTypeLLM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")

	assert.Error(t, ValidateAgent(&store.Agent{ID: "x", Name: "n", Type: "invalid"}))
}

func TestEnsureRegisteredNewAgent(t *testing.T) {
	m := newMockAgentStore()
	a, err := EnsureRegistered(context.Background(), m, "coder", "coder", AgentTypeLLM, nil)
	require.NoError(t, err)
	assert.Equal(t, "coder", a.ID)
	assert.Len(t, m.agents, 1)
}

func TestEnsureRegisteredExistingAgentTouchesSeen(t *testing.T) {
	m := newMockAgentStore()
	ctx := context.Background()

	_, err := EnsureRegistered(ctx, m, "coder", "coder", AgentTypeLLM, nil)
	require.NoError(t, err)

	a, err := EnsureRegistered(ctx, m, "coder", "renamed", AgentTypeSystem, nil)
	require.NoError(t, err)
	assert.Equal(t, "coder", a.Name) // existing record wins
	assert.Equal(t, 1, m.seen["coder"])
}

func TestEnsureRegisteredInvalidAgent(t *testing.T) {
	m := newMockAgentStore()
	_, err := EnsureRegistered(context.Background(), m, "coder", "", AgentTypeLLM, nil)
	require.Error(t, err)
	assert.Empty(t, m.agents)
}

func TestNewMessageID(t *testing.T) {
	assert.NotEqual(t, NewMessageID(), NewMessageID())
}
