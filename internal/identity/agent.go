package identity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/courierhq/courier/internal/store"
	"github.com/courierhq/courier/pkg/schema"
)

// Agent type constants. Coding agents that exchange messages are "llm";
// the CLI and panel act as "human" or "system" participants.
const (
	AgentTypeLLM     = "llm"
	AgentTypeSystem  = "system"
	AgentTypeHuman   = "human"
	AgentTypeService = "service"
)

var validAgentTypes = map[string]bool{
	AgentTypeLLM:     true,
	AgentTypeSystem:  true,
	AgentTypeHuman:   true,
	AgentTypeService: true,
}

// ValidateAgentType checks that typ is one of the valid agent types.
func ValidateAgentType(typ string) error {
	if !validAgentTypes[typ] {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"invalid agent type %q: must be one of llm, system, human, service", typ)
	}
	return nil
}

// ValidateAgent checks required fields on an Agent.
func ValidateAgent(agent *store.Agent) error {
	if agent.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "agent id is required")
	}
	if agent.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "agent name is required")
	}
	return ValidateAgentType(agent.Type)
}

// NewMessageID returns a fresh message correlation ID.
func NewMessageID() string {
	return uuid.New().String()
}

// EnsureRegistered retrieves an existing agent or registers a new one.
// If the agent exists, it updates last_seen_at and returns the stored record.
// If not found, it registers the agent and returns the new record.
func EnsureRegistered(ctx context.Context, s store.Store, id, name, typ string, metadata json.RawMessage) (*store.Agent, error) {
	existing, err := s.GetAgent(ctx, id)
	if err == nil {
		_ = s.UpdateAgentSeen(ctx, id)
		return existing, nil
	}

	var courierErr *schema.CourierError
	if !errors.As(err, &courierErr) || courierErr.Code != schema.ErrCodeNotFound {
		return nil, err
	}

	agent := &store.Agent{
		ID:       id,
		Name:     name,
		Type:     typ,
		Metadata: metadata,
	}
	if err := ValidateAgent(agent); err != nil {
		return nil, err
	}
	if err := s.RegisterAgent(ctx, agent); err != nil {
		return nil, err
	}
	return s.GetAgent(ctx, id)
}
