package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCourierServer(t *testing.T) {
	s := NewCourierServer(CourierServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.sessions)
}

func TestToolRegistration(t *testing.T) {
	s := NewCourierServer(CourierServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 9)

	expectedTools := []string{
		"courier.send",
		"courier.ack",
		"courier.complete",
		"courier.note",
		"courier.inbox",
		"courier.outbox",
		"courier.conversation",
		"courier.notes",
		"courier.query",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"send", "courier.send", "Send a message to another agent in a workflow"},
		{"ack", "courier.ack", "Acknowledge receipt of a message"},
		{"complete", "courier.complete", "Mark a message's requested work as completed"},
		{"note", "courier.note", "Record a note in the workflow's shared log"},
		{"inbox", "courier.inbox", "Read an agent's inbox for a workflow"},
		{"outbox", "courier.outbox", "Read an agent's outbox for a workflow"},
		{"conversation", "courier.conversation", "Read completed exchanges ordered by completion time"},
		{"notes", "courier.notes", "Browse a workflow's recorded notes"},
		{"query", "courier.query", "Inspect the raw event log"},
	}

	s := NewCourierServer(CourierServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
