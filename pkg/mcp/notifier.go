package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/courierhq/courier/internal/streaming"
	"github.com/courierhq/courier/pkg/schema"
)

// MessageNotifier subscribes to the event hub and pushes a notification to
// the recipient agent's MCP session whenever a message is sent to it.
// Best-effort: a disconnected recipient just polls its inbox later.
type MessageNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	hub       streaming.EventHub
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMessageNotifier creates a notifier that pushes via MCP sessions.
func NewMessageNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, hub streaming.EventHub, logger *slog.Logger) *MessageNotifier {
	return &MessageNotifier{
		mcpServer: mcpServer,
		sessions:  sessions,
		hub:       hub,
		logger:    logger,
	}
}

// Start subscribes to message-sent events and launches the push loop.
func (n *MessageNotifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.done != nil {
		n.mu.Unlock()
		return fmt.Errorf("message notifier already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ch, unsubscribe, err := n.hub.Subscribe(loopCtx, streaming.EventFilter{
		EventTypes: []string{schema.EventMessageSent},
	})
	if err != nil {
		cancel()
		n.mu.Unlock()
		return fmt.Errorf("subscribe message notifier: %w", err)
	}

	n.cancel = cancel
	n.done = make(chan struct{})
	n.mu.Unlock()

	go n.loop(loopCtx, ch, unsubscribe)
	return nil
}

func (n *MessageNotifier) loop(ctx context.Context, ch <-chan streaming.StreamEvent, unsubscribe func()) {
	defer close(n.done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			n.push(ctx, event)
		}
	}
}

func (n *MessageNotifier) push(ctx context.Context, event streaming.StreamEvent) {
	var payload schema.MessageSentPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.Message == nil {
		return
	}
	msg := payload.Message

	if err := n.Notify(ctx, msg.ToAgent, map[string]any{
		"kind":        "message.received",
		"workflow_id": event.WorkflowID,
		"message_id":  msg.MessageID,
		"from_agent":  msg.FromAgent,
		"subject":     msg.Subject,
		"priority":    string(msg.Priority),
	}); err != nil {
		n.logger.Warn("notify recipient failed",
			slog.String("workflow_id", event.WorkflowID),
			slog.String("to_agent", msg.ToAgent),
			slog.String("error", err.Error()),
		)
	}
}

// Notify sends a notification to the agent's MCP session.
// Best-effort: returns nil if the agent is not connected.
func (n *MessageNotifier) Notify(_ context.Context, agentID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(agentID)
	if !ok {
		return nil // agent not connected, best-effort
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send — not an error.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// Stop shuts down the push loop.
func (n *MessageNotifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel == nil {
		return nil
	}

	n.cancel()
	<-n.done
	n.cancel = nil
	n.done = nil
	return nil
}
