package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/courierhq/courier/internal/streaming"
	"github.com/courierhq/courier/pkg/schema"
)

// NtfyPublisher subscribes to the event hub and posts a short summary to an
// ntfy topic for every urgent or high-priority message sent. Delivery is
// fire-and-forget: a failed POST is logged, never retried, and never blocks
// the append path.
type NtfyPublisher struct {
	serverURL string
	topic     string
	client    *http.Client
	hub       streaming.EventHub
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNtfyPublisher creates a publisher for the given ntfy server and topic.
// An empty serverURL defaults to the public ntfy.sh instance.
func NewNtfyPublisher(serverURL, topic string, hub streaming.EventHub, logger *slog.Logger) *NtfyPublisher {
	if serverURL == "" {
		serverURL = "https://ntfy.sh"
	}
	return &NtfyPublisher{
		serverURL: strings.TrimRight(serverURL, "/"),
		topic:     topic,
		client:    &http.Client{Timeout: 10 * time.Second},
		hub:       hub,
		logger:    logger,
	}
}

// Start subscribes to message-sent events and launches the delivery loop.
func (p *NtfyPublisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		return fmt.Errorf("ntfy publisher already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ch, unsubscribe, err := p.hub.Subscribe(loopCtx, streaming.EventFilter{
		EventTypes: []string{schema.EventMessageSent},
	})
	if err != nil {
		cancel()
		p.mu.Unlock()
		return fmt.Errorf("subscribe ntfy publisher: %w", err)
	}

	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(loopCtx, ch, unsubscribe)
	p.logger.Info("ntfy publisher started", slog.String("topic", p.topic))
	return nil
}

func (p *NtfyPublisher) loop(ctx context.Context, ch <-chan streaming.StreamEvent, unsubscribe func()) {
	defer close(p.done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			p.handle(ctx, event)
		}
	}
}

func (p *NtfyPublisher) handle(ctx context.Context, event streaming.StreamEvent) {
	var payload schema.MessageSentPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.Message == nil {
		return
	}
	msg := payload.Message
	if msg.Priority != schema.PriorityUrgent && msg.Priority != schema.PriorityHigh {
		return
	}

	title := fmt.Sprintf("[%s] %s -> %s", msg.Priority, msg.FromAgent, msg.ToAgent)
	body := msg.Subject
	if body == "" {
		body = msg.Body
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.serverURL+"/"+p.topic, strings.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Title", title)
	req.Header.Set("X-Priority", ntfyPriority(msg.Priority))
	req.Header.Set("Tags", "envelope")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("ntfy post failed",
			slog.String("workflow_id", event.WorkflowID),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		p.logger.Warn("ntfy post rejected",
			slog.String("workflow_id", event.WorkflowID),
			slog.Int("status", resp.StatusCode),
		)
	}
}

// ntfyPriority maps message priority onto the ntfy 1..5 scale.
func ntfyPriority(priority schema.Priority) string {
	if priority == schema.PriorityUrgent {
		return "5"
	}
	return "4"
}

// Stop shuts down the delivery loop.
func (p *NtfyPublisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}

	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil

	p.logger.Info("ntfy publisher stopped")
	return nil
}
