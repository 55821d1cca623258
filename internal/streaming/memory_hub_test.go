package streaming

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		WorkflowID: "wf-1",
		EventType:  "agent.message.sent",
		AgentID:    "planner",
		Sequence:   1,
		Payload:    json.RawMessage(`{"message":{"message_id":"m-1"}}`),
	}
	require.NoError(t, hub.Publish(ctx, event))

	select {
	case got := <-ch:
		assert.Equal(t, event.WorkflowID, got.WorkflowID)
		assert.Equal(t, event.EventType, got.EventType)
		assert.Equal(t, event.Sequence, got.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterByWorkflowID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.idea"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-2", EventType: "agent.note.idea"}))

	select {
	case got := <-ch:
		assert.Equal(t, "wf-1", got.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Channel should be empty -- the wf-2 event was filtered out.
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		EventTypes: []string{"agent.message.sent", "agent.note.warning"},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.message.sent"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.idea"}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.warning"}))

	var received []string
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			received = append(received, got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{"agent.message.sent", "agent.note.warning"}, received)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestFilterByPredicate(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		WorkflowID: "wf-1",
		Where: func(e StreamEvent) bool {
			return e.Sequence > 1
		},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.idea", Sequence: 1}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-2", EventType: "agent.note.idea", Sequence: 5}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.idea", Sequence: 2}))

	select {
	case got := <-ch:
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, int64(2), got.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.idea"}))

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "wf-1", got.WorkflowID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.idea"}))

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event after unsubscribe: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// Nobody reads; publishing past the buffer must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultChannelBuffer*2; i++ {
			_ = hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "agent.note.idea"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, defaultChannelBuffer)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.Error(t, err)
	assert.Error(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1"}))
}

func TestStreamEventDoc(t *testing.T) {
	e := StreamEvent{
		WorkflowID: "wf-1",
		EventType:  "agent.message.sent",
		AgentID:    "planner",
		Sequence:   7,
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:    json.RawMessage(`{"message":{"priority":"urgent"}}`),
	}

	doc := e.Doc()
	assert.Equal(t, "wf-1", doc["workflow_id"])
	assert.Equal(t, "agent.message.sent", doc["event_type"])
	assert.Equal(t, int64(7), doc["sequence"])

	payload, ok := doc["payload"].(map[string]any)
	require.True(t, ok)
	message, ok := payload["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "urgent", message["priority"])

	// Undecodable payloads surface as nil, not an error.
	bad := StreamEvent{WorkflowID: "wf-1", Payload: json.RawMessage(`{oops`)}
	assert.Nil(t, bad.Doc()["payload"])
}
