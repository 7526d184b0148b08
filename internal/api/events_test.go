package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/orchestrator"
)

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := NewEventHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	// Overflow the subscriber buffer; the extra events are dropped, not
	// queued, and Publish returns promptly every time.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(orchestrator.Event{Type: "transition"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d events, want full buffer of %d", len(ch), cap(ch))
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewEventHub()
	hub.Publish(orchestrator.Event{Type: "transition"}) // must not panic
}

func TestEventStream(t *testing.T) {
	t.Parallel()

	hub := NewEventHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "done")

	// The handler subscribes asynchronously after the handshake, so keep
	// publishing until the frame arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Publish(orchestrator.Event{
					Type:      "transition",
					SessionID: "s1",
					State:     domain.StateGeneratingPlan,
					At:        time.Now(),
				})
			}
		}
	}()

	typ, payload, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}

	var event orchestrator.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != "transition" || event.SessionID != "s1" {
		t.Errorf("event = %+v", event)
	}
	if event.State != domain.StateGeneratingPlan {
		t.Errorf("state = %q", event.State)
	}
}
