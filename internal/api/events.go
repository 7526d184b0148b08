package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/nibbl/internal/orchestrator"
)

// EventHub fans orchestrator events out to WebSocket subscribers. Publish
// never blocks; a subscriber that cannot keep up misses events.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan orchestrator.Event]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan orchestrator.Event]struct{})}
}

// Publish implements orchestrator.EventSink.
func (h *EventHub) Publish(event orchestrator.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *EventHub) subscribe() chan orchestrator.Event {
	ch := make(chan orchestrator.Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan orchestrator.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades to WebSocket and streams events as JSON text frames.
// The connection is write-only; reads are drained solely to detect close.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("could not accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("could not close websocket", "error", closeErr)
		}
	}()

	ctx := ws.CloseRead(r.Context())

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	slog.Info("event stream connected", "ip", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("could not marshal event", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
				slog.Debug("event stream write failed", "error", err)
				return
			}
		}
	}
}
