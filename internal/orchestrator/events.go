package orchestrator

import (
	"time"

	"github.com/ashureev/nibbl/internal/domain"
)

// Event describes something the orchestrator did, for live observers.
type Event struct {
	Type      string              `json:"type"` // "transition", "message", "cart_report"
	SessionID string              `json:"session_id,omitempty"`
	State     domain.SessionState `json:"state,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	At        time.Time           `json:"at"`
}

// EventSink receives orchestrator events. Publish must not block; slow
// consumers drop events rather than stall the state machine.
type EventSink interface {
	Publish(event Event)
}
