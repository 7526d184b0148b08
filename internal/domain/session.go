package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is one phase of the planning workflow. The set is closed:
// sessions only ever move along the transition table in the orchestrator.
type SessionState string

const (
	StateIdle                  SessionState = "idle"
	StateCollectingPreferences SessionState = "collecting_preferences"
	StateGeneratingPlan        SessionState = "generating_plan"
	StateAwaitingApproval      SessionState = "awaiting_approval"
	StateCompilingIngredients  SessionState = "compiling_ingredients"
	StateCheckingPantry        SessionState = "checking_pantry"
	StateFillingCart           SessionState = "filling_cart"
	StateCompleted             SessionState = "completed"
)

// Active reports whether the state is neither initial nor terminal.
func (s SessionState) Active() bool {
	return s != StateIdle && s != StateCompleted
}

// Session is one end-to-end planning workflow instance. At most one session
// with an active state exists at a time; the store enforces that inside the
// transaction that creates a new one.
//
// Wishes and MembersResponded are deliberately in-memory only. A restart
// during preference collection loses partial answers and the phase waits for
// fresh input instead of replaying stale memory.
type Session struct {
	ID             string
	State          SessionState
	TriggeredBy    string // member ID, empty for scheduled triggers
	PlanStartDate  time.Time
	PlanEndDate    time.Time
	StateEnteredAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Transient, never persisted.
	Wishes           map[string][]string
	MembersResponded map[string]bool
}

// NewSession creates an idle session ready for its first transition.
func NewSession(triggeredBy string) *Session {
	now := time.Now()
	return &Session{
		ID:               uuid.NewString(),
		State:            StateIdle,
		TriggeredBy:      triggeredBy,
		StateEnteredAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
		Wishes:           make(map[string][]string),
		MembersResponded: make(map[string]bool),
	}
}

// TransitionTo moves the session into a new state and stamps the entry time.
// Persistence is the caller's responsibility.
func (s *Session) TransitionTo(state SessionState) {
	s.State = state
	s.StateEnteredAt = time.Now()
	s.UpdatedAt = s.StateEnteredAt
}

// InStateLongerThan reports whether the session has sat in its current state
// for longer than d.
func (s *Session) InStateLongerThan(d time.Duration) bool {
	return time.Since(s.StateEnteredAt) > d
}

// ResetTransient reinitializes the in-memory collection state. Called when a
// session is resumed after restart so the phase waits for fresh input.
func (s *Session) ResetTransient() {
	s.Wishes = make(map[string][]string)
	s.MembersResponded = make(map[string]bool)
}
