// Package api provides the HTTP admin surface for the planning agent.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/orchestrator"
	"github.com/ashureev/nibbl/internal/store"
)

// Handler serves read-only status endpoints plus the manual trigger.
type Handler struct {
	repo store.Repository
	orch *orchestrator.Orchestrator
}

func NewHandler(repo store.Repository, orch *orchestrator.Orchestrator) *Handler {
	return &Handler{repo: repo, orch: orch}
}

// RegisterRoutes attaches the API routes to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/session", h.GetSession)
	r.Get("/api/preferences", h.GetPreferences)
	r.Post("/api/trigger", h.Trigger)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type sessionResponse struct {
	Active    bool                `json:"active"`
	SessionID string              `json:"session_id,omitempty"`
	State     domain.SessionState `json:"state,omitempty"`
	Since     string              `json:"state_entered_at,omitempty"`
}

// GetSession reports the current session, if any.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session := h.orch.Session()
	if session == nil {
		JSON(w, http.StatusOK, sessionResponse{Active: false})
		return
	}
	JSON(w, http.StatusOK, sessionResponse{
		Active:    true,
		SessionID: session.ID,
		State:     session.State,
		Since:     session.StateEnteredAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

type memberPreferences struct {
	Member      *domain.Member       `json:"member"`
	Preferences []*domain.Preference `json:"preferences"`
}

// GetPreferences returns the preference ledger grouped by member.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	members, err := h.repo.GetMembers(r.Context())
	if err != nil {
		slog.Error("could not load members", "error", err)
		Error(w, http.StatusInternalServerError, "could not load members")
		return
	}

	result := make([]memberPreferences, 0, len(members))
	for _, m := range members {
		prefs, err := h.repo.GetPreferences(r.Context(), m.ID)
		if err != nil {
			slog.Error("could not load preferences", "member", m.Name, "error", err)
			Error(w, http.StatusInternalServerError, "could not load preferences")
			return
		}
		result = append(result, memberPreferences{Member: m, Preferences: prefs})
	}
	JSON(w, http.StatusOK, result)
}

// Trigger starts a planning session, exactly as a scheduled trigger would.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.StartSession(r.Context(), nil); err != nil {
		if errors.Is(err, store.ErrSessionActive) {
			Error(w, http.StatusConflict, "a planning session is already active")
			return
		}
		slog.Error("could not start session", "error", err)
		Error(w, http.StatusInternalServerError, "could not start session")
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
