package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/nibbl/internal/config"
	"github.com/ashureev/nibbl/internal/conversation"
	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/orchestrator"
	"github.com/ashureev/nibbl/internal/planner"
	"github.com/ashureev/nibbl/internal/store"
)

type noopMessenger struct{}

func (noopMessenger) Send(context.Context, string, string) error { return nil }

type noopPlanner struct{}

func (noopPlanner) GeneratePlan(context.Context, planner.PlanRequest) (*domain.MealPlan, error) {
	return &domain.MealPlan{}, nil
}

func (noopPlanner) RevisePlan(context.Context, []domain.Recipe, string) (*domain.MealPlan, error) {
	return &domain.MealPlan{}, nil
}

func (noopPlanner) Classify(context.Context, string, domain.SessionState, domain.Role) (planner.Classification, error) {
	return planner.Classification{Intent: planner.IntentOther}, nil
}

func (noopPlanner) MatchPantry(context.Context, string, []domain.Ingredient) ([]string, error) {
	return nil, nil
}

type noopPrefs struct{}

func (noopPrefs) Observe(context.Context, *domain.Member, string) ([]*domain.Preference, []string) {
	return nil, nil
}

func (noopPrefs) Snapshot(context.Context, []*domain.Member) string { return "" }

func newTestServer(t *testing.T) (*httptest.Server, store.Repository) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	orch := orchestrator.New(orchestrator.Deps{
		Config: &config.Config{
			Language:          "nl",
			PlanDays:          4,
			PreferenceTimeout: time.Hour,
			PantryTimeout:     time.Hour,
		},
		Repo:         repo,
		Messenger:    noopMessenger{},
		Planner:      noopPlanner{},
		Preferences:  noopPrefs{},
		Conversation: conversation.NewManager(repo),
	})

	r := chi.NewRouter()
	NewHandler(repo, orch).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

func TestGetSessionIdle(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/session")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Active {
		t.Error("idle agent reported an active session")
	}
}

func TestTriggerStartsSession(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/trigger", "application/json", nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/session")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Active || body.State != domain.StateCollectingPreferences {
		t.Errorf("session = %+v", body)
	}
}

func TestTriggerConflict(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/trigger", "application/json", nil)
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/api/trigger", "application/json", nil)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestGetPreferences(t *testing.T) {
	t.Parallel()

	srv, repo := newTestServer(t)
	ctx := context.Background()

	member := domain.NewMember("Mama", "+31611111111", domain.RoleParent)
	if err := repo.UpsertMember(ctx, member); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	pref := &domain.Preference{
		MemberID:   member.ID,
		Category:   domain.CategoryAllergy,
		Detail:     "pinda",
		Confidence: 0.9,
		Source:     "conversation",
	}
	if _, err := repo.AddPreference(ctx, pref); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	resp, err := http.Get(srv.URL + "/api/preferences")
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	defer resp.Body.Close()

	var body []memberPreferences
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("got %d members, want 1", len(body))
	}
	if body[0].Member.Name != "Mama" {
		t.Errorf("member = %+v", body[0].Member)
	}
	if len(body[0].Preferences) != 1 || body[0].Preferences[0].Detail != "pinda" {
		t.Errorf("preferences = %+v", body[0].Preferences)
	}
}
