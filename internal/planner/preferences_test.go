package planner

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/llm"
	"github.com/ashureev/nibbl/internal/store"
)

// fakeCompleter replays canned responses and records every request.
type fakeCompleter struct {
	responses []string
	err       error
	requests  []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("fake completer exhausted")
	}
	out := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return out, nil
}

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedMember(t *testing.T, repo store.Repository, name string, role domain.Role) *domain.Member {
	t.Helper()
	m := domain.NewMember(name, "+3161234"+name, role)
	if err := repo.UpsertMember(context.Background(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func TestObserveStoresNewPreferences(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	member := seedMember(t, repo, "Emma", domain.RoleChild)

	completer := &fakeCompleter{responses: []string{`{
		"preferences": [
			{"category": "dislikes", "detail": "spruitjes", "confidence": 0.8},
			{"category": "likes", "detail": "pasta", "confidence": 0.6}
		],
		"specific_wishes": ["pizza dit weekend"],
		"has_food_content": true
	}`}}
	engine := NewPreferenceEngine(completer, "test-model", repo)

	prefs, wishes := engine.Observe(context.Background(), member, "ik wil geen spruitjes, wel pasta en pizza dit weekend")
	if len(prefs) != 2 {
		t.Fatalf("got %d preferences, want 2", len(prefs))
	}
	if len(wishes) != 1 || wishes[0] != "pizza dit weekend" {
		t.Errorf("wishes = %v", wishes)
	}

	stored, err := repo.GetPreferences(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d preferences, want 2", len(stored))
	}
	if stored[0].Detail != "spruitjes" || stored[0].Confidence != 0.8 {
		t.Errorf("highest first, got %+v", stored[0])
	}
}

func TestObserveMergesSubstringMatch(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	member := seedMember(t, repo, "Joris", domain.RoleParent)

	if _, err := repo.AddPreference(context.Background(), &domain.Preference{
		MemberID: member.ID, Category: domain.CategoryDislikes,
		Detail: "fish", Confidence: 0.6, Source: "conversation",
	}); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	completer := &fakeCompleter{responses: []string{`{
		"preferences": [{"category": "dislikes", "detail": "raw fish", "confidence": 0.5}],
		"specific_wishes": [],
		"has_food_content": true
	}`}}
	engine := NewPreferenceEngine(completer, "test-model", repo)

	prefs, _ := engine.Observe(context.Background(), member, "no raw fish please")
	if len(prefs) != 1 {
		t.Fatalf("got %d preferences, want 1", len(prefs))
	}
	// "raw fish" contains "fish": merge into the stored row and bump it.
	if prefs[0].Detail != "fish" {
		t.Errorf("detail = %q, want the stored row's %q", prefs[0].Detail, "fish")
	}
	if math.Abs(prefs[0].Confidence-0.7) > 1e-9 {
		t.Errorf("confidence = %v, want 0.7", prefs[0].Confidence)
	}

	stored, _ := repo.GetPreferences(context.Background(), member.ID)
	if len(stored) != 1 {
		t.Errorf("stored %d rows, want 1 after merge", len(stored))
	}
}

func TestObserveConfidenceCapped(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	member := seedMember(t, repo, "Fem", domain.RoleChild)

	response := `{
		"preferences": [{"category": "likes", "detail": "sushi", "confidence": 0.5}],
		"specific_wishes": [],
		"has_food_content": true
	}`
	engine := NewPreferenceEngine(&fakeCompleter{responses: []string{response}}, "test-model", repo)

	for i := 0; i < 8; i++ {
		engine.Observe(context.Background(), member, "sushi!")
	}

	stored, _ := repo.GetPreferences(context.Background(), member.ID)
	if len(stored) != 1 {
		t.Fatalf("stored %d rows, want 1", len(stored))
	}
	if stored[0].Confidence != 1.0 {
		t.Errorf("confidence = %v, want capped at 1.0", stored[0].Confidence)
	}
}

func TestObserveIgnoresNonFoodContent(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	member := seedMember(t, repo, "Bas", domain.RoleChild)

	completer := &fakeCompleter{responses: []string{`{
		"preferences": [], "specific_wishes": [], "has_food_content": false
	}`}}
	engine := NewPreferenceEngine(completer, "test-model", repo)

	prefs, wishes := engine.Observe(context.Background(), member, "hoe laat ben je thuis?")
	if prefs != nil || wishes != nil {
		t.Errorf("got prefs=%v wishes=%v, want nothing", prefs, wishes)
	}
}

func TestObserveSwallowsExtractionFailure(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	member := seedMember(t, repo, "Roos", domain.RoleParent)

	engine := NewPreferenceEngine(&fakeCompleter{err: errors.New("api down")}, "test-model", repo)
	prefs, wishes := engine.Observe(context.Background(), member, "pasta graag")
	if prefs != nil || wishes != nil {
		t.Errorf("got prefs=%v wishes=%v, want nothing on failure", prefs, wishes)
	}
}

func TestSnapshotFormatsPerMember(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)
	mama := seedMember(t, repo, "Mama", domain.RoleParent)
	kid := seedMember(t, repo, "Teun", domain.RoleChild)

	if _, err := repo.AddPreference(context.Background(), &domain.Preference{
		MemberID: mama.ID, Category: domain.CategoryAllergy,
		Detail: "pinda", Confidence: 1.0, Source: "conversation",
	}); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	engine := NewPreferenceEngine(&fakeCompleter{}, "test-model", repo)
	snapshot := engine.Snapshot(context.Background(), []*domain.Member{mama, kid})

	if !strings.Contains(snapshot, "### Mama (parent)") {
		t.Errorf("missing member header:\n%s", snapshot)
	}
	if !strings.Contains(snapshot, "allergy: pinda") {
		t.Errorf("missing preference line:\n%s", snapshot)
	}
	// Full confidence preferences carry no percentage suffix.
	if strings.Contains(snapshot, "pinda [") {
		t.Errorf("full confidence must not show a percentage:\n%s", snapshot)
	}
	if !strings.Contains(snapshot, "### Teun (child)\nNo known preferences.") {
		t.Errorf("missing empty section:\n%s", snapshot)
	}
}
