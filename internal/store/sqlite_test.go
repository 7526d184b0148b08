package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/nibbl/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nibbl.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	// Missing key reads as empty, not as an error.
	got, err := s.GetState(ctx, StateKeyCursor)
	if err != nil {
		t.Fatalf("get missing state: %v", err)
	}
	if got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}

	if err := s.SetState(ctx, StateKeyCursor, "12345"); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := s.SetState(ctx, StateKeyCursor, "12346"); err != nil {
		t.Fatalf("overwrite state: %v", err)
	}

	got, err = s.GetState(ctx, StateKeyCursor)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got != "12346" {
		t.Errorf("state = %q, want 12346", got)
	}
}

func TestMemberUpsertAndLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	mama := domain.NewMember("Mama", "+31611111111", domain.RoleParent)
	kid := domain.NewMember("Kleine", "+31622222222", domain.RoleChild)
	for _, m := range []*domain.Member{mama, kid} {
		if err := s.UpsertMember(ctx, m); err != nil {
			t.Fatalf("upsert %s: %v", m.Name, err)
		}
	}

	// Upserting the same iMessage ID must update, not duplicate.
	renamed := domain.NewMember("Mam", "+31611111111", domain.RoleParent)
	if err := s.UpsertMember(ctx, renamed); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	members, err := s.GetMembers(ctx)
	if err != nil {
		t.Fatalf("get members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}

	found, err := s.GetMemberByIMessageID(ctx, "+31611111111")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found == nil || found.Name != "Mam" {
		t.Errorf("lookup after re-upsert = %+v, want name Mam", found)
	}

	missing, err := s.GetMemberByIMessageID(ctx, "+31600000000")
	if err != nil {
		t.Fatalf("lookup missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown sender, got %+v", missing)
	}

	parents, err := s.GetParents(ctx)
	if err != nil {
		t.Fatalf("get parents: %v", err)
	}
	if len(parents) != 1 || parents[0].IMessageID != "+31611111111" {
		t.Errorf("parents = %+v, want only the parent", parents)
	}
}

func TestPreferenceOrdering(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	member := domain.NewMember("Papa", "+31633333333", domain.RoleParent)
	if err := s.UpsertMember(ctx, member); err != nil {
		t.Fatalf("upsert member: %v", err)
	}

	low := &domain.Preference{MemberID: member.ID, Category: domain.CategoryLikes, Detail: "pasta", Confidence: 0.5, Source: "conversation"}
	high := &domain.Preference{MemberID: member.ID, Category: domain.CategoryAllergy, Detail: "pinda", Confidence: 1.0, Source: "conversation"}

	lowID, err := s.AddPreference(ctx, low)
	if err != nil {
		t.Fatalf("add preference: %v", err)
	}
	if _, err := s.AddPreference(ctx, high); err != nil {
		t.Fatalf("add preference: %v", err)
	}

	prefs, err := s.GetPreferences(ctx, member.ID)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(prefs) != 2 {
		t.Fatalf("got %d preferences, want 2", len(prefs))
	}
	if prefs[0].Detail != "pinda" {
		t.Errorf("highest confidence first, got %q", prefs[0].Detail)
	}

	if err := s.UpdatePreferenceConfidence(ctx, lowID, 0.6); err != nil {
		t.Fatalf("update confidence: %v", err)
	}
	prefs, err = s.GetPreferences(ctx, member.ID)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	for _, p := range prefs {
		if p.Detail == "pasta" && p.Confidence != 0.6 {
			t.Errorf("confidence = %v, want 0.6", p.Confidence)
		}
	}
}

func TestCreateSessionRejectsSecondActive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first := domain.NewSession("")
	first.State = domain.StateCollectingPreferences
	if err := s.CreateSession(ctx, first); err != nil {
		t.Fatalf("create first session: %v", err)
	}

	second := domain.NewSession("")
	second.State = domain.StateCollectingPreferences
	if err := s.CreateSession(ctx, second); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("create second session: got %v, want ErrSessionActive", err)
	}

	// Completing the first session clears the guard.
	first.TransitionTo(domain.StateCompleted)
	if err := s.SaveSession(ctx, first); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := s.CreateSession(ctx, second); err != nil {
		t.Fatalf("create after completion: %v", err)
	}
}

func TestGetActiveSessionResume(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.GetActiveSession(ctx)
	if err != nil {
		t.Fatalf("get active session: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no session, got %+v", active)
	}

	session := domain.NewSession("someone")
	session.State = domain.StateAwaitingApproval
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	active, err = s.GetActiveSession(ctx)
	if err != nil {
		t.Fatalf("get active session: %v", err)
	}
	if active == nil {
		t.Fatal("expected a session")
	}
	if active.ID != session.ID || active.State != domain.StateAwaitingApproval {
		t.Errorf("resumed %s in %s, want %s in awaiting_approval", active.ID, active.State, session.ID)
	}
	if active.Wishes == nil || active.MembersResponded == nil {
		t.Error("transient fields must be reinitialized on resume")
	}
	if active.StateEnteredAt.Unix() != session.StateEnteredAt.Unix() {
		t.Error("state entry time must survive a restart")
	}
}

func TestRecipeRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	session := domain.NewSession("")
	session.State = domain.StateGeneratingPlan
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	recipe := domain.NewRecipe("Zalm met rijst")
	recipe.SessionID = session.ID
	recipe.PlannedDate = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	recipe.Servings = 4
	recipe.Cuisine = "japans"
	recipe.Tags = []string{"vis", "snel"}
	recipe.Ingredients = []domain.Ingredient{
		{Name: "zalmfilet", Quantity: 400, Unit: "g", Category: "fish", SearchStatus: domain.SearchPending},
		{Name: "rijst", Quantity: 300, Unit: "g", Category: "pantry", SearchStatus: domain.SearchPending},
	}

	if err := s.SaveRecipe(ctx, recipe); err != nil {
		t.Fatalf("save recipe: %v", err)
	}
	if recipe.Ingredients[0].ID == 0 {
		t.Error("ingredient IDs must be assigned on save")
	}

	recipes, err := s.GetRecipes(ctx, session.ID)
	if err != nil {
		t.Fatalf("get recipes: %v", err)
	}
	if len(recipes) != 1 {
		t.Fatalf("got %d recipes, want 1", len(recipes))
	}
	got := recipes[0]
	if got.Name != "Zalm met rijst" || len(got.Ingredients) != 2 || len(got.Tags) != 2 {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	// Update one ingredient and verify persistence.
	ing := got.Ingredients[0]
	ing.AlreadyAvailable = true
	ing.SearchStatus = domain.SearchSkipped
	if err := s.UpdateIngredient(ctx, &ing); err != nil {
		t.Fatalf("update ingredient: %v", err)
	}
	recipes, _ = s.GetRecipes(ctx, session.ID)
	if !recipes[0].Ingredients[0].AlreadyAvailable {
		t.Error("ingredient update not persisted")
	}

	if err := s.MarkRecipesApproved(ctx, session.ID); err != nil {
		t.Fatalf("mark approved: %v", err)
	}
	recipes, _ = s.GetRecipes(ctx, session.ID)
	if !recipes[0].Approved {
		t.Error("approval flag not persisted")
	}

	if err := s.DeleteRecipes(ctx, session.ID); err != nil {
		t.Fatalf("delete recipes: %v", err)
	}
	recipes, _ = s.GetRecipes(ctx, session.ID)
	if len(recipes) != 0 {
		t.Errorf("got %d recipes after delete, want 0", len(recipes))
	}
}

func TestConversationLogOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for i, text := range []string{"eerste", "tweede", "derde"} {
		entry := &domain.ConversationEntry{
			SessionID:   "sess-1",
			MemberID:    "m-1",
			Direction:   domain.DirectionIncoming,
			MessageText: text,
			RowID:       int64(i + 1),
		}
		if err := s.LogConversation(ctx, entry); err != nil {
			t.Fatalf("log conversation: %v", err)
		}
	}

	entries, err := s.GetConversationHistory(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Limit keeps the newest entries but they come back chronological.
	if entries[0].MessageText != "tweede" || entries[1].MessageText != "derde" {
		t.Errorf("order = %q, %q", entries[0].MessageText, entries[1].MessageText)
	}
}

func TestMealHistoryWindow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	recent := &domain.MealHistoryEntry{
		RecipeName: "Kip pilav", Cuisine: "turks", MainProtein: "kip",
		Tags: []string{"kip"}, CookedDate: time.Now().Add(-24 * time.Hour),
	}
	old := &domain.MealHistoryEntry{
		RecipeName: "Stamppot", CookedDate: time.Now().Add(-90 * 24 * time.Hour),
	}
	for _, e := range []*domain.MealHistoryEntry{recent, old} {
		if err := s.AddMealHistory(ctx, e); err != nil {
			t.Fatalf("add history: %v", err)
		}
	}

	entries, err := s.GetRecentMealHistory(ctx, 28*24*time.Hour)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].RecipeName != "Kip pilav" || entries[0].MainProtein != "kip" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}
