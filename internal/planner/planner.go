// Package planner holds the meal planning brain: plan generation and
// revision, intent classification, the preference ledger, pantry matching,
// and outbound message formatting.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/llm"
	"github.com/google/uuid"
)

// Completer is the text completion capability the planner delegates to.
// Satisfied by *llm.Client; tests provide fakes.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Intent is the classified meaning of an inbound message.
type Intent string

const (
	IntentTrigger        Intent = "trigger"
	IntentPreference     Intent = "preference"
	IntentApproval       Intent = "approval"
	IntentRejection      Intent = "rejection"
	IntentChangeRequest  Intent = "change_request"
	IntentPantryResponse Intent = "pantry_response"
	IntentCancel         Intent = "cancel"
	IntentGreeting       Intent = "greeting"
	IntentOther          Intent = "other"
)

// Classification is the structured result of intent classification.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

// Models selects which model serves which task.
type Models struct {
	Planning   string
	Extraction string
}

// MealPlanner generates and revises meal plans and classifies messages.
type MealPlanner struct {
	completer Completer
	models    Models
}

// NewMealPlanner creates a planner over the given completion capability.
func NewMealPlanner(completer Completer, models Models) *MealPlanner {
	return &MealPlanner{completer: completer, models: models}
}

type planPayload struct {
	Plan []struct {
		Date   string `json:"date"`
		Recipe struct {
			Name            string   `json:"name"`
			Description     string   `json:"description"`
			Servings        int      `json:"servings"`
			PrepTimeMinutes int      `json:"prep_time_minutes"`
			CookTimeMinutes int      `json:"cook_time_minutes"`
			Cuisine         string   `json:"cuisine"`
			Tags            []string `json:"tags"`
			Ingredients     []struct {
				Name     string  `json:"name"`
				Quantity float64 `json:"quantity"`
				Unit     string  `json:"unit"`
				Category string  `json:"category"`
			} `json:"ingredients"`
			Instructions string `json:"instructions"`
		} `json:"recipe"`
	} `json:"plan"`
	Reasoning string `json:"reasoning"`
}

// PlanRequest bundles the inputs to plan generation.
type PlanRequest struct {
	Members     []*domain.Member
	Preferences string // formatted ledger snapshot, all members
	Wishes      map[string][]string
	History     []*domain.MealHistoryEntry
	Days        int
	Language    string // "nl" or "en"
}

// GeneratePlan asks the model for a multi-day dinner plan starting tomorrow.
func (p *MealPlanner) GeneratePlan(ctx context.Context, req PlanRequest) (*domain.MealPlan, error) {
	start := time.Now().AddDate(0, 0, 1)

	var profiles []string
	names := make(map[string]string, len(req.Members))
	for _, m := range req.Members {
		profiles = append(profiles, fmt.Sprintf("- %s (%s)", m.Name, m.Role))
		names[m.ID] = m.Name
	}

	var wishes []string
	memberIDs := make([]string, 0, len(req.Wishes))
	for id := range req.Wishes {
		memberIDs = append(memberIDs, id)
	}
	sort.Strings(memberIDs)
	for _, id := range memberIDs {
		name := names[id]
		if name == "" {
			name = "Unknown"
		}
		for _, w := range req.Wishes[id] {
			wishes = append(wishes, fmt.Sprintf("- %s: %s", name, w))
		}
	}
	wishesText := "No specific requests."
	if len(wishes) > 0 {
		wishesText = strings.Join(wishes, "\n")
	}

	historyText := "No recent history."
	if len(req.History) > 0 {
		var lines []string
		for _, h := range req.History {
			lines = append(lines, fmt.Sprintf("- %s (%s, %s)",
				h.RecipeName, h.Cuisine, h.CookedDate.Format("2006-01-02")))
		}
		historyText = strings.Join(lines, "\n")
	}

	language := "Dutch"
	if req.Language == "en" {
		language = "English"
	}

	prompt := fmt.Sprintf(mealPlanPrompt,
		req.Days, start.Format("2006-01-02"), strings.Join(profiles, "\n"),
		wishesText, req.Preferences, historyText, language, len(req.Members))

	out, err := p.completer.Complete(ctx, llm.Request{
		Model:       p.models.Planning,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   4096,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	return parsePlan(out)
}

// RevisePlan asks the model to adjust an existing plan per parent feedback.
func (p *MealPlanner) RevisePlan(ctx context.Context, recipes []domain.Recipe, feedback string) (*domain.MealPlan, error) {
	current, err := formatPlanJSON(recipes)
	if err != nil {
		return nil, err
	}

	out, err := p.completer.Complete(ctx, llm.Request{
		Model:       p.models.Planning,
		Messages:    []llm.Message{{Role: "user", Content: fmt.Sprintf(revisionPrompt, current, feedback)}},
		MaxTokens:   4096,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("revise plan: %w", err)
	}
	return parsePlan(out)
}

// Classify determines the intent of an inbound message. On any failure the
// caller treats the message as content for the current phase.
func (p *MealPlanner) Classify(ctx context.Context, text string, state domain.SessionState, role domain.Role) (Classification, error) {
	out, err := p.completer.Complete(ctx, llm.Request{
		Model:     p.models.Extraction,
		Messages:  []llm.Message{{Role: "user", Content: fmt.Sprintf(classifyPrompt, text, state, role)}},
		MaxTokens: 200,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify message: %w", err)
	}

	var c Classification
	if err := llm.UnmarshalResponse(out, &c); err != nil {
		return Classification{}, err
	}
	return c, nil
}

func parsePlan(out string) (*domain.MealPlan, error) {
	var payload planPayload
	if err := llm.UnmarshalResponse(out, &payload); err != nil {
		return nil, err
	}

	plan := &domain.MealPlan{Reasoning: payload.Reasoning}
	for _, entry := range payload.Plan {
		planned, err := time.Parse("2006-01-02", entry.Date)
		if err != nil {
			return nil, fmt.Errorf("parse plan date %q: %w", entry.Date, err)
		}
		r := entry.Recipe
		recipe := domain.Recipe{
			ID:              uuid.NewString(),
			Name:            r.Name,
			Description:     r.Description,
			PlannedDate:     planned,
			Servings:        r.Servings,
			PrepTimeMinutes: r.PrepTimeMinutes,
			CookTimeMinutes: r.CookTimeMinutes,
			Cuisine:         r.Cuisine,
			Tags:            r.Tags,
			Instructions:    r.Instructions,
		}
		for _, ing := range r.Ingredients {
			category := ing.Category
			if category == "" {
				category = "other"
			}
			recipe.Ingredients = append(recipe.Ingredients, domain.Ingredient{
				Name:         ing.Name,
				Quantity:     ing.Quantity,
				Unit:         ing.Unit,
				Category:     category,
				SearchStatus: domain.SearchPending,
			})
		}
		plan.Recipes = append(plan.Recipes, recipe)
	}
	return plan, nil
}
