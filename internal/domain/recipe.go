package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SearchStatus tracks how an ingredient fared in product matching.
type SearchStatus string

const (
	SearchPending  SearchStatus = "pending"
	SearchFound    SearchStatus = "found"
	SearchNotFound SearchStatus = "not_found"
	SearchSkipped  SearchStatus = "skipped"
)

// Ingredient is one line of a recipe's shopping needs.
type Ingredient struct {
	ID               int64
	RecipeID         string
	Name             string
	Quantity         float64
	Unit             string
	Category         string
	Optional         bool
	AlreadyAvailable bool
	ProductID        string // matched store product, empty until matched
	ProductName      string
	AddedToCart      bool
	SearchStatus     SearchStatus
}

// Recipe is one planned dinner.
type Recipe struct {
	ID              string
	SessionID       string
	Name            string
	Description     string
	PlannedDate     time.Time
	Servings        int
	PrepTimeMinutes int
	CookTimeMinutes int
	Cuisine         string
	Tags            []string
	Ingredients     []Ingredient
	Instructions    string
	Approved        bool
}

// NewRecipe creates a recipe with a fresh ID.
func NewRecipe(name string) *Recipe {
	return &Recipe{ID: uuid.NewString(), Name: name}
}

// MealPlan is a generated set of recipes plus the model's reasoning.
type MealPlan struct {
	Recipes   []Recipe
	Reasoning string
}

// AllIngredients flattens the ingredients of every recipe in plan order.
func AllIngredients(recipes []Recipe) []Ingredient {
	var out []Ingredient
	for _, r := range recipes {
		out = append(out, r.Ingredients...)
	}
	return out
}

// MergeIngredients combines ingredients that share a name and unit, summing
// quantities. An ingredient is only considered already available or optional
// in the merged result when every occurrence was.
func MergeIngredients(ingredients []Ingredient) []Ingredient {
	type key struct{ name, unit string }
	merged := make(map[key]*Ingredient)
	var order []key

	for _, ing := range ingredients {
		k := key{strings.ToLower(strings.TrimSpace(ing.Name)), ing.Unit}
		if existing, ok := merged[k]; ok {
			existing.Quantity += ing.Quantity
			existing.Optional = existing.Optional && ing.Optional
			existing.AlreadyAvailable = existing.AlreadyAvailable && ing.AlreadyAvailable
			continue
		}
		copied := Ingredient{
			Name:             ing.Name,
			Quantity:         ing.Quantity,
			Unit:             ing.Unit,
			Category:         ing.Category,
			Optional:         ing.Optional,
			AlreadyAvailable: ing.AlreadyAvailable,
			SearchStatus:     SearchPending,
		}
		merged[k] = &copied
		order = append(order, k)
	}

	out := make([]Ingredient, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	return out
}

// MealHistoryEntry records one cooked dinner for variety tracking.
type MealHistoryEntry struct {
	ID          int64
	RecipeName  string
	Cuisine     string
	MainProtein string
	Tags        []string
	CookedDate  time.Time
	Rating      float64
	SessionID   string
}
