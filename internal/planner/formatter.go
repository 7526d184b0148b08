package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/nibbl/internal/domain"
)

// Formatting of outbound iMessage text. Everything here is bilingual keyed by
// the configured language ("nl" or "en").

var weekdayShort = map[string][7]string{
	"nl": {"Zo", "Ma", "Di", "Wo", "Do", "Vr", "Za"},
	"en": {"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
}

var labels = map[string]map[string]string{
	"menu_header": {
		"nl": "Hier is het menu voor deze week:",
		"en": "Here's the menu for this week:",
	},
	"pantry_question": {
		"nl": "Welke van deze dingen heb je al in huis?",
		"en": "Which of these do you already have at home?",
	},
	"pantry_footer": {
		"nl": "Stuur me wat je al hebt, dan sla ik die over.",
		"en": "Send me what you already have and I'll skip those.",
	},
	"shopping_list": {
		"nl": "Boodschappenlijst:",
		"en": "Shopping list:",
	},
	"cart_added": {
		"nl": "%d product(en) aan je Picnic mandje toegevoegd!",
		"en": "%d product(s) added to your Picnic cart!",
	},
	"cart_not_found": {
		"nl": "Kon ik niet vinden:",
		"en": "Could not find:",
	},
	"cart_errors": {
		"nl": "Problemen bij toevoegen:",
		"en": "Problems adding:",
	},
	"cart_footer": {
		"nl": "Open de Picnic app om je mandje te controleren en te bestellen!",
		"en": "Open the Picnic app to review your cart and place your order!",
	},
}

func label(key, lang string) string {
	if text, ok := labels[key][lang]; ok {
		return text
	}
	return labels[key]["en"]
}

// FormatMealPlan renders a plan for iMessage display.
func FormatMealPlan(recipes []domain.Recipe, lang string) string {
	days, ok := weekdayShort[lang]
	if !ok {
		days = weekdayShort["en"]
	}

	lines := []string{label("menu_header", lang), ""}
	for _, r := range recipes {
		day := days[int(r.PlannedDate.Weekday())]
		timeInfo := ""
		if total := r.PrepTimeMinutes + r.CookTimeMinutes; total > 0 {
			timeInfo = fmt.Sprintf(" (%d min)", total)
		}
		lines = append(lines,
			fmt.Sprintf("%s %s — %s%s", day, r.PlannedDate.Format("02 Jan"), r.Name, timeInfo),
			"  "+r.Description,
			"")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// FormatPantryCheck renders the staples question for the parent. Returns ""
// when the plan has no pantry or spice items to ask about, in which case the
// pantry phase is skipped entirely.
func FormatPantryCheck(ingredients []domain.Ingredient, lang string) string {
	var items []domain.Ingredient
	for _, ing := range ingredients {
		if (ing.Category == "pantry" || ing.Category == "spice") && !ing.Optional {
			items = append(items, ing)
		}
	}
	if len(items) == 0 {
		return ""
	}

	lines := []string{label("pantry_question", lang), ""}
	for _, ing := range items {
		line := "- " + ing.Name
		if ing.Quantity > 0 {
			line += fmt.Sprintf(" %.0f %s", ing.Quantity, ing.Unit)
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	lines = append(lines, "", label("pantry_footer", lang))
	return strings.Join(lines, "\n")
}

// FormatIngredientList renders the full merged shopping list grouped by
// category.
func FormatIngredientList(recipes []domain.Recipe, lang string) string {
	merged := domain.MergeIngredients(domain.AllIngredients(recipes))

	byCategory := make(map[string][]domain.Ingredient)
	for _, ing := range merged {
		byCategory[ing.Category] = append(byCategory[ing.Category], ing)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	lines := []string{label("shopping_list", lang), ""}
	for _, category := range categories {
		items := byCategory[category]
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		lines = append(lines, "["+category+"]")
		for _, ing := range items {
			line := "  " + ing.Name
			if ing.Quantity > 0 {
				line += fmt.Sprintf(" %.0f%s", ing.Quantity, ing.Unit)
			}
			lines = append(lines, line)
		}
		lines = append(lines, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// FormatCartReport renders the cart-fill outcome manifest, including every
// item that could not be added.
func FormatCartReport(report *domain.CartReport, lang string) string {
	var lines []string

	if len(report.Added) > 0 {
		lines = append(lines, fmt.Sprintf(label("cart_added", lang), len(report.Added)))
	}
	if len(report.NotFound) > 0 {
		lines = append(lines, "", label("cart_not_found", lang))
		for _, item := range report.NotFound {
			lines = append(lines, fmt.Sprintf("- %s (%s)", item.Ingredient.Name, item.Note))
		}
	}
	if len(report.Errors) > 0 {
		lines = append(lines, "", label("cart_errors", lang))
		for _, item := range report.Errors {
			lines = append(lines, fmt.Sprintf("- %s: %s", item.Ingredient.Name, item.Note))
		}
	}
	lines = append(lines, "", label("cart_footer", lang))
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type planJSON struct {
	Plan []planEntryJSON `json:"plan"`
}

type planEntryJSON struct {
	Date   string     `json:"date"`
	Recipe recipeJSON `json:"recipe"`
}

type recipeJSON struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Servings        int              `json:"servings"`
	PrepTimeMinutes int              `json:"prep_time_minutes"`
	CookTimeMinutes int              `json:"cook_time_minutes"`
	Cuisine         string           `json:"cuisine"`
	Tags            []string         `json:"tags"`
	Ingredients     []ingredientJSON `json:"ingredients"`
	Instructions    string           `json:"instructions"`
}

type ingredientJSON struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Category string  `json:"category"`
}

// formatPlanJSON renders the current plan as JSON so the model can revise it
// in place.
func formatPlanJSON(recipes []domain.Recipe) (string, error) {
	payload := planJSON{}
	for _, r := range recipes {
		entry := planEntryJSON{
			Date: r.PlannedDate.Format("2006-01-02"),
			Recipe: recipeJSON{
				Name:            r.Name,
				Description:     r.Description,
				Servings:        r.Servings,
				PrepTimeMinutes: r.PrepTimeMinutes,
				CookTimeMinutes: r.CookTimeMinutes,
				Cuisine:         r.Cuisine,
				Tags:            r.Tags,
				Instructions:    r.Instructions,
			},
		}
		for _, ing := range r.Ingredients {
			entry.Recipe.Ingredients = append(entry.Recipe.Ingredients, ingredientJSON{
				Name: ing.Name, Quantity: ing.Quantity, Unit: ing.Unit, Category: ing.Category,
			})
		}
		payload.Plan = append(payload.Plan, entry)
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal current plan: %w", err)
	}
	return string(out), nil
}
