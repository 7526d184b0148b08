package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/llm"
)

// MatchPantry fuzzy-matches a parent's free-text pantry reply against the
// ingredient list and returns the matched ingredient names exactly as they
// appear in the list.
func (p *MealPlanner) MatchPantry(ctx context.Context, message string, ingredients []domain.Ingredient) ([]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, ing := range ingredients {
		if !seen[ing.Name] {
			seen[ing.Name] = true
			names = append(names, ing.Name)
		}
	}
	sort.Strings(names)

	var list strings.Builder
	for _, name := range names {
		fmt.Fprintf(&list, "- %s\n", name)
	}

	out, err := p.completer.Complete(ctx, llm.Request{
		Model:     p.models.Extraction,
		Messages:  []llm.Message{{Role: "user", Content: fmt.Sprintf(pantryMatchPrompt, message, list.String())}},
		MaxTokens: 300,
	})
	if err != nil {
		return nil, fmt.Errorf("match pantry items: %w", err)
	}

	var matched []string
	if err := llm.UnmarshalResponse(out, &matched); err != nil {
		return nil, err
	}
	return matched, nil
}
