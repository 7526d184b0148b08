package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/llm"
	"github.com/ashureev/nibbl/internal/store"
)

// PreferenceEngine is the preference ledger: it extracts free-text food
// signals from every inbound message, deduplicates them against stored
// preferences, and accumulates confidence. It runs for every message whether
// or not a session is active, and never fails the caller: extraction errors
// are logged and swallowed.
type PreferenceEngine struct {
	completer Completer
	model     string
	repo      store.Repository
}

// NewPreferenceEngine creates the ledger over the extraction model.
func NewPreferenceEngine(completer Completer, model string, repo store.Repository) *PreferenceEngine {
	return &PreferenceEngine{completer: completer, model: model, repo: repo}
}

type extractionPayload struct {
	Preferences []struct {
		Category   string  `json:"category"`
		Detail     string  `json:"detail"`
		Confidence float64 `json:"confidence"`
	} `json:"preferences"`
	SpecificWishes []string `json:"specific_wishes"`
	HasFoodContent bool     `json:"has_food_content"`
}

// Observe extracts preferences from one message and persists them, merging
// into existing rows where the new detail and a stored detail are substrings
// of one another within the same category. Returns the stored or updated
// preferences and any concrete wishes for the current week.
func (e *PreferenceEngine) Observe(ctx context.Context, member *domain.Member, text string) ([]*domain.Preference, []string) {
	existing, err := e.repo.GetPreferences(ctx, member.ID)
	if err != nil {
		slog.Error("could not load preferences", "member", member.Name, "error", err)
		return nil, nil
	}

	prompt := fmt.Sprintf(preferenceExtractionPrompt,
		member.Name, member.Role, text, formatPreferences(existing))

	out, err := e.completer.Complete(ctx, llm.Request{
		Model:     e.model,
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens: 512,
	})
	if err != nil {
		slog.Error("preference extraction failed", "member", member.Name, "error", err)
		return nil, nil
	}

	var payload extractionPayload
	if err := llm.UnmarshalResponse(out, &payload); err != nil {
		slog.Error("preference extraction returned bad JSON", "member", member.Name, "error", err)
		return nil, nil
	}
	if !payload.HasFoodContent {
		return nil, nil
	}

	var results []*domain.Preference
	for _, p := range payload.Preferences {
		category := domain.PreferenceCategory(p.Category)
		if !domain.ValidCategory(category) {
			category = domain.CategoryGeneral
		}

		if match := findMatching(existing, category, p.Detail); match != nil {
			newConf := domain.Reconfirm(match.Confidence)
			if err := e.repo.UpdatePreferenceConfidence(ctx, match.ID, newConf); err != nil {
				slog.Error("could not update preference", "id", match.ID, "error", err)
				continue
			}
			match.Confidence = newConf
			results = append(results, match)
			continue
		}

		confidence := p.Confidence
		if confidence <= 0 {
			confidence = 0.5
		}
		pref := &domain.Preference{
			MemberID:      member.ID,
			Category:      category,
			Detail:        p.Detail,
			Confidence:    confidence,
			Source:        "conversation",
			ExtractedFrom: truncate(text, 200),
		}
		id, err := e.repo.AddPreference(ctx, pref)
		if err != nil {
			slog.Error("could not store preference", "member", member.Name, "error", err)
			continue
		}
		pref.ID = id
		results = append(results, pref)
		existing = append(existing, pref) // dedupe within the same extraction
	}

	if len(results) > 0 || len(payload.SpecificWishes) > 0 {
		slog.Info("observed preferences",
			"member", member.Name,
			"preferences", len(results),
			"wishes", len(payload.SpecificWishes))
	}
	return results, payload.SpecificWishes
}

// Snapshot returns all members' preferences formatted for plan generation,
// ordered by confidence within each member.
func (e *PreferenceEngine) Snapshot(ctx context.Context, members []*domain.Member) string {
	var sections []string
	for _, m := range members {
		prefs, err := e.repo.GetPreferences(ctx, m.ID)
		if err != nil {
			slog.Error("could not load preferences for snapshot", "member", m.Name, "error", err)
			continue
		}
		body := "No known preferences."
		if len(prefs) > 0 {
			body = formatPreferences(prefs)
		}
		sections = append(sections, fmt.Sprintf("### %s (%s)\n%s", m.Name, m.Role, body))
	}
	return strings.Join(sections, "\n\n")
}

// findMatching locates an existing preference whose detail contains or is
// contained by the new detail, within the same category. Comparison is
// case-insensitive and whitespace-normalized.
func findMatching(existing []*domain.Preference, category domain.PreferenceCategory, detail string) *domain.Preference {
	needle := normalize(detail)
	for _, p := range existing {
		if p.Category != category {
			continue
		}
		stored := normalize(p.Detail)
		if strings.Contains(stored, needle) || strings.Contains(needle, stored) {
			return p
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func formatPreferences(prefs []*domain.Preference) string {
	if len(prefs) == 0 {
		return "None yet."
	}
	var lines []string
	for _, p := range prefs {
		line := fmt.Sprintf("- %s: %s", p.Category, p.Detail)
		if p.Confidence < 1.0 {
			line += fmt.Sprintf(" [%.0f%%]", p.Confidence*100)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
