// Package export writes approved meal plans and recipes as
// Obsidian-compatible markdown files.
package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/nibbl/internal/config"
	"github.com/ashureev/nibbl/internal/domain"
)

var dayNames = map[string][7]string{
	"nl": {"Zo", "Ma", "Di", "Wo", "Do", "Vr", "Za"},
	"en": {"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
}

const indexContent = `# Nibbl

## Recent Meal Plans

` + "```dataview" + `
TABLE date_start AS "Start", date_end AS "End"
FROM "meal-plans"
SORT date_start DESC
LIMIT 10
` + "```" + `

## All Recipes

` + "```dataview" + `
TABLE cuisine, total_time AS "Time (min)", servings
FROM "recipes"
SORT file.name ASC
` + "```" + `

## Quick Meals (< 30 min)

` + "```dataview" + `
TABLE cuisine, total_time AS "Time (min)"
FROM "recipes"
WHERE total_time < 30
SORT file.name ASC
` + "```" + `

## By Cuisine

` + "```dataview" + `
TABLE length(rows) AS "Count"
FROM "recipes"
GROUP BY cuisine
SORT rows.cuisine ASC
` + "```" + `
`

// MarkdownExporter writes one file per recipe plus a plan overview with
// wikilinks, and seeds an index.md with Dataview queries.
type MarkdownExporter struct {
	root      string
	recipeDir string
	planDir   string
	lang      string
}

func NewMarkdownExporter(cfg config.ExportConfig, lang string) *MarkdownExporter {
	root := expandHome(cfg.Dir)
	return &MarkdownExporter{
		root:      root,
		recipeDir: filepath.Join(root, "recipes"),
		planDir:   filepath.Join(root, "meal-plans"),
		lang:      lang,
	}
}

// ExportSession writes every recipe and the plan overview for a session.
// Existing recipe files are left alone so hand edits survive re-export.
func (e *MarkdownExporter) ExportSession(recipes []domain.Recipe, session *domain.Session) error {
	for _, dir := range []string{e.recipeDir, e.planDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	for _, recipe := range recipes {
		if err := e.exportRecipe(recipe); err != nil {
			return err
		}
	}

	if err := e.exportPlan(recipes, session); err != nil {
		return err
	}
	if err := e.ensureIndex(); err != nil {
		return err
	}

	slog.Info("exported meal plan", "recipes", len(recipes), "dir", e.root)
	return nil
}

func (e *MarkdownExporter) exportRecipe(recipe domain.Recipe) error {
	path := filepath.Join(e.recipeDir, sanitizeFilename(recipe.Name)+".md")
	if _, err := os.Stat(path); err == nil {
		slog.Debug("recipe file exists, skipping", "recipe", recipe.Name)
		return nil
	}

	if err := os.WriteFile(path, []byte(e.renderRecipe(recipe)), 0o644); err != nil {
		return fmt.Errorf("write recipe %q: %w", recipe.Name, err)
	}
	return nil
}

func (e *MarkdownExporter) exportPlan(recipes []domain.Recipe, session *domain.Session) error {
	if len(recipes) == 0 {
		return nil
	}

	start := session.PlanStartDate
	if start.IsZero() {
		start = recipes[0].PlannedDate
	}
	path := filepath.Join(e.planDir, start.Format("2006-01-02")+" - Meal Plan.md")

	if err := os.WriteFile(path, []byte(e.renderPlan(recipes, session)), 0o644); err != nil {
		return fmt.Errorf("write meal plan: %w", err)
	}
	return nil
}

func (e *MarkdownExporter) ensureIndex() error {
	path := filepath.Join(e.root, "index.md")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(indexContent), 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func (e *MarkdownExporter) renderRecipe(recipe domain.Recipe) string {
	total := recipe.PrepTimeMinutes + recipe.CookTimeMinutes

	tags := []string{}
	if recipe.Cuisine != "" {
		tags = append(tags, recipe.Cuisine)
	}
	for _, tag := range recipe.Tags {
		if !contains(tags, tag) {
			tags = append(tags, tag)
		}
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "cuisine: %q\n", recipe.Cuisine)
	b.WriteString("tags:\n")
	if len(tags) == 0 {
		b.WriteString("  []\n")
	}
	for _, tag := range tags {
		fmt.Fprintf(&b, "  - %s\n", tag)
	}
	fmt.Fprintf(&b, "servings: %d\n", recipe.Servings)
	fmt.Fprintf(&b, "prep_time: %d\n", recipe.PrepTimeMinutes)
	fmt.Fprintf(&b, "cook_time: %d\n", recipe.CookTimeMinutes)
	fmt.Fprintf(&b, "total_time: %d\n", total)
	fmt.Fprintf(&b, "date_planned: %s\n", recipe.PlannedDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "date_created: %s\n", time.Now().Format("2006-01-02"))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n%s\n\n## Ingredients\n\n", recipe.Name, recipe.Description)

	for _, ing := range domain.MergeIngredients(recipe.Ingredients) {
		if qty := formatQty(ing.Quantity, ing.Unit); qty != "" {
			fmt.Fprintf(&b, "- %s %s\n", qty, ing.Name)
		} else {
			fmt.Fprintf(&b, "- %s\n", ing.Name)
		}
	}

	fmt.Fprintf(&b, "\n## Instructions\n\n%s\n", recipe.Instructions)
	return b.String()
}

func (e *MarkdownExporter) renderPlan(recipes []domain.Recipe, session *domain.Session) string {
	days, ok := dayNames[e.lang]
	if !ok {
		days = dayNames["en"]
	}

	start := session.PlanStartDate
	if start.IsZero() {
		start = recipes[0].PlannedDate
	}
	end := session.PlanEndDate
	if end.IsZero() {
		end = recipes[len(recipes)-1].PlannedDate
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "date_start: %s\n", start.Format("2006-01-02"))
	fmt.Fprintf(&b, "date_end: %s\n", end.Format("2006-01-02"))
	fmt.Fprintf(&b, "date_created: %s\n", time.Now().Format("2006-01-02"))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# Meal Plan: %s - %s\n\n", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
	b.WriteString("| Day | Date | Meal | Time |\n|-----|------|------|------|\n")

	for _, recipe := range recipes {
		total := recipe.PrepTimeMinutes + recipe.CookTimeMinutes
		fmt.Fprintf(&b, "| %s | %s | [[%s]] | %d min |\n",
			days[recipe.PlannedDate.Weekday()], recipe.PlannedDate.Format("Jan 02"),
			recipe.Name, total)
	}

	b.WriteString("\n## Details\n\n")
	for _, recipe := range recipes {
		fmt.Fprintf(&b, "### %s %s - [[%s]]\n%s\n\n",
			days[recipe.PlannedDate.Weekday()], recipe.PlannedDate.Format("Jan 02"),
			recipe.Name, recipe.Description)
	}

	return b.String()
}

var unsafeFilename = regexp.MustCompile(`[\\/:*?"<>|]`)
var squashSpaces = regexp.MustCompile(`[-\s]+`)

func sanitizeFilename(name string) string {
	cleaned := unsafeFilename.ReplaceAllString(name, "-")
	cleaned = squashSpaces.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(strings.TrimSpace(cleaned), ".")
	if len(cleaned) > 200 {
		cleaned = cleaned[:200]
	}
	return cleaned
}

// formatQty renders "500g" for metric units that attach to the number and
// "2 el" for everything else.
func formatQty(quantity float64, unit string) string {
	if quantity == 0 {
		return unit
	}
	var q string
	if quantity == float64(int64(quantity)) {
		q = fmt.Sprintf("%d", int64(quantity))
	} else {
		q = fmt.Sprintf("%.1f", quantity)
	}
	if unit == "" {
		return q
	}
	switch unit {
	case "g", "ml", "kg", "l", "cl", "dl":
		return q + unit
	}
	return q + " " + unit
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
