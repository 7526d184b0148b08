package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/nibbl/internal/config"
	"github.com/ashureev/nibbl/internal/domain"
)

func testRecipes() []domain.Recipe {
	return []domain.Recipe{
		{
			ID:              "r1",
			Name:            "Zalm teriyaki",
			Description:     "Zalm met rijst",
			PlannedDate:     time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
			Servings:        4,
			PrepTimeMinutes: 10,
			CookTimeMinutes: 20,
			Cuisine:         "japans",
			Tags:            []string{"vis", "japans"},
			Ingredients: []domain.Ingredient{
				{Name: "zalmfilet", Quantity: 400, Unit: "g", Category: "fish"},
				{Name: "sojasaus", Quantity: 2, Unit: "el", Category: "pantry"},
			},
			Instructions: "Bak de zalm.",
		},
		{
			ID:          "r2",
			Name:        "Kip pilav",
			Description: "Rijst met kip",
			PlannedDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			Servings:    4,
			Cuisine:     "turks",
		},
	}
}

func TestExportSession(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := NewMarkdownExporter(config.ExportConfig{Enabled: true, Dir: dir}, "nl")

	session := domain.NewSession("")
	session.PlanStartDate = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	session.PlanEndDate = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	if err := e.ExportSession(testRecipes(), session); err != nil {
		t.Fatalf("export: %v", err)
	}

	recipe, err := os.ReadFile(filepath.Join(dir, "recipes", "Zalm teriyaki.md"))
	if err != nil {
		t.Fatalf("read recipe file: %v", err)
	}
	content := string(recipe)
	for _, want := range []string{
		"cuisine: \"japans\"",
		"total_time: 30",
		"date_planned: 2026-08-31",
		"# Zalm teriyaki",
		"- 400g zalmfilet",
		"- 2 el sojasaus",
		"## Instructions",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("recipe file missing %q:\n%s", want, content)
		}
	}
	// The cuisine already sits in the tag list; it must not repeat.
	if strings.Count(content, "  - japans\n") != 1 {
		t.Errorf("cuisine tag duplicated:\n%s", content)
	}

	plan, err := os.ReadFile(filepath.Join(dir, "meal-plans", "2026-08-31 - Meal Plan.md"))
	if err != nil {
		t.Fatalf("read plan file: %v", err)
	}
	planContent := string(plan)
	for _, want := range []string{
		"date_start: 2026-08-31",
		"# Meal Plan: Aug 31 - Sep 01, 2026",
		"| Ma | Aug 31 | [[Zalm teriyaki]] | 30 min |",
		"| Di | Sep 01 | [[Kip pilav]] | 0 min |",
		"### Ma Aug 31 - [[Zalm teriyaki]]",
	} {
		if !strings.Contains(planContent, want) {
			t.Errorf("plan file missing %q:\n%s", want, planContent)
		}
	}

	index, err := os.ReadFile(filepath.Join(dir, "index.md"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if !strings.Contains(string(index), "```dataview") {
		t.Error("index has no dataview queries")
	}
}

func TestExportSkipsExistingRecipes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := NewMarkdownExporter(config.ExportConfig{Enabled: true, Dir: dir}, "nl")

	recipePath := filepath.Join(dir, "recipes", "Zalm teriyaki.md")
	if err := os.MkdirAll(filepath.Dir(recipePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(recipePath, []byte("hand edited"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := e.ExportSession(testRecipes(), domain.NewSession("")); err != nil {
		t.Fatalf("export: %v", err)
	}

	content, err := os.ReadFile(recipePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "hand edited" {
		t.Error("existing recipe file was overwritten")
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"Zalm teriyaki", "Zalm teriyaki"},
		{"Fish & chips: the sequel?", "Fish & chips the sequel"},
		{"a/b\\c", "a b c"},
		{"  spaced   out  ", "spaced out"},
		{"trailing dots...", "trailing dots"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatQty(t *testing.T) {
	t.Parallel()

	cases := []struct {
		quantity float64
		unit     string
		want     string
	}{
		{400, "g", "400g"},
		{1.5, "l", "1.5l"},
		{2, "el", "2 el"},
		{3, "", "3"},
		{0, "snufje", "snufje"},
	}
	for _, tc := range cases {
		if got := formatQty(tc.quantity, tc.unit); got != tc.want {
			t.Errorf("formatQty(%v, %q) = %q, want %q", tc.quantity, tc.unit, got, tc.want)
		}
	}
}
