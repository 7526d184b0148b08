package picnic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/llm"
)

// Searcher is the storefront surface the cart filler needs. Satisfied by
// *Client; tests provide fakes.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Product, error)
	AddProduct(ctx context.Context, productID string, count int) error
}

// Completer mirrors planner.Completer for the matching model calls.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// CartFiller matches merged recipe ingredients to Picnic products and adds
// them to the cart. Per-item failures never fail the run: every ingredient
// lands in exactly one bucket of the returned report.
type CartFiller struct {
	store     Searcher
	completer Completer
	model     string

	mu    sync.Mutex
	cache map[string]productMatch // successful matches by normalized name
}

// NewCartFiller creates a filler using the extraction model for matching.
func NewCartFiller(store Searcher, completer Completer, model string) *CartFiller {
	return &CartFiller{
		store:     store,
		completer: completer,
		model:     model,
		cache:     make(map[string]productMatch),
	}
}

type productMatch struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Count       int     `json:"count"`
	Confidence  float64 `json:"confidence"`
	Note        string  `json:"note"`
}

// Fill merges the ingredient list and adds everything not already available
// to the cart. The returned report always covers every merged ingredient.
func (f *CartFiller) Fill(ctx context.Context, ingredients []domain.Ingredient) *domain.CartReport {
	report := &domain.CartReport{}
	merged := domain.MergeIngredients(ingredients)

	for _, ing := range merged {
		if ing.AlreadyAvailable {
			ing.SearchStatus = domain.SearchSkipped
			report.Skipped = append(report.Skipped, domain.CartItem{Ingredient: ing})
			continue
		}

		match, err := f.searchAndMatch(ctx, ing)
		if err != nil {
			ing.SearchStatus = domain.SearchNotFound
			report.Errors = append(report.Errors, domain.CartItem{Ingredient: ing, Note: err.Error()})
			continue
		}
		if match == nil || match.ProductID == "" || match.Confidence <= 0.5 {
			ing.SearchStatus = domain.SearchNotFound
			note := "no results"
			if match != nil && match.Note != "" {
				note = match.Note
			}
			report.NotFound = append(report.NotFound, domain.CartItem{Ingredient: ing, Note: note})
			continue
		}

		count := match.Count
		if count < 1 {
			count = 1
		}
		if err := f.store.AddProduct(ctx, match.ProductID, count); err != nil {
			ing.SearchStatus = domain.SearchNotFound
			report.Errors = append(report.Errors, domain.CartItem{Ingredient: ing, Note: err.Error()})
			continue
		}

		ing.ProductID = match.ProductID
		ing.ProductName = match.ProductName
		ing.AddedToCart = true
		ing.SearchStatus = domain.SearchFound
		report.Added = append(report.Added, domain.CartItem{
			Ingredient:  ing,
			ProductID:   match.ProductID,
			ProductName: match.ProductName,
			Count:       count,
			Note:        match.Note,
		})
	}

	slog.Info("cart fill complete",
		"added", len(report.Added),
		"not_found", len(report.NotFound),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors))
	return report
}

func (f *CartFiller) searchAndMatch(ctx context.Context, ing domain.Ingredient) (*productMatch, error) {
	key := strings.ToLower(strings.TrimSpace(ing.Name))

	f.mu.Lock()
	cached, hit := f.cache[key]
	f.mu.Unlock()
	if hit {
		slog.Debug("product match cache hit", "ingredient", ing.Name)
		return &cached, nil
	}

	terms := f.searchTerms(ctx, ing)

	var results []Product
	seen := make(map[string]bool)
	for _, term := range terms {
		found, err := f.store.Search(ctx, term)
		if err != nil {
			slog.Warn("product search failed", "term", term, "error", err)
			continue
		}
		for _, p := range found {
			if !seen[p.ID] {
				seen[p.ID] = true
				results = append(results, p)
			}
		}
		if len(results) > 0 {
			break
		}
	}
	if len(results) == 0 {
		return nil, nil
	}
	if len(results) > 15 {
		results = results[:15]
	}

	match, err := f.selectBest(ctx, ing, results)
	if err != nil {
		return nil, err
	}
	if match != nil && match.ProductID != "" {
		f.mu.Lock()
		f.cache[key] = *match
		f.mu.Unlock()
	}
	return match, nil
}

// searchTerms asks the model for Dutch shelf-name search terms, falling back
// to the raw ingredient name.
func (f *CartFiller) searchTerms(ctx context.Context, ing domain.Ingredient) []string {
	out, err := f.completer.Complete(ctx, llm.Request{
		Model: f.model,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf(searchTermsPrompt, ing.Name, ing.Quantity, ing.Unit, ing.Category),
		}},
		MaxTokens: 200,
	})
	if err != nil {
		slog.Warn("could not generate search terms", "ingredient", ing.Name, "error", err)
		return []string{ing.Name}
	}

	var terms []string
	if err := llm.UnmarshalResponse(out, &terms); err != nil || len(terms) == 0 {
		return []string{ing.Name}
	}
	if len(terms) > 3 {
		terms = terms[:3]
	}
	return terms
}

func (f *CartFiller) selectBest(ctx context.Context, ing domain.Ingredient, products []Product) (*productMatch, error) {
	var list strings.Builder
	for _, p := range products {
		fmt.Fprintf(&list, "- ID: %s, Name: %s, Quantity: %s, Price: EUR %.2f\n",
			p.ID, p.Name, p.UnitQuantity, float64(p.DisplayPrice)/100)
	}

	out, err := f.completer.Complete(ctx, llm.Request{
		Model: f.model,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf(selectProductPrompt, ing.Quantity, ing.Unit, ing.Name, list.String()),
		}},
		MaxTokens: 300,
	})
	if err != nil {
		return nil, fmt.Errorf("select product for %q: %w", ing.Name, err)
	}

	var match productMatch
	if err := llm.UnmarshalResponse(out, &match); err != nil {
		return nil, fmt.Errorf("select product for %q: %w", ing.Name, err)
	}
	return &match, nil
}
