package domain

// CartItem is the outcome of matching and adding one merged ingredient.
type CartItem struct {
	Ingredient  Ingredient
	ProductID   string
	ProductName string
	Count       int
	Note        string
}

// CartReport is the per-item outcome manifest of a cart-fill run. Individual
// failures are collected here rather than failing the run as a whole.
type CartReport struct {
	Added    []CartItem
	NotFound []CartItem
	Skipped  []CartItem
	Errors   []CartItem
}

// Total returns the number of ingredients the run considered.
func (r *CartReport) Total() int {
	return len(r.Added) + len(r.NotFound) + len(r.Skipped) + len(r.Errors)
}

// Failed returns the number of ingredients that could not be added.
func (r *CartReport) Failed() int {
	return len(r.NotFound) + len(r.Errors)
}
