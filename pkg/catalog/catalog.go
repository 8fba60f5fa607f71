package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog holds the current hierarchy config and resolves selections into
// ordered combination lists. It is safe for concurrent use; Reload swaps the
// config atomically under the lock.
type Catalog struct {
	mu  sync.RWMutex
	cfg *Config
}

// New creates a catalog over an already-validated config.
func New(cfg *Config) *Catalog {
	return &Catalog{cfg: cfg}
}

// Reload replaces the current config.
func (c *Catalog) Reload(cfg *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Config returns the current config.
func (c *Catalog) Config() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Categories returns all category IDs in declaration order.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return orderedIDs(c.cfg.CategoryOrder, c.cfg.Categories)
}

// Products returns the product IDs of a category in declaration order.
func (c *Catalog) Products(category string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cat, ok := c.cfg.Categories[category]
	if !ok {
		return nil, fmt.Errorf("unknown category: %s", category)
	}
	return orderedIDs(cat.ProductOrder, cat.Products), nil
}

// Plans returns the plan IDs of a product in declaration order.
func (c *Catalog) Plans(category, productID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cat, ok := c.cfg.Categories[category]
	if !ok {
		return nil, fmt.Errorf("unknown category: %s", category)
	}
	prod, ok := cat.Products[productID]
	if !ok {
		return nil, fmt.Errorf("unknown product %s in category %s", productID, category)
	}
	return orderedIDs(prod.PlanOrder, prod.Plans), nil
}

// Resolve expands a selection into the ordered list of combinations to run.
// Categories, products, and plans are each walked depth-first in the order
// the config declares them. An unknown category, product, or plan is an
// error, as is a selection resolving to zero combinations.
func (c *Catalog) Resolve(sel Selection) ([]Combination, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var categories []string
	if sel.Category != "" {
		if _, ok := c.cfg.Categories[sel.Category]; !ok {
			return nil, fmt.Errorf("unknown category: %s", sel.Category)
		}
		categories = []string{sel.Category}
	} else {
		categories = orderedIDs(c.cfg.CategoryOrder, c.cfg.Categories)
	}

	var combos []Combination
	for _, catID := range categories {
		cat := c.cfg.Categories[catID]

		var products []string
		if sel.ProductID != "" {
			if _, ok := cat.Products[sel.ProductID]; !ok {
				return nil, fmt.Errorf("unknown product %s in category %s", sel.ProductID, catID)
			}
			products = []string{sel.ProductID}
		} else {
			products = orderedIDs(cat.ProductOrder, cat.Products)
		}

		for _, prodID := range products {
			prod := cat.Products[prodID]

			var plans []string
			if sel.PlanID != "" {
				if _, ok := prod.Plans[sel.PlanID]; !ok {
					return nil, fmt.Errorf("unknown plan %s in product %s/%s", sel.PlanID, catID, prodID)
				}
				plans = []string{sel.PlanID}
			} else {
				plans = orderedIDs(prod.PlanOrder, prod.Plans)
			}

			for _, planID := range plans {
				combos = append(combos, Combination{
					Category:  catID,
					ProductID: prodID,
					PlanID:    planID,
				})
			}
		}
	}

	if len(combos) == 0 {
		return nil, fmt.Errorf("selection resolved to zero combinations")
	}

	return combos, nil
}

// orderedIDs returns the recorded declaration order when it covers the map,
// falling back to sorted IDs for configs assembled in code.
func orderedIDs[T any](order []string, m map[string]T) []string {
	if len(order) == len(m) {
		return append([]string(nil), order...)
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
