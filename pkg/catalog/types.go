package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the root of the product hierarchy configuration. Combinations
// resolve in the order the file declares them, so each level records its
// declaration order alongside the keyed definitions.
type Config struct {
	// Categories maps category IDs (e.g. "MV4") to their definitions.
	Categories map[string]Category `yaml:"categories" json:"categories" validate:"required,min=1,dive"`

	// CategoryOrder lists category IDs in declaration order.
	CategoryOrder []string `yaml:"-" json:"-"`

	// FailureRules are optional simulated-failure rules evaluated per step.
	FailureRules []FailureRule `yaml:"failure_rules,omitempty" json:"failure_rules,omitempty" validate:"dive"`
}

// UnmarshalYAML decodes the config and records category declaration order.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type plain Config
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Config(p)
	c.CategoryOrder = mappingKeys(node, "categories")
	return nil
}

// Category is one insurance product category.
type Category struct {
	// Name is the human-readable category name.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Products maps product IDs (e.g. "TOKIO_MARINE") to their definitions.
	Products map[string]Product `yaml:"products" json:"products" validate:"required,min=1,dive"`

	// ProductOrder lists product IDs in declaration order.
	ProductOrder []string `yaml:"-" json:"-"`
}

// UnmarshalYAML decodes the category and records product declaration order.
func (c *Category) UnmarshalYAML(node *yaml.Node) error {
	type plain Category
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Category(p)
	c.ProductOrder = mappingKeys(node, "products")
	return nil
}

// Product is one insurer product within a category.
type Product struct {
	// Name is the human-readable product name.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Plans maps plan IDs (e.g. "COMPREHENSIVE") to their definitions.
	Plans map[string]Plan `yaml:"plans" json:"plans" validate:"required,min=1,dive"`

	// PlanOrder lists plan IDs in declaration order.
	PlanOrder []string `yaml:"-" json:"-"`
}

// UnmarshalYAML decodes the product and records plan declaration order.
func (p *Product) UnmarshalYAML(node *yaml.Node) error {
	type plain Product
	var pl plain
	if err := node.Decode(&pl); err != nil {
		return err
	}
	*p = Product(pl)
	p.PlanOrder = mappingKeys(node, "plans")
	return nil
}

// Plan is one purchasable plan within a product.
type Plan struct {
	// Name is the human-readable plan name.
	Name string `yaml:"name" json:"name" validate:"required"`
}

// mappingKeys returns the keys of the mapping stored under key in node, in
// document order.
func mappingKeys(node *yaml.Node, key string) []string {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != key {
			continue
		}
		value := node.Content[i+1]
		if value.Kind != yaml.MappingNode {
			return nil
		}
		keys := make([]string, 0, len(value.Content)/2)
		for j := 0; j+1 < len(value.Content); j += 2 {
			keys = append(keys, value.Content[j].Value)
		}
		return keys
	}
	return nil
}

// FailureRule declares a simulated failure for matching step invocations.
// The When expression is evaluated against category, product_id, plan_id,
// step, and environment.
type FailureRule struct {
	// When is an expression selecting the invocations to fail.
	When string `yaml:"when" json:"when" validate:"required"`

	// StatusCode is the simulated HTTP status code (default 500).
	StatusCode int `yaml:"status_code,omitempty" json:"status_code,omitempty"`

	// Message is the simulated error message.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Combination is one Category/Product/Plan triple drawn from the hierarchy.
type Combination struct {
	Category  string `json:"category"`
	ProductID string `json:"product_id"`
	PlanID    string `json:"plan_id"`
}

// String returns the canonical "category/product/plan" form.
func (c Combination) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Category, c.ProductID, c.PlanID)
}

// Selection narrows the hierarchy to a subset of combinations. Empty fields
// match everything at that level; a non-empty PlanID requires ProductID, and
// a non-empty ProductID requires Category.
type Selection struct {
	Category  string `json:"category,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	PlanID    string `json:"plan_id,omitempty"`
}

// Validate checks the selection is internally consistent.
func (s Selection) Validate() error {
	if s.ProductID != "" && s.Category == "" {
		return fmt.Errorf("selection with product_id %q requires a category", s.ProductID)
	}
	if s.PlanID != "" && s.ProductID == "" {
		return fmt.Errorf("selection with plan_id %q requires a product_id", s.PlanID)
	}
	return nil
}
