package explore

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrEmptyCatalog is returned when a catalog is built with no templates.
var ErrEmptyCatalog = errors.New("action catalog is empty")

// DefaultItems are the inventory items the default catalog targets.
var DefaultItems = []string{"widgets", "gadgets", "doodads"}

// DefaultModes are the operational modes the default catalog toggles between.
var DefaultModes = []string{"normal", "maintenance", "slow"}

// Catalog is the legal action space: an ordered, immutable set of templates
// with unique names.
type Catalog struct {
	templates []ActionTemplate
	byName    map[string]ActionTemplate
}

// NewCatalog creates a Catalog. Order is preserved and is the order returned
// by Templates.
func NewCatalog(templates ...ActionTemplate) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		templates: make([]ActionTemplate, 0, len(templates)),
		byName:    make(map[string]ActionTemplate, len(templates)),
	}
	for _, t := range templates {
		if t == nil {
			return nil, fmt.Errorf("nil template at index %d", len(c.templates))
		}
		if _, dup := c.byName[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate action name %q; each template name must be unique", t.Name())
		}
		c.byName[t.Name()] = t
		c.templates = append(c.templates, t)
	}
	return c, nil
}

// NewCatalogFromSpecs builds a catalog from declarative template specs.
func NewCatalogFromSpecs(specs []TemplateSpec) (*Catalog, error) {
	templates := make([]ActionTemplate, 0, len(specs))
	for _, spec := range specs {
		t, err := NewTemplate(spec)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return NewCatalog(templates...)
}

// DefaultTemplateSpecs returns the inventory-store action space: reset,
// restock, drain, purchase and mode toggle.
func DefaultTemplateSpecs() []TemplateSpec {
	return []TemplateSpec{
		{Kind: KindReset, Name: "reset", Path: "/reset"},
		{Kind: KindRestock, Name: "restock", Path: "/inventory", Items: DefaultItems, MinQuantity: 1, MaxQuantity: 5},
		{Kind: KindDrain, Name: "drain_inventory", Path: "/inventory", Items: DefaultItems, MinQuantity: 1, MaxQuantity: 3},
		{Kind: KindPurchase, Name: "purchase", Path: "/purchase", Items: DefaultItems, MinQuantity: 1, MaxQuantity: 6,
			ExpediteProbability: 0.4},
		{Kind: KindModeToggle, Name: "toggle_mode", Path: "/mode", Modes: DefaultModes},
	}
}

// DefaultCatalog returns the catalog built from DefaultTemplateSpecs.
func DefaultCatalog() *Catalog {
	c, err := NewCatalogFromSpecs(DefaultTemplateSpecs())
	if err != nil {
		panic(fmt.Sprintf("default catalog is invalid: %v", err))
	}
	return c
}

// Templates returns the templates in catalog order. The slice is a copy.
func (c *Catalog) Templates() []ActionTemplate {
	out := make([]ActionTemplate, len(c.templates))
	copy(out, c.templates)
	return out
}

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.templates) }

// Names returns template names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.templates))
	for i, t := range c.templates {
		names[i] = t.Name()
	}
	return names
}

// Lookup returns the template with the given name.
func (c *Catalog) Lookup(name string) (ActionTemplate, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Sample picks a template uniformly at random and samples it.
func (c *Catalog) Sample(rng *rand.Rand) ActionInstance {
	t := c.templates[rng.Intn(len(c.templates))]
	return Instantiate(t, rng)
}

// ResetAction returns the canonical reset instance used at the start of
// every episode and replay.
func ResetAction() ActionInstance {
	return ActionInstance{Name: "reset", Method: "POST", Path: "/reset", JSON: Params{}}
}
