package explore

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
)

// Params holds the resolved parameters of an action. It is sent as the JSON
// request body and stored verbatim in episode artifacts.
type Params map[string]any

// ActionInstance is a fully-resolved, replayable unit of interaction with the
// target. Instances are never modified after sampling.
type ActionInstance struct {
	Name   string `json:"name" yaml:"name"`
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path" yaml:"path"`
	JSON   Params `json:"json" yaml:"json"`
}

// Kind tags the variant of an action template.
type Kind string

const (
	KindReset      Kind = "reset"
	KindRestock    Kind = "restock"
	KindDrain      Kind = "drain"
	KindPurchase   Kind = "purchase"
	KindModeToggle Kind = "mode-toggle"
	// KindInspect is a read-only GET probe. Not part of the default catalog.
	KindInspect Kind = "inspect"
)

// validKinds maps template kinds to validity. Unexported to prevent mutation.
var validKinds = map[Kind]bool{
	KindReset:      true,
	KindRestock:    true,
	KindDrain:      true,
	KindPurchase:   true,
	KindModeToggle: true,
	KindInspect:    true,
}

// IsValidKind returns true if k is a recognized template kind.
func IsValidKind(k Kind) bool { return validKinds[k] }

// ActionTemplate is a named, parameterized action. SampleParams must be free
// of side effects and must draw randomness only from rng.
type ActionTemplate interface {
	Name() string
	Method() string
	Path() string
	Kind() Kind
	SampleParams(rng *rand.Rand) Params
	// Spec returns the serializable description the template was built from.
	Spec() TemplateSpec
}

// Instantiate samples t against rng and returns the concrete instance.
func Instantiate(t ActionTemplate, rng *rand.Rand) ActionInstance {
	return ActionInstance{
		Name:   t.Name(),
		Method: t.Method(),
		Path:   t.Path(),
		JSON:   t.SampleParams(rng),
	}
}

// TemplateSpec is the declarative form of every template kind. Fields that a
// kind does not use are ignored.
type TemplateSpec struct {
	Kind                Kind     `yaml:"kind" json:"kind" validate:"required"`
	Name                string   `yaml:"name" json:"name" validate:"required"`
	Method              string   `yaml:"method" json:"method,omitempty"`
	Path                string   `yaml:"path" json:"path" validate:"required,startswith=/"`
	Items               []string `yaml:"items" json:"items,omitempty"`
	MinQuantity         int      `yaml:"min_quantity" json:"min_quantity,omitempty"`
	MaxQuantity         int      `yaml:"max_quantity" json:"max_quantity,omitempty"`
	ExpediteProbability float64  `yaml:"expedite_probability" json:"expedite_probability,omitempty"`
	Modes               []string `yaml:"modes" json:"modes,omitempty"`
}

// endpoint carries the identity shared by all template variants.
type endpoint struct {
	name   string
	method string
	path   string
}

func (e endpoint) Name() string   { return e.name }
func (e endpoint) Method() string { return e.method }
func (e endpoint) Path() string   { return e.path }

// ResetTemplate asks the target to return to its initial state.
type ResetTemplate struct{ endpoint }

func (t ResetTemplate) Kind() Kind { return KindReset }

func (t ResetTemplate) SampleParams(_ *rand.Rand) Params { return Params{} }

func (t ResetTemplate) Spec() TemplateSpec {
	return TemplateSpec{Kind: KindReset, Name: t.name, Method: t.method, Path: t.path}
}

// RestockTemplate adds a positive quantity of one item.
type RestockTemplate struct {
	endpoint
	Items []string
	Min   int
	Max   int
}

func (t RestockTemplate) Kind() Kind { return KindRestock }

func (t RestockTemplate) SampleParams(rng *rand.Rand) Params {
	item := t.Items[rng.Intn(len(t.Items))]
	return Params{"item": item, "quantity": randInt(rng, t.Min, t.Max)}
}

func (t RestockTemplate) Spec() TemplateSpec {
	return TemplateSpec{Kind: KindRestock, Name: t.name, Method: t.method, Path: t.path,
		Items: t.Items, MinQuantity: t.Min, MaxQuantity: t.Max}
}

// DrainTemplate sends a negative restock. The target has no drain operation;
// this probes how it handles quantities at and below zero.
type DrainTemplate struct {
	endpoint
	Items []string
	Min   int
	Max   int
}

func (t DrainTemplate) Kind() Kind { return KindDrain }

func (t DrainTemplate) SampleParams(rng *rand.Rand) Params {
	item := t.Items[rng.Intn(len(t.Items))]
	return Params{"item": item, "quantity": -randInt(rng, t.Min, t.Max)}
}

func (t DrainTemplate) Spec() TemplateSpec {
	return TemplateSpec{Kind: KindDrain, Name: t.name, Method: t.method, Path: t.path,
		Items: t.Items, MinQuantity: t.Min, MaxQuantity: t.Max}
}

// PurchaseTemplate buys a bounded quantity, with expedite drawn independently.
type PurchaseTemplate struct {
	endpoint
	Items               []string
	Min                 int
	Max                 int
	ExpediteProbability float64
}

func (t PurchaseTemplate) Kind() Kind { return KindPurchase }

func (t PurchaseTemplate) SampleParams(rng *rand.Rand) Params {
	item := t.Items[rng.Intn(len(t.Items))]
	qty := randInt(rng, t.Min, t.Max)
	expedite := rng.Float64() < t.ExpediteProbability
	return Params{"item": item, "quantity": qty, "expedite": expedite}
}

func (t PurchaseTemplate) Spec() TemplateSpec {
	return TemplateSpec{Kind: KindPurchase, Name: t.name, Method: t.method, Path: t.path,
		Items: t.Items, MinQuantity: t.Min, MaxQuantity: t.Max, ExpediteProbability: t.ExpediteProbability}
}

// ModeToggleTemplate switches the target into one of a fixed set of modes.
type ModeToggleTemplate struct {
	endpoint
	Modes []string
}

func (t ModeToggleTemplate) Kind() Kind { return KindModeToggle }

func (t ModeToggleTemplate) SampleParams(rng *rand.Rand) Params {
	return Params{"mode": t.Modes[rng.Intn(len(t.Modes))]}
}

func (t ModeToggleTemplate) Spec() TemplateSpec {
	return TemplateSpec{Kind: KindModeToggle, Name: t.name, Method: t.method, Path: t.path, Modes: t.Modes}
}

// InspectTemplate issues a parameterless read.
type InspectTemplate struct{ endpoint }

func (t InspectTemplate) Kind() Kind { return KindInspect }

func (t InspectTemplate) SampleParams(_ *rand.Rand) Params { return Params{} }

func (t InspectTemplate) Spec() TemplateSpec {
	return TemplateSpec{Kind: KindInspect, Name: t.name, Method: t.method, Path: t.path}
}

// randInt returns a uniform integer in [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

// NewTemplate builds the template variant described by spec.
// Method defaults to POST (GET for inspect).
func NewTemplate(spec TemplateSpec) (ActionTemplate, error) {
	if !IsValidKind(spec.Kind) {
		return nil, fmt.Errorf("unknown action kind %q", spec.Kind)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("action of kind %q has no name", spec.Kind)
	}
	if !strings.HasPrefix(spec.Path, "/") {
		return nil, fmt.Errorf("action %q: path must start with /, got %q", spec.Name, spec.Path)
	}
	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = http.MethodPost
		if spec.Kind == KindInspect {
			method = http.MethodGet
		}
	}
	ep := endpoint{name: spec.Name, method: method, path: spec.Path}

	switch spec.Kind {
	case KindReset:
		return ResetTemplate{ep}, nil
	case KindInspect:
		return InspectTemplate{ep}, nil
	case KindModeToggle:
		if len(spec.Modes) == 0 {
			return nil, fmt.Errorf("action %q: modes must not be empty", spec.Name)
		}
		return ModeToggleTemplate{endpoint: ep, Modes: append([]string(nil), spec.Modes...)}, nil
	}

	// Remaining kinds are item/quantity actions.
	if len(spec.Items) == 0 {
		return nil, fmt.Errorf("action %q: items must not be empty", spec.Name)
	}
	if spec.MinQuantity < 1 || spec.MaxQuantity < spec.MinQuantity {
		return nil, fmt.Errorf("action %q: quantity range must satisfy 1 <= min <= max, got [%d, %d]",
			spec.Name, spec.MinQuantity, spec.MaxQuantity)
	}
	items := append([]string(nil), spec.Items...)
	switch spec.Kind {
	case KindRestock:
		return RestockTemplate{endpoint: ep, Items: items, Min: spec.MinQuantity, Max: spec.MaxQuantity}, nil
	case KindDrain:
		return DrainTemplate{endpoint: ep, Items: items, Min: spec.MinQuantity, Max: spec.MaxQuantity}, nil
	default: // KindPurchase
		p := spec.ExpediteProbability
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, fmt.Errorf("action %q: expedite_probability must be in [0, 1], got %v", spec.Name, p)
		}
		return PurchaseTemplate{endpoint: ep, Items: items, Min: spec.MinQuantity, Max: spec.MaxQuantity,
			ExpediteProbability: p}, nil
	}
}
