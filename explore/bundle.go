package explore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var bundleValidate = validator.New()

// Bundle is the YAML run configuration. Nil pointer fields and empty strings
// mean "not set in YAML"; they leave the corresponding setting untouched.
type Bundle struct {
	Policy  PolicySection  `yaml:"policy"`
	Reward  RewardSection  `yaml:"reward"`
	Markers MarkersSection `yaml:"markers"`
	Target  TargetSection  `yaml:"target"`
	Actions []TemplateSpec `yaml:"actions" validate:"omitempty,dive"`
}

// PolicySection configures the exploration policy.
type PolicySection struct {
	Epsilon *float64 `yaml:"epsilon" validate:"omitnil,gte=0,lte=1"`
}

// RewardSection configures the reward weights.
type RewardSection struct {
	NoveltyWeight    *float64 `yaml:"novelty_weight" validate:"omitnil,gte=0"`
	AnomalyWeight    *float64 `yaml:"anomaly_weight" validate:"omitnil,gte=0"`
	LatencyWeight    *float64 `yaml:"latency_weight" validate:"omitnil,gte=0"`
	ErrorStatusBonus *float64 `yaml:"error_status_bonus" validate:"omitnil,gte=0"`
	// SlowThresholdMs also sets the slow_response marker threshold.
	SlowThresholdMs *float64 `yaml:"slow_threshold_ms" validate:"omitnil,gte=0"`
}

// MarkersSection configures anomaly marker derivation.
type MarkersSection struct {
	// BenignInvariants replaces the default list when present, even if empty.
	BenignInvariants []string `yaml:"benign_invariants"`
}

// TargetSection configures the HTTP adapter.
type TargetSection struct {
	Timeout   string   `yaml:"timeout"`
	RateLimit *float64 `yaml:"rate_limit" validate:"omitnil,gte=0"`
}

// Settings is the resolved configuration of a run.
type Settings struct {
	Epsilon float64
	Reward  RewardConfig
	Target  TargetConfig
	// Actions, when non-empty, replaces the default catalog.
	Actions []TemplateSpec
}

// DefaultSettings returns the defaults for every section.
func DefaultSettings() Settings {
	return Settings{
		Epsilon: DefaultEpsilon,
		Reward:  DefaultRewardConfig(),
		Target:  DefaultTargetConfig(),
	}
}

// Catalog builds the catalog described by s.
func (s Settings) Catalog() (*Catalog, error) {
	if len(s.Actions) == 0 {
		return NewCatalogFromSpecs(DefaultTemplateSpecs())
	}
	return NewCatalogFromSpecs(s.Actions)
}

// LoadBundle reads a YAML bundle. Unknown keys are rejected.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config bundle: %w", err)
	}
	return ParseBundle(data)
}

// ParseBundle decodes and validates a YAML bundle.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks value ranges, the timeout format and every action spec.
func (b *Bundle) Validate() error {
	if err := bundleValidate.Struct(b); err != nil {
		return fmt.Errorf("invalid config bundle: %w", err)
	}
	if b.Target.Timeout != "" {
		d, err := time.ParseDuration(b.Target.Timeout)
		if err != nil {
			return fmt.Errorf("invalid target.timeout %q: %w", b.Target.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("target.timeout must be positive, got %s", d)
		}
	}
	if len(b.Actions) > 0 {
		if _, err := NewCatalogFromSpecs(b.Actions); err != nil {
			return fmt.Errorf("invalid actions: %w", err)
		}
	}
	return nil
}

// Apply overlays the fields set in b onto s.
func (b *Bundle) Apply(s *Settings) {
	if b.Policy.Epsilon != nil {
		s.Epsilon = *b.Policy.Epsilon
	}
	r := b.Reward
	if r.NoveltyWeight != nil {
		s.Reward.NoveltyWeight = *r.NoveltyWeight
	}
	if r.AnomalyWeight != nil {
		s.Reward.AnomalyWeight = *r.AnomalyWeight
	}
	if r.LatencyWeight != nil {
		s.Reward.LatencyWeight = *r.LatencyWeight
	}
	if r.ErrorStatusBonus != nil {
		s.Reward.ErrorStatusBonus = *r.ErrorStatusBonus
	}
	if r.SlowThresholdMs != nil {
		s.Reward.SlowThresholdMs = *r.SlowThresholdMs
		s.Target.Markers.SlowThresholdMs = *r.SlowThresholdMs
	}
	if b.Markers.BenignInvariants != nil {
		s.Target.Markers.BenignInvariants = slices.Clone(b.Markers.BenignInvariants)
	}
	if b.Target.Timeout != "" {
		// Validate has already checked the format.
		if d, err := time.ParseDuration(b.Target.Timeout); err == nil {
			s.Target.Timeout = d
		}
	}
	if b.Target.RateLimit != nil {
		s.Target.RateLimit = *b.Target.RateLimit
	}
	if len(b.Actions) > 0 {
		s.Actions = slices.Clone(b.Actions)
	}
}

// LoadScript reads a YAML list of action instances to force at the start of
// every episode.
func LoadScript(path string) ([]ActionInstance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	var actions []ActionInstance
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&actions); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	for i, a := range actions {
		if a.Name == "" || a.Method == "" || a.Path == "" {
			return nil, fmt.Errorf("script entry %d: name, method and path are required", i)
		}
		if a.JSON == nil {
			actions[i].JSON = Params{}
		}
	}
	return actions, nil
}
