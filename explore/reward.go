package explore

import (
	"fmt"
	"math"
)

// RewardConfig holds the reward weights. Defaults make anomalies the
// dominant signal, novelty secondary and latency a weak tertiary signal.
type RewardConfig struct {
	NoveltyWeight float64 `yaml:"novelty_weight" validate:"gte=0"`
	AnomalyWeight float64 `yaml:"anomaly_weight" validate:"gte=0"`
	LatencyWeight float64 `yaml:"latency_weight" validate:"gte=0"`
	// ErrorStatusBonus is added for any status outside 2xx, including 0.
	ErrorStatusBonus float64 `yaml:"error_status_bonus" validate:"gte=0"`
	// SlowThresholdMs is the latency above which LatencyWeight is earned.
	SlowThresholdMs float64 `yaml:"slow_threshold_ms" validate:"gte=0"`
}

// DefaultRewardConfig returns novelty 1.0, anomaly 2.0, latency 0.5,
// error-status 0.3 and a 250ms slow threshold.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		NoveltyWeight:    1.0,
		AnomalyWeight:    2.0,
		LatencyWeight:    0.5,
		ErrorStatusBonus: 0.3,
		SlowThresholdMs:  250,
	}
}

// Validate returns an error if any weight is negative, NaN or infinite.
func (c RewardConfig) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"novelty_weight", c.NoveltyWeight},
		{"anomaly_weight", c.AnomalyWeight},
		{"latency_weight", c.LatencyWeight},
		{"error_status_bonus", c.ErrorStatusBonus},
		{"slow_threshold_ms", c.SlowThresholdMs},
	}
	for _, f := range fields {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be a finite non-negative number, got %v", f.name, f.v)
		}
	}
	return nil
}

// RewardModel scores observations. It optimizes for finding bugs rather than
// visiting many states.
type RewardModel struct {
	cfg RewardConfig
}

// NewRewardModel creates a RewardModel after validating cfg.
func NewRewardModel(cfg RewardConfig) (*RewardModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RewardModel{cfg: cfg}, nil
}

// Config returns the weights in use.
func (m *RewardModel) Config() RewardConfig { return m.cfg }

// Score returns the non-negative reward for obs. archive must not yet contain
// obs (call Score before archive.Update).
func (m *RewardModel) Score(obs Observation, archive *NoveltyArchive) float64 {
	reward := 0.0
	if archive.IsNewState(obs) {
		reward += m.cfg.NoveltyWeight
	}
	if n := len(obs.Markers); n > 0 {
		reward += m.cfg.AnomalyWeight * float64(n)
	}
	if archive.IsNewAnomaly(obs) {
		reward += m.cfg.AnomalyWeight
	}
	if m.cfg.SlowThresholdMs > 0 && obs.LatencyMs > m.cfg.SlowThresholdMs {
		reward += m.cfg.LatencyWeight
	}
	if obs.StatusCode < 200 || obs.StatusCode >= 300 {
		reward += m.cfg.ErrorStatusBonus
	}
	return reward
}
