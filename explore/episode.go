package explore

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEpisode is returned when an episode artifact violates the
// replay contract.
var ErrMalformedEpisode = errors.New("malformed episode artifact")

// Novelty records the archive's verdict on an observation at scoring time.
type Novelty struct {
	NewState   bool
	NewAnomaly bool
}

// EpisodeStep is one executed action with its outcome.
type EpisodeStep struct {
	Step    int
	Action  ActionInstance
	Obs     Observation
	Reward  float64
	Novelty Novelty
}

// Episode is one seeded run. Owned by the goroutine running it; immutable
// once the run ends.
type Episode struct {
	Seed      int64
	BaseURL   string
	StartTime time.Time
	Steps     []EpisodeStep
	// ArtifactPath is where the episode was persisted; empty for clean
	// episodes.
	ArtifactPath string
}

// NewEpisode starts an empty episode.
func NewEpisode(seed int64, baseURL string, start time.Time) *Episode {
	return &Episode{Seed: seed, BaseURL: baseURL, StartTime: start}
}

// StartTS returns the start time as fractional epoch seconds.
func (e *Episode) StartTS() float64 {
	return float64(e.StartTime.UnixNano()) / 1e9
}

// Anomalies returns the steps that raised at least one marker.
func (e *Episode) Anomalies() []EpisodeStep {
	var out []EpisodeStep
	for _, s := range e.Steps {
		if s.Obs.HasAnomaly() {
			out = append(out, s)
		}
	}
	return out
}

// TotalReward sums step rewards.
func (e *Episode) TotalReward() float64 {
	total := 0.0
	for _, s := range e.Steps {
		total += s.Reward
	}
	return total
}

// Record converts the episode to its persisted form.
func (e *Episode) Record() *EpisodeRecord {
	rec := &EpisodeRecord{
		Seed:    e.Seed,
		BaseURL: e.BaseURL,
		StartTS: e.StartTS(),
		Steps:   make([]StepRecord, 0, len(e.Steps)),
	}
	for _, s := range e.Steps {
		markers := s.Obs.Markers
		if markers == nil {
			markers = []string{}
		}
		rec.Steps = append(rec.Steps, StepRecord{
			Step:           s.Step,
			Action:         s.Action,
			Reward:         s.Reward,
			StatusCode:     s.Obs.StatusCode,
			LatencyMs:      s.Obs.LatencyMs,
			StateSignature: s.Obs.Signature,
			AnomalyMarkers: markers,
			ResponseJSON:   s.Obs.Response,
			State:          s.Obs.State.Snapshot,
			LogExcerpt:     s.Obs.LogExcerpt(),
		})
	}
	return rec
}

// EpisodeRecord is the on-disk episode artifact. Its JSON shape is the
// replay contract and must round-trip without loss.
type EpisodeRecord struct {
	Seed    int64        `json:"seed"`
	BaseURL string       `json:"base_url"`
	StartTS float64      `json:"start_ts"`
	Steps   []StepRecord `json:"steps"`
}

// StepRecord is one step of an EpisodeRecord.
type StepRecord struct {
	Step           int            `json:"step"`
	Action         ActionInstance `json:"action"`
	Reward         float64        `json:"reward"`
	StatusCode     int            `json:"status_code"`
	LatencyMs      float64        `json:"latency_ms"`
	StateSignature string         `json:"state_signature"`
	AnomalyMarkers []string       `json:"anomaly_markers"`
	ResponseJSON   map[string]any `json:"response_json"`
	State          map[string]any `json:"state"`
	LogExcerpt     []any          `json:"log_excerpt"`
}

// ArtifactName is the deterministic file name for an episode:
// episode_seed{seed}_{int(start_ts)}.json.
func (r *EpisodeRecord) ArtifactName() string {
	return fmt.Sprintf("episode_seed%d_%d.json", r.Seed, int64(r.StartTS))
}

// Validate checks that steps are numbered 0..n-1 in order and that every
// action names a method and path.
func (r *EpisodeRecord) Validate() error {
	for i, s := range r.Steps {
		if s.Step != i {
			return fmt.Errorf("%w: step at position %d has index %d", ErrMalformedEpisode, i, s.Step)
		}
		if s.Action.Method == "" || s.Action.Path == "" {
			return fmt.Errorf("%w: step %d has no method or path", ErrMalformedEpisode, i)
		}
	}
	return nil
}

// Actions returns the recorded action instances in step order.
func (r *EpisodeRecord) Actions() []ActionInstance {
	out := make([]ActionInstance, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Action
	}
	return out
}

// MarshalArtifact encodes the record as indented JSON.
func (r *EpisodeRecord) MarshalArtifact() ([]byte, error) {
	return indentedJSON(r)
}

// UnmarshalArtifact decodes and validates an episode artifact.
func UnmarshalArtifact(data []byte) (*EpisodeRecord, error) {
	var rec EpisodeRecord
	if err := decodeJSON(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEpisode, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}
