package explore

import (
	"fmt"
	"sort"
	"strings"
)

// Anomaly markers. Markers are emitted at most once per observation, in the
// order listed here.
const (
	MarkerServerError       = "http_5xx"
	MarkerClientError       = "http_4xx"
	MarkerTransportError    = "transport_error"
	MarkerStateUnavailable  = "state_unavailable"
	MarkerAlertsPresent     = "alerts_present"
	MarkerInvariantViolated = "invariant_violated"
	MarkerSlowResponse      = "slow_response"
)

// StateSource records where an observation's state snapshot came from.
type StateSource int

const (
	// StateUnavailable means neither the state endpoint nor the action
	// response carried a usable snapshot.
	StateUnavailable StateSource = iota
	StateFromEndpoint
	StateFromResponse
)

func (s StateSource) String() string {
	switch s {
	case StateFromEndpoint:
		return "endpoint"
	case StateFromResponse:
		return "response"
	default:
		return "unavailable"
	}
}

// StateResult is a state snapshot tagged with its provenance. An unavailable
// state is distinct from a legitimately empty one.
type StateResult struct {
	Snapshot map[string]any
	Source   StateSource
	// Reason explains a fallback or unavailability; empty when the endpoint
	// answered normally.
	Reason string
}

// Available reports whether a snapshot was obtained.
func (r StateResult) Available() bool { return r.Source != StateUnavailable }

// MarkerConfig holds the thresholds used to derive anomaly markers.
type MarkerConfig struct {
	// SlowThresholdMs is the latency above which slow_response is emitted.
	// Zero disables the marker.
	SlowThresholdMs float64 `yaml:"slow_threshold_ms" validate:"gte=0"`
	// BenignInvariants lists invariant flag names (the part before any ':')
	// that the target reports for information only.
	BenignInvariants []string `yaml:"benign_invariants"`
}

// DefaultMarkerConfig returns a 250ms slow threshold and treats the demo
// store's "slow_mode" flag as informational.
func DefaultMarkerConfig() MarkerConfig {
	return MarkerConfig{
		SlowThresholdMs:  250,
		BenignInvariants: []string{"slow_mode"},
	}
}

// Observation is the result of executing one action instance. It is built
// once by NewObservation and never modified.
type Observation struct {
	Action     ActionInstance
	StatusCode int // 0 when no HTTP response was received
	LatencyMs  float64
	Response   map[string]any
	State      StateResult

	Signature string
	Markers   []string
}

// NewObservation assembles an observation and derives its signature and
// anomaly markers.
func NewObservation(action ActionInstance, status int, latencyMs float64,
	response map[string]any, state StateResult, cfg MarkerConfig) Observation {
	if response == nil {
		response = map[string]any{}
	}
	if state.Snapshot == nil {
		state.Snapshot = map[string]any{}
	}
	obs := Observation{
		Action:     action,
		StatusCode: status,
		LatencyMs:  latencyMs,
		Response:   response,
		State:      state,
	}
	obs.Signature = StateSignature(state.Snapshot)
	obs.Markers = deriveMarkers(obs, cfg)
	return obs
}

// HasAnomaly reports whether any marker was raised.
func (o Observation) HasAnomaly() bool { return len(o.Markers) > 0 }

// AnomalyKey is the canonical form of the marker combination: sorted markers
// joined by '|'. Empty when there are no markers.
func (o Observation) AnomalyKey() string {
	return anomalyKey(o.Markers)
}

// LogExcerpt returns the target's recent event records, if any.
func (o Observation) LogExcerpt() []any {
	events, ok := o.State.Snapshot["recent_events"].([]any)
	if !ok {
		return []any{}
	}
	return events
}

func anomalyKey(markers []string) string {
	if len(markers) == 0 {
		return ""
	}
	sorted := append([]string(nil), markers...)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// StateSignature returns the canonical serialization of the part of a
// snapshot used for novelty: inventory, mode, order count, alerts,
// invariant flags and state version. Key order and list order in the input
// do not affect the result.
func StateSignature(snapshot map[string]any) string {
	inventory, ok := snapshot["inventory"]
	if !ok || inventory == nil {
		inventory = map[string]any{}
	}
	summary := map[string]any{
		"inventory":     inventory,
		"mode":          snapshot["mode"],
		"orders_total":  snapshot["orders_total"],
		"alerts":        sortedStrings(snapshot["alerts"]),
		"invariants":    sortedStrings(snapshot["invariants"]),
		"state_version": snapshot["state_version"],
	}
	b, err := canonicalJSON(summary)
	if err != nil {
		return fmt.Sprintf("unencodable:%v", err)
	}
	return string(b)
}

// sortedStrings renders a JSON list as sorted strings. Non-string elements
// are rendered as canonical JSON. Anything that is not a list yields an
// empty slice.
func sortedStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, stringify(item))
	}
	sort.Strings(out)
	return out
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := canonicalJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func deriveMarkers(o Observation, cfg MarkerConfig) []string {
	var markers []string
	switch {
	case o.StatusCode >= 500:
		markers = append(markers, MarkerServerError)
	case o.StatusCode >= 400:
		markers = append(markers, MarkerClientError)
	case o.StatusCode == 0:
		markers = append(markers, MarkerTransportError)
	}
	if !o.State.Available() {
		markers = append(markers, MarkerStateUnavailable)
	}
	if alerts, ok := o.State.Snapshot["alerts"].([]any); ok && len(alerts) > 0 {
		markers = append(markers, MarkerAlertsPresent)
	}
	if flags, ok := o.State.Snapshot["invariants"].([]any); ok && hasViolation(flags, cfg.BenignInvariants) {
		markers = append(markers, MarkerInvariantViolated)
	}
	if cfg.SlowThresholdMs > 0 && o.LatencyMs > cfg.SlowThresholdMs {
		markers = append(markers, MarkerSlowResponse)
	}
	return markers
}

// hasViolation reports whether any flag is outside the benign set. Flags of
// the form "name:detail" are matched on name.
func hasViolation(flags []any, benign []string) bool {
	for _, f := range flags {
		name, _, _ := strings.Cut(stringify(f), ":")
		isBenign := false
		for _, b := range benign {
			if name == b {
				isBenign = true
				break
			}
		}
		if !isBenign {
			return true
		}
	}
	return false
}
