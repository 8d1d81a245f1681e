package explore

import (
	"context"
	"slices"
)

// DefaultReplayBaseURL is used when neither an override nor a recorded base
// URL is available.
const DefaultReplayBaseURL = "http://127.0.0.1:8000"

// ResolveBaseURL picks the replay target: override, then the recorded URL,
// then DefaultReplayBaseURL.
func ResolveBaseURL(override string, rec *EpisodeRecord) string {
	if override != "" {
		return override
	}
	if rec != nil && rec.BaseURL != "" {
		return rec.BaseURL
	}
	return DefaultReplayBaseURL
}

// ReplayResult compares one recorded step with its re-execution.
type ReplayResult struct {
	Step              int
	Action            ActionInstance
	ExpectedStatus    int
	ActualStatus      int
	ExpectedSignature string
	ActualSignature   string
	ExpectedMarkers   []string
	// AnomalyMarkers are the markers raised by the re-execution.
	AnomalyMarkers []string
}

// StatusDiverged reports whether the status code differs from the recording.
func (r ReplayResult) StatusDiverged() bool { return r.ExpectedStatus != r.ActualStatus }

// SignatureDiverged reports whether the state signature differs.
func (r ReplayResult) SignatureDiverged() bool { return r.ExpectedSignature != r.ActualSignature }

// MarkersDiverged reports whether the replay raised a different marker set.
// Markers such as slow_response depend on timing, so this is informational
// and does not count towards Diverged.
func (r ReplayResult) MarkersDiverged() bool {
	a, b := slices.Clone(r.ExpectedMarkers), slices.Clone(r.AnomalyMarkers)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(slices.Compact(a), slices.Compact(b))
}

// Diverged reports whether the step behaved differently on replay: a
// different status code or state signature.
func (r ReplayResult) Diverged() bool { return r.StatusDiverged() || r.SignatureDiverged() }

// ReplayReport holds the per-step results of a replay.
type ReplayReport struct {
	BaseURL string
	Results []ReplayResult
}

// Divergences counts the steps that diverged.
func (r *ReplayReport) Divergences() int {
	n := 0
	for _, res := range r.Results {
		if res.Diverged() {
			n++
		}
	}
	return n
}

// Diverged reports whether any step diverged.
func (r *ReplayReport) Diverged() bool { return r.Divergences() > 0 }

// Replay resets target and re-executes every recorded action verbatim, in
// order. It consults no policy, archive or reward model. If ctx is cancelled
// the report covers the steps executed so far.
func Replay(ctx context.Context, target Target, rec *EpisodeRecord) *ReplayReport {
	report := &ReplayReport{
		BaseURL: target.BaseURL(),
		Results: make([]ReplayResult, 0, len(rec.Steps)),
	}
	target.Reset(ctx)
	for _, s := range rec.Steps {
		if ctx.Err() != nil {
			break
		}
		obs := target.Perform(ctx, s.Action)
		report.Results = append(report.Results, ReplayResult{
			Step:              s.Step,
			Action:            s.Action,
			ExpectedStatus:    s.StatusCode,
			ActualStatus:      obs.StatusCode,
			ExpectedSignature: s.StateSignature,
			ActualSignature:   obs.Signature,
			ExpectedMarkers:   slices.Clone(s.AnomalyMarkers),
			AnomalyMarkers:    obs.Markers,
		})
	}
	return report
}
