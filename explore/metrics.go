package explore

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the exploration collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stepsTotal     *prometheus.CounterVec
	anomaliesTotal *prometheus.CounterVec
	episodesTotal  *prometheus.CounterVec
	artifactsTotal prometheus.Counter
	rewardSum      *prometheus.CounterVec
	newStatesTotal prometheus.Counter
	stepLatency    *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arte_steps_total",
			Help: "Actions executed against the target",
		},
		[]string{"action", "mode"},
	)
	m.anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arte_anomaly_markers_total",
			Help: "Anomaly markers raised, by marker",
		},
		[]string{"marker"},
	)
	m.episodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arte_episodes_total",
			Help: "Episodes completed, by outcome",
		},
		[]string{"outcome"},
	)
	m.artifactsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arte_artifact_writes_total",
		Help: "Episode artifact writes",
	})
	m.rewardSum = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arte_reward_sum",
			Help: "Sum of rewards earned, by action",
		},
		[]string{"action"},
	)
	m.newStatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arte_new_states_total",
		Help: "Observations whose state signature was new to their episode",
	})
	m.stepLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arte_step_latency_seconds",
			Help:    "Action latency as measured by the adapter",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"action"},
	)

	collectors := []prometheus.Collector{
		m.stepsTotal,
		m.anomaliesTotal,
		m.episodesTotal,
		m.artifactsTotal,
		m.rewardSum,
		m.newStatesTotal,
		m.stepLatency,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry to expose, or nil for a nil receiver.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) observeStep(step EpisodeStep, mode string) {
	if m == nil {
		return
	}
	name := step.Action.Name
	m.stepsTotal.WithLabelValues(name, mode).Inc()
	m.rewardSum.WithLabelValues(name).Add(step.Reward)
	m.stepLatency.WithLabelValues(name).Observe(step.Obs.LatencyMs / 1000)
	for _, marker := range step.Obs.Markers {
		m.anomaliesTotal.WithLabelValues(marker).Inc()
	}
	if step.Novelty.NewState {
		m.newStatesTotal.Inc()
	}
}

func (m *Metrics) observeArtifact() {
	if m == nil {
		return
	}
	m.artifactsTotal.Inc()
}

func (m *Metrics) observeEpisode(anomalous bool) {
	if m == nil {
		return
	}
	outcome := "clean"
	if anomalous {
		outcome = "anomalous"
	}
	m.episodesTotal.WithLabelValues(outcome).Inc()
}
