package explore

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore/trace"
)

// ErrUnknownAction is returned when statistics are reported for a name that
// has no template in the catalog.
var ErrUnknownAction = errors.New("unknown action name")

// ActionStat is the running reward statistic of one action name.
type ActionStat struct {
	Count   int
	Average float64
}

// PolicyStats is the per-action-name reward table. It lives for one driver
// session and may be shared by episodes running in parallel; every
// read-modify-write is serialized.
type PolicyStats struct {
	mu    sync.Mutex
	known map[string]bool
	stats map[string]*ActionStat
}

// NewPolicyStats creates an empty table accepting the names in cat.
func NewPolicyStats(cat *Catalog) *PolicyStats {
	known := make(map[string]bool, cat.Len())
	for _, name := range cat.Names() {
		known[name] = true
	}
	return &PolicyStats{
		known: known,
		stats: make(map[string]*ActionStat),
	}
}

// Observe folds reward into name's running average:
// avg' = (avg*count + reward) / (count+1).
func (s *PolicyStats) Observe(name string, reward float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known[name] {
		return fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	st, ok := s.stats[name]
	if !ok {
		st = &ActionStat{}
		s.stats[name] = st
	}
	st.Average = (st.Average*float64(st.Count) + reward) / float64(st.Count+1)
	st.Count++
	return nil
}

// Get returns the statistic for name.
func (s *PolicyStats) Get(name string) (ActionStat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[name]
	if !ok {
		return ActionStat{}, false
	}
	return *st, true
}

// Snapshot returns a copy of the whole table.
func (s *PolicyStats) Snapshot() map[string]ActionStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ActionStat, len(s.stats))
	for name, st := range s.stats {
		out[name] = *st
	}
	return out
}

// best returns the names sharing the highest average, sorted, and that
// average. ok is false when nothing has been observed.
func (s *PolicyStats) best() (names []string, avg float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stats) == 0 {
		return nil, 0, false
	}
	avg = math.Inf(-1)
	for name, st := range s.stats {
		switch {
		case st.Average > avg:
			avg = st.Average
			names = append(names[:0], name)
		case st.Average == avg:
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, avg, true
}

// Policy chooses the next action. Statistics are passed in explicitly so the
// sharing boundary is visible at every call site.
type Policy interface {
	Select(cat *Catalog, stats *PolicyStats, rng *rand.Rand) (ActionInstance, trace.DecisionRecord)
}

// EpsilonGreedy explores uniformly with probability epsilon and otherwise
// exploits the action name with the best running average.
type EpsilonGreedy struct {
	epsilon float64
}

// DefaultEpsilon is the exploration probability used when none is configured.
const DefaultEpsilon = 0.25

// NewEpsilonGreedy returns an error unless epsilon is in [0, 1].
func NewEpsilonGreedy(epsilon float64) (*EpsilonGreedy, error) {
	if epsilon < 0 || epsilon > 1 || math.IsNaN(epsilon) {
		return nil, fmt.Errorf("epsilon must be in [0, 1], got %v", epsilon)
	}
	return &EpsilonGreedy{epsilon: epsilon}, nil
}

// Epsilon returns the exploration probability.
func (p *EpsilonGreedy) Epsilon() float64 { return p.epsilon }

// Select implements Policy. The epsilon coin is always drawn first so rng
// consumption does not depend on the statistics. Ties among the best names
// and every case where exploitation has nothing to go on resolve to a random
// choice.
func (p *EpsilonGreedy) Select(cat *Catalog, stats *PolicyStats, rng *rand.Rand) (ActionInstance, trace.DecisionRecord) {
	if rng.Float64() < p.epsilon {
		inst := cat.Sample(rng)
		return inst, trace.DecisionRecord{Mode: trace.ModeExplore, Chosen: inst.Name}
	}

	names, avg, ok := stats.best()
	if !ok {
		inst := cat.Sample(rng)
		return inst, trace.DecisionRecord{Mode: trace.ModeFallback, Chosen: inst.Name}
	}
	name := names[0]
	if len(names) > 1 {
		name = names[rng.Intn(len(names))]
	}
	tmpl, found := cat.Lookup(name)
	if !found {
		inst := cat.Sample(rng)
		return inst, trace.DecisionRecord{Mode: trace.ModeFallback, Chosen: inst.Name}
	}

	rec := trace.DecisionRecord{Mode: trace.ModeExploit, Chosen: name, BestAverage: avg}
	if len(names) > 1 {
		rec.Tied = names
	}
	return Instantiate(tmpl, rng), rec
}

// ScriptedPolicy returns a fixed sequence of actions, then falls back to
// uniform sampling. It keeps per-episode position, so use one per episode.
type ScriptedPolicy struct {
	actions []ActionInstance
	next    int
}

// NewScriptedPolicy creates a ScriptedPolicy over actions.
func NewScriptedPolicy(actions []ActionInstance) *ScriptedPolicy {
	return &ScriptedPolicy{actions: actions}
}

// Select implements Policy.
func (p *ScriptedPolicy) Select(cat *Catalog, _ *PolicyStats, rng *rand.Rand) (ActionInstance, trace.DecisionRecord) {
	if p.next < len(p.actions) {
		a := p.actions[p.next]
		p.next++
		inst := ActionInstance{Name: a.Name, Method: a.Method, Path: a.Path, JSON: cloneParams(a.JSON)}
		return inst, trace.DecisionRecord{Mode: trace.ModeScripted, Chosen: inst.Name}
	}
	inst := cat.Sample(rng)
	return inst, trace.DecisionRecord{Mode: trace.ModeFallback, Chosen: inst.Name}
}

// Remaining returns how many scripted actions are left.
func (p *ScriptedPolicy) Remaining() int { return len(p.actions) - p.next }

func cloneParams(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
