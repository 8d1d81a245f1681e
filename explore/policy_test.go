package explore

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laraaskovic/Adversarial-Regression-Testing-Engine/explore/trace"
)

func singleTemplateCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := NewCatalogFromSpecs([]TemplateSpec{
		{Kind: KindRestock, Name: "restock", Path: "/inventory", Items: []string{"widgets"}, MinQuantity: 1, MaxQuantity: 5},
	})
	require.NoError(t, err)
	return cat
}

func TestPolicyStats_RunningAverageEqualsMean(t *testing.T) {
	// GIVEN a stats table and a reward sequence
	stats := NewPolicyStats(DefaultCatalog())
	rewards := []float64{0, 7.3, 1.0, 2.5, 0.3, 11.2, 0}

	// WHEN each reward is observed for one name
	sum := 0.0
	for _, r := range rewards {
		require.NoError(t, stats.Observe("purchase", r))
		sum += r
	}

	// THEN the running average equals the arithmetic mean
	st, ok := stats.Get("purchase")
	require.True(t, ok)
	assert.Equal(t, len(rewards), st.Count)
	assert.InDelta(t, sum/float64(len(rewards)), st.Average, 1e-9)
}

func TestPolicyStats_UnknownNameRejected(t *testing.T) {
	stats := NewPolicyStats(DefaultCatalog())
	err := stats.Observe("teleport", 1)
	assert.True(t, errors.Is(err, ErrUnknownAction))
	_, ok := stats.Get("teleport")
	assert.False(t, ok)
	assert.Empty(t, stats.Snapshot())
}

func TestPolicyStats_ConcurrentObserve(t *testing.T) {
	// GIVEN a table shared by parallel episodes
	stats := NewPolicyStats(DefaultCatalog())

	// WHEN 8 goroutines each observe reward 1.0 a hundred times
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = stats.Observe("restock", 1.0)
			}
		}()
	}
	wg.Wait()

	// THEN no update was lost
	st, _ := stats.Get("restock")
	assert.Equal(t, 800, st.Count)
	assert.InDelta(t, 1.0, st.Average, 1e-12)
}

func TestNewEpsilonGreedy_RejectsOutOfRange(t *testing.T) {
	for _, eps := range []float64{-0.01, 1.01, math.NaN()} {
		_, err := NewEpsilonGreedy(eps)
		assert.Error(t, err, "epsilon %v", eps)
	}
	for _, eps := range []float64{0, 0.25, 1} {
		p, err := NewEpsilonGreedy(eps)
		require.NoError(t, err)
		assert.Equal(t, eps, p.Epsilon())
	}
}

func TestEpsilonGreedy_SingleTemplateAlwaysSelected(t *testing.T) {
	// GIVEN a one-template catalog and a greedy policy
	cat := singleTemplateCatalog(t)
	stats := NewPolicyStats(cat)
	policy, err := NewEpsilonGreedy(0)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(5))

	// WHEN selecting repeatedly, with and without statistics
	for i := 0; i < 20; i++ {
		action, _ := policy.Select(cat, stats, rng)
		// THEN that template is always chosen
		assert.Equal(t, "restock", action.Name)
		require.NoError(t, stats.Observe(action.Name, float64(i)))
	}
}

func TestEpsilonGreedy_ExploitsBestAverage(t *testing.T) {
	// GIVEN stats where purchase clearly leads
	cat := DefaultCatalog()
	stats := NewPolicyStats(cat)
	require.NoError(t, stats.Observe("reset", 0))
	require.NoError(t, stats.Observe("restock", 1))
	require.NoError(t, stats.Observe("purchase", 9))
	policy, err := NewEpsilonGreedy(0)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	// WHEN selecting with epsilon 0
	action, rec := policy.Select(cat, stats, rng)

	// THEN purchase is exploited
	assert.Equal(t, "purchase", action.Name)
	assert.Equal(t, trace.ModeExploit, rec.Mode)
	assert.Equal(t, 9.0, rec.BestAverage)
	assert.Nil(t, rec.Tied)
	assert.Contains(t, action.JSON, "item")
}

func TestEpsilonGreedy_NoStatsFallsBackToUniform(t *testing.T) {
	cat := DefaultCatalog()
	policy, err := NewEpsilonGreedy(0)
	require.NoError(t, err)
	_, rec := policy.Select(cat, NewPolicyStats(cat), rand.New(rand.NewSource(1)))
	assert.Equal(t, trace.ModeFallback, rec.Mode)
}

func TestEpsilonGreedy_EpsilonOneAlwaysExplores(t *testing.T) {
	cat := DefaultCatalog()
	stats := NewPolicyStats(cat)
	require.NoError(t, stats.Observe("purchase", 100))
	policy, err := NewEpsilonGreedy(1)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(2))

	names := map[string]bool{}
	for i := 0; i < 200; i++ {
		action, rec := policy.Select(cat, stats, rng)
		assert.Equal(t, trace.ModeExplore, rec.Mode)
		names[action.Name] = true
	}
	assert.Len(t, names, cat.Len())
}

func TestEpsilonGreedy_TiesBrokenAmongTiedNames(t *testing.T) {
	// GIVEN two names sharing the best average
	cat := DefaultCatalog()
	stats := NewPolicyStats(cat)
	require.NoError(t, stats.Observe("restock", 3))
	require.NoError(t, stats.Observe("purchase", 3))
	require.NoError(t, stats.Observe("reset", 0))
	policy, err := NewEpsilonGreedy(0)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(8))

	// WHEN selecting many times
	chosen := map[string]int{}
	for i := 0; i < 200; i++ {
		action, rec := policy.Select(cat, stats, rng)
		assert.Equal(t, []string{"purchase", "restock"}, rec.Tied)
		chosen[action.Name]++
	}

	// THEN only tied names are picked, and both of them
	assert.Len(t, chosen, 2)
	assert.Positive(t, chosen["purchase"])
	assert.Positive(t, chosen["restock"])
}

func TestEpsilonGreedy_SameSeedSameChoices(t *testing.T) {
	cat := DefaultCatalog()
	policy, err := NewEpsilonGreedy(DefaultEpsilon)
	require.NoError(t, err)

	run := func() []ActionInstance {
		stats := NewPolicyStats(cat)
		rng := rand.New(rand.NewSource(42))
		var out []ActionInstance
		for i := 0; i < 30; i++ {
			a, _ := policy.Select(cat, stats, rng)
			require.NoError(t, stats.Observe(a.Name, float64(i%4)))
			out = append(out, a)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestScriptedPolicy_ReplaysThenFallsBack(t *testing.T) {
	// GIVEN a two-action script
	cat := DefaultCatalog()
	script := []ActionInstance{
		ResetAction(),
		{Name: "purchase", Method: "POST", Path: "/purchase", JSON: Params{"item": "gadgets", "quantity": 4, "expedite": true}},
	}
	policy := NewScriptedPolicy(script)
	rng := rand.New(rand.NewSource(1))

	// WHEN three actions are selected
	first, rec1 := policy.Select(cat, nil, rng)
	second, rec2 := policy.Select(cat, nil, rng)
	assert.Equal(t, 0, policy.Remaining())
	_, rec3 := policy.Select(cat, nil, rng)

	// THEN the script comes first, verbatim, then uniform sampling
	assert.Equal(t, script[0], first)
	assert.Equal(t, script[1], second)
	assert.Equal(t, trace.ModeScripted, rec1.Mode)
	assert.Equal(t, trace.ModeScripted, rec2.Mode)
	assert.Equal(t, trace.ModeFallback, rec3.Mode)

	// Returned instances do not alias the script
	second.JSON["quantity"] = 99
	assert.Equal(t, 4, script[1].JSON["quantity"])
}
