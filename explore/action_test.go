package explore

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(t *testing.T, cat *Catalog, name string) ActionTemplate {
	t.Helper()
	tmpl, ok := cat.Lookup(name)
	require.True(t, ok, "template %s", name)
	return tmpl
}

func TestSamplers_ParametersWithinBounds(t *testing.T) {
	cat := DefaultCatalog()
	rng := rand.New(rand.NewSource(99))
	items := map[string]bool{"widgets": true, "gadgets": true, "doodads": true}
	modes := map[string]bool{"normal": true, "maintenance": true, "slow": true}

	for i := 0; i < 200; i++ {
		restock := lookup(t, cat, "restock").SampleParams(rng)
		assert.True(t, items[restock["item"].(string)])
		q := restock["quantity"].(int)
		assert.True(t, q >= 1 && q <= 5, "restock quantity %d", q)

		drain := lookup(t, cat, "drain_inventory").SampleParams(rng)
		q = drain["quantity"].(int)
		assert.True(t, q >= -3 && q <= -1, "drain quantity %d", q)

		purchase := lookup(t, cat, "purchase").SampleParams(rng)
		assert.True(t, items[purchase["item"].(string)])
		q = purchase["quantity"].(int)
		assert.True(t, q >= 1 && q <= 6, "purchase quantity %d", q)
		_, isBool := purchase["expedite"].(bool)
		assert.True(t, isBool)

		mode := lookup(t, cat, "toggle_mode").SampleParams(rng)
		assert.True(t, modes[mode["mode"].(string)])
	}
	assert.Empty(t, lookup(t, cat, "reset").SampleParams(rng))
}

func TestPurchaseTemplate_ExpediteFrequency(t *testing.T) {
	// GIVEN the default purchase template (expedite probability 0.4)
	tmpl := lookup(t, DefaultCatalog(), "purchase")
	rng := rand.New(rand.NewSource(3))

	// WHEN sampled many times
	expedited := 0
	const n = 5000
	for i := 0; i < n; i++ {
		if tmpl.SampleParams(rng)["expedite"].(bool) {
			expedited++
		}
	}

	// THEN roughly 40% of draws are expedited
	assert.InDelta(t, 0.4, float64(expedited)/n, 0.05)
}

func TestNewTemplate_Defaults(t *testing.T) {
	tmpl, err := NewTemplate(TemplateSpec{Kind: KindInspect, Name: "peek", Path: "/state"})
	require.NoError(t, err)
	assert.Equal(t, "GET", tmpl.Method())

	tmpl, err = NewTemplate(TemplateSpec{Kind: KindReset, Name: "reset", Path: "/reset", Method: "put"})
	require.NoError(t, err)
	assert.Equal(t, "PUT", tmpl.Method())

	tmpl, err = NewTemplate(TemplateSpec{Kind: KindModeToggle, Name: "m", Path: "/mode", Modes: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "POST", tmpl.Method())
}

func TestNewTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec TemplateSpec
	}{
		{"unknown kind", TemplateSpec{Kind: "teleport", Name: "x", Path: "/x"}},
		{"no name", TemplateSpec{Kind: KindReset, Path: "/reset"}},
		{"relative path", TemplateSpec{Kind: KindReset, Name: "r", Path: "reset"}},
		{"no modes", TemplateSpec{Kind: KindModeToggle, Name: "m", Path: "/mode"}},
		{"no items", TemplateSpec{Kind: KindRestock, Name: "r", Path: "/inventory", MinQuantity: 1, MaxQuantity: 2}},
		{"zero min", TemplateSpec{Kind: KindRestock, Name: "r", Path: "/inventory", Items: []string{"a"}, MaxQuantity: 2}},
		{"min above max", TemplateSpec{Kind: KindDrain, Name: "d", Path: "/inventory", Items: []string{"a"}, MinQuantity: 3, MaxQuantity: 2}},
		{"probability above one", TemplateSpec{Kind: KindPurchase, Name: "p", Path: "/purchase", Items: []string{"a"},
			MinQuantity: 1, MaxQuantity: 2, ExpediteProbability: 1.5}},
		{"probability NaN", TemplateSpec{Kind: KindPurchase, Name: "p", Path: "/purchase", Items: []string{"a"},
			MinQuantity: 1, MaxQuantity: 2, ExpediteProbability: math.NaN()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTemplate(tc.spec)
			assert.Error(t, err)
		})
	}
}

func TestTemplate_SpecRebuildsEquivalentTemplate(t *testing.T) {
	for _, tmpl := range DefaultCatalog().Templates() {
		rebuilt, err := NewTemplate(tmpl.Spec())
		require.NoError(t, err, tmpl.Name())
		assert.Equal(t, tmpl.Spec(), rebuilt.Spec())

		// Same seed, same parameters
		a := rand.New(rand.NewSource(11))
		b := rand.New(rand.NewSource(11))
		assert.Equal(t, tmpl.SampleParams(a), rebuilt.SampleParams(b))
	}
}

func TestIsValidKind(t *testing.T) {
	assert.True(t, IsValidKind(KindPurchase))
	assert.True(t, IsValidKind(KindInspect))
	assert.False(t, IsValidKind("teleport"))
	assert.False(t, IsValidKind(""))
}
