package explore

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_TemplatesInStableOrder(t *testing.T) {
	cat := DefaultCatalog()
	assert.Equal(t, []string{"reset", "restock", "drain_inventory", "purchase", "toggle_mode"}, cat.Names())
	assert.Equal(t, 5, cat.Len())

	// Templates returns a copy
	tmpls := cat.Templates()
	tmpls[0] = nil
	assert.NotNil(t, cat.Templates()[0])
}

func TestNewCatalog_RejectsEmptyAndDuplicates(t *testing.T) {
	_, err := NewCatalog()
	assert.True(t, errors.Is(err, ErrEmptyCatalog))

	_, err = NewCatalogFromSpecs([]TemplateSpec{
		{Kind: KindReset, Name: "reset", Path: "/reset"},
		{Kind: KindInspect, Name: "reset", Path: "/state"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = NewCatalog(ResetTemplate{endpoint{"reset", "POST", "/reset"}}, nil)
	assert.Error(t, err)
}

func TestCatalog_Sample_SameSeedSameSequence(t *testing.T) {
	// GIVEN two generators with the same seed
	cat := DefaultCatalog()
	a := rand.New(rand.NewSource(7))
	b := rand.New(rand.NewSource(7))

	// WHEN 50 instances are sampled from each
	// THEN the sequences are identical
	for i := 0; i < 50; i++ {
		assert.Equal(t, cat.Sample(a), cat.Sample(b), "draw %d", i)
	}
}

func TestCatalog_Sample_CoversEveryTemplate(t *testing.T) {
	cat := DefaultCatalog()
	rng := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[cat.Sample(rng).Name] = true
	}
	for _, name := range cat.Names() {
		assert.True(t, seen[name], "template %s never sampled", name)
	}
}

func TestCatalog_Lookup(t *testing.T) {
	cat := DefaultCatalog()
	tmpl, ok := cat.Lookup("purchase")
	require.True(t, ok)
	assert.Equal(t, KindPurchase, tmpl.Kind())
	assert.Equal(t, "/purchase", tmpl.Path())

	_, ok = cat.Lookup("teleport")
	assert.False(t, ok)
}

func TestResetAction(t *testing.T) {
	a := ResetAction()
	assert.Equal(t, "reset", a.Name)
	assert.Equal(t, "POST", a.Method)
	assert.Equal(t, "/reset", a.Path)
	assert.Empty(t, a.JSON)
}
