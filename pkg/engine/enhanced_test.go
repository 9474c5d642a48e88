package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedsa/pedsa/pkg/fingerprint"
)

func ptr(v float64) *float64 { return &v }

func testwordEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine()
	e.AddFeature(1, "testword")
	e.AddEvent(Event{ID: 10, Text: "a fragment about the testword"})
	e.AddEdge(1, 10, 1)
	e.Compile()
	return e
}

func TestQueryTerm_EffectiveWeight(t *testing.T) {
	assert.Equal(t, 1.0, QueryTerm{Term: "x"}.EffectiveWeight())
	assert.Equal(t, 0.4, QueryTerm{Term: "x", Weight: ptr(0.4)}.EffectiveWeight())
	assert.Equal(t, 0.0, QueryTerm{Term: "x", Weight: ptr(-2)}.EffectiveWeight())
	assert.Equal(t, 2.5, QueryTerm{Term: "x", Weight: ptr(2.5)}.EffectiveWeight())
}

func TestActivateTerms_AccumulatesWeights(t *testing.T) {
	e := testwordEngine(t)

	ps := e.newPass(e.snap)
	n := ps.activateTerms([]QueryTerm{
		{Term: "testword first", Weight: ptr(0.5)},
		{Term: "second TESTWORD", Weight: ptr(0.3)},
	})
	assert.Equal(t, 1, n)
	assert.InDelta(t, 0.8, ps.energy[e.snap.slot[1]], 1e-12)
}

func TestActivateTerms_OneContributionPerTerm(t *testing.T) {
	e := testwordEngine(t)

	ps := e.newPass(e.snap)
	ps.activateTerms([]QueryTerm{{Term: "testword testword", Weight: ptr(0.5)}})
	assert.InDelta(t, 0.5, ps.energy[e.snap.slot[1]], 1e-12)
}

func TestRetrieveEnhanced_MonotonicWeight(t *testing.T) {
	e := testwordEngine(t)

	prevEnergy, prevScore := -1.0, -1.0
	for _, w := range []float64{0.1, 0.2, 0.5, 0.8, 1, 1.5, 3} {
		terms := []QueryTerm{
			{Term: "testword", Weight: ptr(w)},
			{Term: "other", Weight: ptr(0.4)},
		}
		ps := e.newPass(e.snap)
		ps.activateTerms(terms)
		energy := ps.energy[e.snap.slot[1]]
		require.GreaterOrEqual(t, energy, prevEnergy)
		prevEnergy = energy

		res := e.RetrieveEnhanced(EnhancedQuery{OriginalQuery: "testword", Terms: terms}, 5)
		require.Len(t, res.Hits, 1)
		require.GreaterOrEqual(t, res.Hits[0].Score, prevScore)
		prevScore = res.Hits[0].Score
	}
}

func TestRetrieveEnhanced_FallbackMatchesRetrieve(t *testing.T) {
	e := shanghaiEngine(t)

	for _, query := range []string{"沪", "上海", "2024年1月1日在上海", "nothing at all"} {
		want := e.Retrieve(query, 5)
		for _, terms := range [][]QueryTerm{nil, {}, {{Term: "  "}, {Term: ""}}} {
			got := e.RetrieveEnhanced(EnhancedQuery{
				OriginalQuery:    query,
				Terms:            terms,
				DimensionWeights: DimensionWeights{Temporal: ptr(0.9), Character: ptr(1)},
			}, 5)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("fallback for %q mismatch (-retrieve +enhanced):\n%s", query, diff)
			}
		}
	}
}

func TestRetrieveEnhanced_NotReady(t *testing.T) {
	e := newTestEngine()
	e.AddFeature(1, "k")

	res := e.RetrieveEnhanced(EnhancedQuery{Terms: []QueryTerm{{Term: "k"}}}, 5)
	assert.Equal(t, Result{Status: StatusNotReady, Hits: []Hit{}}, res)
	assert.Panics(t, func() { e.RetrieveEnhanced(EnhancedQuery{}, -1) })
}

func TestRetrieveEnhanced_Stats(t *testing.T) {
	e := shanghaiEngine(t)

	res := e.RetrieveEnhanced(EnhancedQuery{
		OriginalQuery: "沪 and 北京",
		Terms: []QueryTerm{
			{Term: "沪", Weight: ptr(0.9), Source: "entity"},
			{Term: "北京", Source: "entity"},
			{Term: " "},
			{Term: "unmatched", Weight: ptr(0.2)},
		},
	}, 5)
	require.True(t, res.OK())
	assert.Equal(t, 3, res.Stats.TermsUsed)
	assert.Equal(t, 2, res.Stats.ActivatedKeywords)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, NodeID(101), res.Hits[0].NodeID)
}

func TestActivateTerms_ZeroWeightNotCounted(t *testing.T) {
	e := testwordEngine(t)

	ps := e.newPass(e.snap)
	n := ps.activateTerms([]QueryTerm{
		{Term: "testword", Weight: ptr(0)},
		{Term: "testword again", Weight: ptr(-1)},
	})
	assert.Zero(t, n)
	assert.Zero(t, ps.energy[e.snap.slot[1]])

	res := e.RetrieveEnhanced(EnhancedQuery{
		Terms: []QueryTerm{{Term: "testword", Weight: ptr(0)}},
	}, 5)
	require.True(t, res.OK())
	assert.Zero(t, res.Stats.ActivatedKeywords)
	assert.Equal(t, 1, res.Stats.TermsUsed)
	assert.Empty(t, res.Hits)
}

// personEngine holds a person-typed event and an undated, unplaced one,
// neither reachable through keywords.
func personEngine(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine()
	e.AddEvent(Event{ID: 1, Text: "my old teacher", Type: fingerprint.TypePerson})
	e.AddEvent(Event{ID: 2, Text: "a rainy afternoon", Timestamp: 1700000000, Location: "Paris", Emotions: []string{"sadness"}})
	e.AddFeature(3, "unrelated")
	e.Compile()
	return e
}

func TestBoostDimensions_Threshold(t *testing.T) {
	e := personEngine(t)
	s1, s2 := e.snap.slot[1], e.snap.slot[2]

	boosted := func(dw DimensionWeights) []float64 {
		ps := e.newPass(e.snap)
		ps.boostDimensions(dw)
		return ps.energy
	}

	at := boosted(DimensionWeights{Temporal: ptr(0.3), Spatial: ptr(0.3), Emotional: ptr(0.3), Character: ptr(0.3)})
	for _, v := range at {
		assert.Zero(t, v)
	}

	above := boosted(DimensionWeights{Character: ptr(0.31)})
	assert.InDelta(t, 0.2*0.31, above[s1], 1e-12)
	assert.Zero(t, above[s2])

	above = boosted(DimensionWeights{Spatial: ptr(0.6), Temporal: ptr(0.4)})
	assert.InDelta(t, 0.2*0.6, above[s2], 1e-12)
	assert.Zero(t, above[s1])

	above = boosted(DimensionWeights{Emotional: ptr(1)})
	assert.InDelta(t, 0.25, above[s2], 1e-12)

	// causal and thematic never boost
	unused := boosted(DimensionWeights{Causal: ptr(1), Thematic: ptr(1)})
	for _, v := range unused {
		assert.Zero(t, v)
	}
}

func TestBoostDimensions_ActiveJudgedBeforeBoost(t *testing.T) {
	e := personEngine(t)
	s1, s2 := e.snap.slot[1], e.snap.slot[2]

	ps := e.newPass(e.snap)
	ps.energy[s2] = 0.1
	ps.boostDimensions(DimensionWeights{Temporal: ptr(1), Emotional: ptr(1), Character: ptr(1)})

	assert.InDelta(t, 0.1+0.4+0.5, ps.energy[s2], 1e-12)
	assert.InDelta(t, 0.2, ps.energy[s1], 1e-12)
}

func TestRetrieveEnhanced_DimensionSurfacesIndexedEvents(t *testing.T) {
	e := personEngine(t)
	terms := []QueryTerm{{Term: "unrelated"}}

	res := e.RetrieveEnhanced(EnhancedQuery{OriginalQuery: "unrelated", Terms: terms}, 5)
	assert.Empty(t, res.Hits)

	res = e.RetrieveEnhanced(EnhancedQuery{
		OriginalQuery:    "unrelated",
		Terms:            terms,
		DimensionWeights: DimensionWeights{Character: ptr(0.8)},
	}, 5)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, NodeID(1), res.Hits[0].NodeID)
}

func TestEnhancedBoosts_StrongDimensions(t *testing.T) {
	p := DefaultParams()

	f := p.enhancedBoosts(DimensionWeights{Temporal: ptr(0.49), Emotional: ptr(0.4)})
	assert.Equal(t, p.boosts(), f)

	f = p.enhancedBoosts(DimensionWeights{Spatial: ptr(0.5), Emotional: ptr(0.9), Character: ptr(0.5)})
	assert.InDelta(t, 0.75, f.temporal, 1e-12)
	assert.InDelta(t, 0.9, f.emotion, 1e-12)
	assert.InDelta(t, 1.2, f.typ, 1e-12)
	assert.Equal(t, p.SemanticBoost, f.semantic)
}
