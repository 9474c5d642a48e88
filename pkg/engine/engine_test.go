package engine

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedsa/pedsa/pkg/fingerprint"
)

var testNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestEngine(opts ...Option) *Engine {
	return New(append([]Option{WithClock(fixedClock)}, opts...)...)
}

func TestQuantize_Boundaries(t *testing.T) {
	assert.Equal(t, Weight(0), Quantize(0))
	assert.Equal(t, MaxWeight, Quantize(1))
	assert.Equal(t, Weight(0), Quantize(-0.5))
	assert.Equal(t, MaxWeight, Quantize(7))
	assert.Equal(t, Weight(0), Quantize(math.NaN()))
	assert.Equal(t, MaxWeight, Quantize(math.Inf(1)))
	assert.Equal(t, Weight(0), Quantize(math.Inf(-1)))
	assert.Equal(t, Weight(32768), Quantize(0.5))

	assert.Equal(t, 0.0, Weight(0).Float())
	assert.Equal(t, 1.0, MaxWeight.Float())
	assert.Equal(t, Weight(1), Quantize(1.0/65535))
}

func TestQuantize_RoundTripError(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		w := r.Float64()
		got := Quantize(w).Float()
		require.InDelta(t, w, got, 0.5/65535+1e-12)
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 1.0)
	}
}

func TestAddEdge_KeepsMaximumWeight(t *testing.T) {
	e := newTestEngine()
	e.AddEdge(1, 2, 0.3)
	e.AddEdge(1, 2, 0.7)
	e.AddEdge(1, 2, 0.5)

	w, ok := e.memory.weight(1, 2)
	require.True(t, ok)
	assert.InDelta(t, 0.7, w.Float(), 1e-4)
	assert.Equal(t, 1, e.Stats().MemoryEdges)

	_, ok = e.memory.weight(2, 1)
	assert.False(t, ok)
}

func TestAddOntologyEdge_Equality(t *testing.T) {
	e := newTestEngine()
	e.AddOntologyEdge("上海", "沪", 0.9, true)
	e.AddOntologyEdge("Cat", "animal", 0.4, false)

	hu, _ := e.FeatureID("沪")
	sh, _ := e.FeatureID("上海")
	w, ok := e.ontology.weight(hu, sh)
	require.True(t, ok)
	assert.InDelta(t, 0.9, w.Float(), 1e-4)

	animal, _ := e.FeatureID("animal")
	cat, _ := e.FeatureID("cat")
	_, ok = e.ontology.weight(animal, cat)
	assert.False(t, ok)
	assert.Equal(t, 3, e.Stats().OntologyEdges)
}

func TestAutoFeatureIDs_NegativeAndDescending(t *testing.T) {
	e := newTestEngine()
	e.AddFeature(-3, "taken")
	e.AddOntologyEdge("a", "b", 1, false)
	e.Tag(10, "c", 1)

	a, _ := e.FeatureID("a")
	b, _ := e.FeatureID("b")
	c, _ := e.FeatureID("c")
	assert.Equal(t, NodeID(-1), a)
	assert.Equal(t, NodeID(-2), b)
	assert.Equal(t, NodeID(-4), c)

	n, ok := e.Node(c)
	require.True(t, ok)
	assert.Equal(t, KindFeature, n.Kind)
}

func TestAddFeature_ReAddMovesKeyword(t *testing.T) {
	e := newTestEngine()
	e.AddFeature(1, "Old")
	e.AddFeature(1, "New")

	_, ok := e.FeatureID("old")
	assert.False(t, ok)
	id, ok := e.FeatureID("NEW")
	require.True(t, ok)
	assert.Equal(t, NodeID(1), id)
	assert.Equal(t, 1, e.Stats().Nodes)
}

func TestAddEvent_Immutable(t *testing.T) {
	e := newTestEngine()
	require.True(t, e.AddEvent(Event{ID: 7, Text: "first", Emotions: []string{"joy", "bogus"}}))
	assert.False(t, e.AddEvent(Event{ID: 7, Text: "second"}))

	e.AddFeature(7, "keyword")
	n, ok := e.Node(7)
	require.True(t, ok)
	assert.Equal(t, KindEvent, n.Kind)
	assert.Equal(t, "first", n.Text)
	assert.Equal(t, fingerprint.Joy, n.Emotions)
	_, ok = e.FeatureID("keyword")
	assert.False(t, ok)
}

func TestCompile_IdempotentAndInvalidated(t *testing.T) {
	e := newTestEngine()
	e.AddFeature(1, "k")
	assert.False(t, e.Compiled())

	e.Compile()
	require.True(t, e.Compiled())
	snap := e.snap
	e.Compile()
	assert.Same(t, snap, e.snap)

	e.AddEvent(Event{ID: 2, Text: "x"})
	assert.False(t, e.Compiled())
	e.Compile()
	assert.True(t, e.Compiled())
	assert.NotSame(t, snap, e.snap)
}

func TestCompile_DanglingEdgesTolerated(t *testing.T) {
	e := newTestEngine()
	e.AddFeature(1, "alpha")
	e.AddEvent(Event{ID: 10, Text: "alpha event"})
	e.AddEdge(1, 10, 1)
	e.AddEdge(1, 999, 1)
	e.AddEdge(998, 10, 1)
	e.Compile()

	assert.Equal(t, 2, e.Stats().DanglingEdges)
	// root, a, l, p, h, a
	assert.Equal(t, 6, e.Stats().AutomatonStates)
	// dangling edges do not count towards the hub penalty
	assert.Equal(t, 1.0, e.snap.penalty[e.snap.slot[10]])

	var res Result
	require.NotPanics(t, func() { res = e.Retrieve("alpha", 5) })
	require.Len(t, res.Hits, 1)
	assert.Equal(t, NodeID(10), res.Hits[0].NodeID)
}

func TestHubPenalty(t *testing.T) {
	assert.Equal(t, 1.0, hubPenalty(0))
	assert.Equal(t, 1.0, hubPenalty(1))
	assert.InDelta(t, 0.5, hubPenalty(10), 1e-12)
	assert.InDelta(t, 1.0/3, hubPenalty(100), 1e-12)
}

func TestCompile_Indices(t *testing.T) {
	e := newTestEngine()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	e.AddEvent(Event{ID: 1, Text: "a", Timestamp: ts, Location: "上海", Emotions: []string{"joy", "fear"}})
	e.AddEvent(Event{ID: 2, Text: "b", Type: fingerprint.TypePerson})
	e.AddEvent(Event{ID: 3, Text: "c", Timestamp: ts, Location: "上海"})
	e.Compile()

	h := fingerprint.SpatioTemporalHash(ts, "上海")
	assert.Equal(t, []int32{0, 2}, e.snap.st[h])
	assert.Equal(t, []int32{0, 2}, e.snap.stEvents)
	assert.Equal(t, []int32{0}, e.snap.affective[0])
	assert.Equal(t, []int32{0}, e.snap.affective[3])
	assert.Equal(t, []int32{0}, e.snap.emoEvents)
	assert.Equal(t, []int32{1}, e.snap.persons)
}

func TestTemporalBackbone(t *testing.T) {
	e := newTestEngine()
	e.AddEvent(Event{ID: 1, Text: "late", Timestamp: 300})
	e.AddEvent(Event{ID: 2, Text: "early", Timestamp: 100})
	e.AddEvent(Event{ID: 3, Text: "middle", Timestamp: 200})
	e.AddEvent(Event{ID: 4, Text: "undated"})
	e.AddEvent(Event{ID: 5, Text: "also middle", Timestamp: 200})
	e.AddFeature(6, "feature")
	e.BuildTemporalBackbone()

	assert.Equal(t, []NodeID{2, 3, 5, 1}, e.Timeline())

	p, ok := e.Prev(3)
	require.True(t, ok)
	assert.Equal(t, NodeID(2), p)
	n, ok := e.Next(5)
	require.True(t, ok)
	assert.Equal(t, NodeID(1), n)

	_, ok = e.Prev(2)
	assert.False(t, ok)
	_, ok = e.Next(1)
	assert.False(t, ok)
	_, ok = e.Next(4)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	e := newTestEngine()
	e.AddOntologyEdge("a", "b", 1, true)
	e.AddEvent(Event{ID: 1, Text: "x", Timestamp: 5})
	e.Compile()
	e.Clear()

	assert.Equal(t, Stats{}, e.Stats())
	assert.False(t, e.Compiled())
	assert.Empty(t, e.Timeline())
	assert.Equal(t, StatusNotReady, e.Retrieve("a", 3).Status)

	e.AddOntologyEdge("c", "d", 1, false)
	id, _ := e.FeatureID("c")
	assert.Equal(t, NodeID(-1), id)
}

func TestDecay(t *testing.T) {
	p := DefaultParams()
	now := testNow.Unix()

	assert.Equal(t, 1.0, decay(now, 0, p))
	assert.Equal(t, 1.0, decay(now, now+3600, p))
	assert.Equal(t, 1.0, decay(now, now, p))
	assert.InDelta(t, math.Exp(-86400.0/31536000), decay(now, now-86400, p), 1e-12)
	assert.Equal(t, 0.8, decay(now, now-31536000, p))
	assert.Equal(t, 0.8, decay(now, 1, p))
}
