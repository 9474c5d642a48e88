package engine

import (
	"math"
	"sort"

	"github.com/pedsa/pedsa/pkg/fingerprint"
	"github.com/pedsa/pedsa/pkg/matcher"
)

type arc struct {
	to     int32
	weight float64
}

// compiled is the frozen, slot-indexed form of the graph that retrieval
// runs against. Slots follow insertion order.
type compiled struct {
	nodes []*Node
	slot  map[NodeID]int32

	memAdj  [][]arc
	ontAdj  [][]arc
	penalty []float64

	st        map[uint16][]int32
	affective [fingerprint.EmotionCount][]int32
	stEvents  []int32
	emoEvents []int32
	persons   []int32

	automaton *matcher.Automaton

	memoryEdges   int
	ontologyEdges int
	dangling      int
}

// Compile builds the keyword automaton, the in-degree table, the
// spatio-temporal and affective indices and the temporal backbone.
// Calling it again without intervening ingestion is a no-op.
func (e *Engine) Compile() {
	if e.snap != nil {
		return
	}

	c := &compiled{
		nodes: make([]*Node, len(e.order)),
		slot:  make(map[NodeID]int32, len(e.order)),
		st:    make(map[uint16][]int32),
	}
	for i, id := range e.order {
		n := e.nodes[id]
		c.nodes[i] = n
		c.slot[id] = int32(i)
	}

	inDegree := make([]int, len(c.nodes))
	c.memAdj, c.memoryEdges = c.adjacency(e.memory, inDegree)
	c.ontAdj, c.ontologyEdges = c.adjacency(e.ontology, inDegree)
	c.dangling = len(e.memory.edges) + len(e.ontology.edges) - c.memoryEdges - c.ontologyEdges

	c.penalty = make([]float64, len(c.nodes))
	for i, d := range inDegree {
		c.penalty[i] = hubPenalty(d)
	}

	for i, n := range c.nodes {
		if n.Kind != KindEvent {
			continue
		}
		s := int32(i)
		if h := n.Fingerprint.SpatioTemporal(); h != 0 {
			c.st[h] = append(c.st[h], s)
			c.stEvents = append(c.stEvents, s)
		}
		if n.Emotions != 0 {
			for _, b := range n.Emotions.Bits() {
				c.affective[b] = append(c.affective[b], s)
			}
			c.emoEvents = append(c.emoEvents, s)
		}
		if n.Type == fingerprint.TypePerson {
			c.persons = append(c.persons, s)
		}
	}

	keywords := make([]string, 0, len(e.keywords))
	for kw := range e.keywords {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	patterns := make([]matcher.Pattern, len(keywords))
	for i, kw := range keywords {
		patterns[i] = matcher.Pattern{Text: kw, ID: int64(e.keywords[kw])}
	}
	c.automaton = matcher.New(patterns)

	e.BuildTemporalBackbone()
	e.snap = c

	e.log.Debug("engine compiled",
		"nodes", len(c.nodes),
		"keywords", c.automaton.Len(),
		"automaton_states", c.automaton.States(),
		"memory_edges", c.memoryEdges,
		"ontology_edges", c.ontologyEdges,
		"dangling_edges", c.dangling,
	)
}

// adjacency converts an edge set to slot form, counting in-degrees.
// Edges with an unknown endpoint are dropped.
func (c *compiled) adjacency(set edgeSet, inDegree []int) ([][]arc, int) {
	adj := make([][]arc, len(c.nodes))
	kept := 0
	for _, ed := range set.edges {
		s, ok := c.slot[ed.src]
		if !ok {
			continue
		}
		t, ok := c.slot[ed.tgt]
		if !ok {
			continue
		}
		adj[s] = append(adj[s], arc{to: t, weight: ed.weight.Float()})
		inDegree[t]++
		kept++
	}
	return adj, kept
}

// hubPenalty dampens energy flowing into nodes with many incoming edges.
func hubPenalty(inDegree int) float64 {
	if inDegree <= 1 {
		return 1
	}
	return 1 / (1 + math.Log10(float64(inDegree)))
}

// Compiled reports whether the engine has an up-to-date compiled snapshot.
func (e *Engine) Compiled() bool {
	return e.snap != nil
}

// Stats describes the size of the graph.
type Stats struct {
	Nodes         int  `json:"nodes"`
	Features      int  `json:"features"`
	Events        int  `json:"events"`
	Keywords      int  `json:"keywords"`
	MemoryEdges   int  `json:"memory_edges"`
	OntologyEdges int  `json:"ontology_edges"`
	DanglingEdges int  `json:"dangling_edges"`
	Timeline      int  `json:"timeline"`
	Compiled      bool `json:"compiled"`

	// AutomatonStates is the keyword trie size of the compiled snapshot.
	AutomatonStates int `json:"automaton_states,omitempty"`
}

// Stats returns graph counters. DanglingEdges and AutomatonStates are
// only known after Compile.
func (e *Engine) Stats() Stats {
	s := Stats{
		Nodes:         len(e.nodes),
		Keywords:      len(e.keywords),
		MemoryEdges:   len(e.memory.edges),
		OntologyEdges: len(e.ontology.edges),
		Timeline:      len(e.timeline),
		Compiled:      e.snap != nil,
	}
	for _, n := range e.nodes {
		switch n.Kind {
		case KindFeature:
			s.Features++
		case KindEvent:
			s.Events++
		}
	}
	if e.snap != nil {
		s.DanglingEdges = e.snap.dangling
		s.AutomatonStates = e.snap.automaton.States()
	}
	return s
}
