// Package engine implements the PEDSA retrieval engine: a two-layer weighted
// graph of keyword features and knowledge events, indexed by composite
// fingerprints, over which activation energy diffuses to rank events for a
// query.
//
// An Engine is built by ingestion calls, frozen by Compile and then queried
// with Retrieve or RetrieveEnhanced. It has no locks: ingestion must not
// run concurrently with anything else, while retrievals on a compiled
// engine may run concurrently.
package engine

import (
	"strings"
	"time"

	"github.com/pedsa/pedsa/pkg/fingerprint"
)

// Engine holds the graph store and, once compiled, the derived indices.
type Engine struct {
	params Params
	clock  func() time.Time
	log    Logger

	nodes    map[NodeID]*Node
	order    []NodeID
	keywords map[string]NodeID
	nextAuto NodeID

	memory   edgeSet
	ontology edgeSet

	prev     map[NodeID]NodeID
	next     map[NodeID]NodeID
	timeline []NodeID

	snap *compiled
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		params: DefaultParams(),
		clock:  time.Now,
		log:    nopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.nodes = make(map[NodeID]*Node)
	e.order = nil
	e.keywords = make(map[string]NodeID)
	e.nextAuto = -1
	e.memory = newEdgeSet()
	e.ontology = newEdgeSet()
	e.prev = make(map[NodeID]NodeID)
	e.next = make(map[NodeID]NodeID)
	e.timeline = nil
	e.snap = nil
}

// Params returns the engine's tunables.
func (e *Engine) Params() Params {
	return e.params
}

// Clear drops every node, edge and index.
func (e *Engine) Clear() {
	e.reset()
}

// normalizeKeyword case-folds a keyword or query.
func normalizeKeyword(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AddFeature adds a keyword node. Re-adding an existing feature id moves
// it to the new keyword. Ids already taken by events are ignored.
func (e *Engine) AddFeature(id NodeID, keyword string) {
	kw := normalizeKeyword(keyword)
	if n, ok := e.nodes[id]; ok {
		if n.Kind != KindFeature {
			return
		}
		if cur, ok := e.keywords[n.Keyword]; ok && cur == id {
			delete(e.keywords, n.Keyword)
		}
		n.Keyword = kw
		n.Fingerprint = fingerprint.Compose(kw, 0, "", 0, fingerprint.TypeUnknown)
	} else {
		e.insert(&Node{
			ID:          id,
			Kind:        KindFeature,
			Keyword:     kw,
			Fingerprint: fingerprint.Compose(kw, 0, "", 0, fingerprint.TypeUnknown),
		})
	}
	if kw != "" {
		e.keywords[kw] = id
	}
	e.invalidate()
}

// AddEvent adds a knowledge fragment. It reports false when the id is
// already in use; events are immutable once added.
func (e *Engine) AddEvent(ev Event) bool {
	if _, ok := e.nodes[ev.ID]; ok {
		return false
	}
	emotions := fingerprint.ParseEmotions(ev.Emotions)
	e.insert(&Node{
		ID:          ev.ID,
		Kind:        KindEvent,
		Fingerprint: fingerprint.Compose(ev.Text, ev.Timestamp, ev.Location, emotions, ev.Type),
		Text:        ev.Text,
		Timestamp:   ev.Timestamp,
		Location:    ev.Location,
		Emotions:    emotions,
		Type:        ev.Type,
		Ref:         ev.Ref,
	})
	e.invalidate()
	return true
}

// AddEdge adds a directed memory edge. Endpoints need not exist yet;
// edges to unknown ids are skipped at traversal. Re-adding a pair keeps
// the larger weight.
func (e *Engine) AddEdge(src, tgt NodeID, weight float64) {
	e.memory.put(src, tgt, Quantize(weight))
	e.invalidate()
}

// AddOntologyEdge relates two keywords, creating feature nodes for them
// as needed. With equality set the reverse edge is added too.
func (e *Engine) AddOntologyEdge(src, tgt string, weight float64, equality bool) {
	s, ok := e.ensureFeature(src)
	if !ok {
		return
	}
	t, ok := e.ensureFeature(tgt)
	if !ok {
		return
	}
	w := Quantize(weight)
	e.ontology.put(s, t, w)
	if equality {
		e.ontology.put(t, s, w)
	}
	e.invalidate()
}

// Tag links keyword to an event with a feature→event memory edge,
// creating the feature if the keyword is new.
func (e *Engine) Tag(eventID NodeID, keyword string, weight float64) {
	f, ok := e.ensureFeature(keyword)
	if !ok {
		return
	}
	e.AddEdge(f, eventID, weight)
}

// Node returns a copy of the node with the given id.
func (e *Engine) Node(id NodeID) (Node, bool) {
	n, ok := e.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// FeatureID returns the feature currently bound to keyword.
func (e *Engine) FeatureID(keyword string) (NodeID, bool) {
	id, ok := e.keywords[normalizeKeyword(keyword)]
	return id, ok
}

func (e *Engine) ensureFeature(keyword string) (NodeID, bool) {
	kw := normalizeKeyword(keyword)
	if kw == "" {
		return 0, false
	}
	if id, ok := e.keywords[kw]; ok {
		return id, true
	}
	id := e.nextAuto
	for {
		if _, taken := e.nodes[id]; !taken {
			break
		}
		id--
	}
	e.nextAuto = id - 1
	e.AddFeature(id, kw)
	return id, true
}

func (e *Engine) insert(n *Node) {
	e.nodes[n.ID] = n
	e.order = append(e.order, n.ID)
}

func (e *Engine) invalidate() {
	e.snap = nil
}

type edge struct {
	src, tgt NodeID
	weight   Weight
}

// edgeSet keeps edges in insertion order with at most one edge per pair.
type edgeSet struct {
	edges []edge
	index map[[2]NodeID]int
}

func newEdgeSet() edgeSet {
	return edgeSet{index: make(map[[2]NodeID]int)}
}

func (s *edgeSet) put(src, tgt NodeID, w Weight) {
	key := [2]NodeID{src, tgt}
	if i, ok := s.index[key]; ok {
		if w > s.edges[i].weight {
			s.edges[i].weight = w
		}
		return
	}
	s.index[key] = len(s.edges)
	s.edges = append(s.edges, edge{src: src, tgt: tgt, weight: w})
}

func (s *edgeSet) weight(src, tgt NodeID) (Weight, bool) {
	i, ok := s.index[[2]NodeID{src, tgt}]
	if !ok {
		return 0, false
	}
	return s.edges[i].weight, true
}
