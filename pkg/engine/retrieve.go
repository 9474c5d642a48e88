package engine

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/pedsa/pedsa/pkg/fingerprint"
)

// Status tells a successful retrieval apart from the not-ready soft fail.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotReady Status = "not_ready"
)

// Hit is one ranked event.
type Hit struct {
	NodeID    NodeID  `json:"node_id"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
	Timestamp int64   `json:"timestamp"`
	Ref       any     `json:"ref,omitempty"`
}

// RetrievalStats describes one retrieval pass.
type RetrievalStats struct {
	RetrieveTimeMs    float64 `json:"retrieve_time_ms"`
	ActivatedKeywords int     `json:"activated_keywords"`
	TotalResults      int     `json:"total_results"`
	TermsUsed         int     `json:"terms_used,omitempty"`
}

// Result is the outcome of a retrieval. A not-ready result has no hits and
// zero stats.
type Result struct {
	Status Status         `json:"status"`
	Hits   []Hit          `json:"hits"`
	Stats  RetrievalStats `json:"stats"`
}

// OK reports whether the retrieval ran against a compiled snapshot.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

func notReady() Result {
	return Result{Status: StatusNotReady, Hits: []Hit{}}
}

// boostFactors are the refinement weights applied to the top candidates.
type boostFactors struct {
	semantic, temporal, emotion, typ float64
}

func (p Params) boosts() boostFactors {
	return boostFactors{
		semantic: p.SemanticBoost,
		temporal: p.TemporalBoost,
		emotion:  p.EmotionBoost,
		typ:      p.TypeBoost,
	}
}

// pass carries the energy map of a single retrieval.
type pass struct {
	c      *compiled
	p      Params
	energy []float64
}

func checkTopK(topK int) {
	if topK < 0 {
		panic(fmt.Sprintf("engine: negative topK %d", topK))
	}
}

// Retrieve ranks events for a free-text query. Before Compile it returns
// the not-ready result. A negative topK panics.
func (e *Engine) Retrieve(query string, topK int) Result {
	checkTopK(topK)
	c := e.snap
	if c == nil {
		return notReady()
	}
	start := e.clock()

	ps := e.newPass(c)
	qfp := fingerprint.ForQuery(query)

	activated := ps.activate(query)
	ps.resonate(qfp)
	ps.diffuseOntology()
	ps.normalize()
	ps.diffuseMemory()
	hits := ps.rank(qfp, e.params.boosts(), e.clock().Unix(), topK)

	return Result{
		Status: StatusOK,
		Hits:   hits,
		Stats: RetrievalStats{
			RetrieveTimeMs:    elapsedMs(start, e.clock()),
			ActivatedKeywords: activated,
			TotalResults:      len(hits),
		},
	}
}

func (e *Engine) newPass(c *compiled) *pass {
	return &pass{c: c, p: e.params, energy: make([]float64, len(c.nodes))}
}

func elapsedMs(start, end time.Time) float64 {
	return float64(end.Sub(start)) / float64(time.Millisecond)
}

// activate gives every feature matched in query the keyword energy and
// returns how many distinct features matched.
func (ps *pass) activate(query string) int {
	n := 0
	for _, id := range ps.c.automaton.MatchedIDs(normalizeKeyword(query)) {
		s, ok := ps.c.slot[NodeID(id)]
		if !ok {
			continue
		}
		ps.energy[s] = ps.p.KeywordEnergy
		n++
	}
	return n
}

// resonate raises events sharing the query's spatio-temporal bucket or any
// of its emotion bits to the resonance floor.
func (ps *pass) resonate(qfp fingerprint.Fingerprint) {
	if h := qfp.SpatioTemporal(); h != 0 {
		for _, s := range ps.c.st[h] {
			ps.raise(s, ps.p.SpatioTemporalResonance)
		}
	}
	for _, b := range qfp.Affective().Bits() {
		for _, s := range ps.c.affective[b] {
			ps.raise(s, ps.p.AffectiveResonance)
		}
	}
}

func (ps *pass) raise(s int32, v float64) {
	if v > ps.energy[s] {
		ps.energy[s] = v
	}
}

// active returns the slots with positive energy.
func (ps *pass) active() []int32 {
	var out []int32
	for i, v := range ps.energy {
		if v > 0 {
			out = append(out, int32(i))
		}
	}
	return out
}

// diffuseOntology spreads energy one hop along ontology edges from the
// nodes active at the start of the step. Targets keep the maximum of their
// energy and each incoming contribution.
func (ps *pass) diffuseOntology() {
	sources := ps.active()
	seed := make([]float64, len(sources))
	for i, s := range sources {
		seed[i] = ps.energy[s]
	}
	for i, s := range sources {
		for _, a := range ps.c.ontAdj[s] {
			v := seed[i] * a.weight * ps.p.OntologyDamping * ps.c.penalty[a.to]
			if v < ps.p.OntologyFloor {
				continue
			}
			ps.raise(a.to, v)
		}
	}
}

// normalize scales the energy map down so it sums to the budget.
func (ps *pass) normalize() {
	total := floats.Sum(ps.energy)
	if ps.p.EnergyBudget > 0 && total > ps.p.EnergyBudget {
		floats.Scale(ps.p.EnergyBudget/total, ps.energy)
	}
}

// diffuseMemory spreads energy one hop along memory edges from the
// highest-energy nodes. Contributions accumulate.
func (ps *pass) diffuseMemory() {
	seeds := ps.active()
	sort.SliceStable(seeds, func(i, j int) bool {
		return ps.energy[seeds[i]] > ps.energy[seeds[j]]
	})
	if ps.p.SeedCap > 0 && len(seeds) > ps.p.SeedCap {
		seeds = seeds[:ps.p.SeedCap]
	}
	seed := make([]float64, len(seeds))
	for i, s := range seeds {
		seed[i] = ps.energy[s]
	}
	for i, s := range seeds {
		for _, a := range ps.c.memAdj[s] {
			v := seed[i] * a.weight * ps.p.MemoryDamping * ps.c.penalty[a.to]
			if v < ps.p.MemoryFloor {
				continue
			}
			ps.energy[a.to] += v
		}
	}
}

type candidate struct {
	slot  int32
	score float64
}

// rank selects activated events, refines the strongest with fingerprint
// similarity and time decay, and returns the topK by score. Ties keep
// insertion order.
func (ps *pass) rank(qfp fingerprint.Fingerprint, f boostFactors, now int64, topK int) []Hit {
	var cands []candidate
	for i, v := range ps.energy {
		if v > 0 && ps.c.nodes[i].Kind == KindEvent {
			cands = append(cands, candidate{slot: int32(i), score: v})
		}
	}
	byScore := func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].slot < cands[j].slot
	}
	sort.Slice(cands, byScore)

	limit := len(cands)
	if ps.p.RefineCap >= 0 && limit > ps.p.RefineCap {
		limit = ps.p.RefineCap
	}
	for i := 0; i < limit; i++ {
		n := ps.c.nodes[cands[i].slot]
		cands[i].score = cands[i].score*decay(now, n.Timestamp, ps.p) + refineBoost(qfp, n, f)
	}
	sort.Slice(cands, byScore)

	if len(cands) > topK {
		cands = cands[:topK]
	}
	hits := make([]Hit, len(cands))
	for i, cd := range cands {
		n := ps.c.nodes[cd.slot]
		hits[i] = Hit{
			NodeID:    n.ID,
			Score:     cd.score,
			Content:   n.Text,
			Timestamp: n.Timestamp,
			Ref:       n.Ref,
		}
	}
	return hits
}

func refineBoost(qfp fingerprint.Fingerprint, n *Node, f boostFactors) float64 {
	efp := n.Fingerprint
	boost := f.semantic * fingerprint.Similarity(qfp, efp, fingerprint.SemanticMask)
	if qfp.SpatioTemporal() != 0 {
		boost += f.temporal * fingerprint.Similarity(qfp, efp, fingerprint.SpatioTemporalMask)
	}
	if qfp.Affective()&efp.Affective() != 0 {
		boost += f.emotion
	}
	if qfp.Type() != fingerprint.TypeUnknown {
		boost += f.typ * fingerprint.Similarity(qfp, efp, fingerprint.TypeMask)
	}
	return boost
}
