package engine

import (
	"math"
	"strings"

	"github.com/pedsa/pedsa/pkg/fingerprint"
)

// QueryTerm is one weighted term of an enhanced query. A nil weight counts
// as 1; negative weights count as 0.
type QueryTerm struct {
	Term   string   `json:"term" yaml:"term"`
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Source string   `json:"source,omitempty" yaml:"source,omitempty"`
}

// EffectiveWeight returns the weight the term contributes.
func (t QueryTerm) EffectiveWeight() float64 {
	if t.Weight == nil {
		return 1
	}
	w := *t.Weight
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	return w
}

// DimensionWeights bias which indices receive extra energy. Nil fields
// contribute nothing. Causal and Thematic are accepted but unused.
type DimensionWeights struct {
	Temporal  *float64 `json:"temporal,omitempty" yaml:"temporal,omitempty"`
	Spatial   *float64 `json:"spatial,omitempty" yaml:"spatial,omitempty"`
	Emotional *float64 `json:"emotional,omitempty" yaml:"emotional,omitempty"`
	Causal    *float64 `json:"causal,omitempty" yaml:"causal,omitempty"`
	Character *float64 `json:"character,omitempty" yaml:"character,omitempty"`
	Thematic  *float64 `json:"thematic,omitempty" yaml:"thematic,omitempty"`
}

func dim(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || *v < 0 {
		return 0
	}
	return math.Min(*v, 1)
}

// EnhancedQuery is a pre-weighted multi-term query produced by an external
// analysis stage.
type EnhancedQuery struct {
	OriginalQuery    string           `json:"original_query" yaml:"original_query"`
	Terms            []QueryTerm      `json:"terms" yaml:"terms"`
	DimensionWeights DimensionWeights `json:"dimension_weights" yaml:"dimension_weights"`
	TotalTerms       int              `json:"total_terms,omitempty" yaml:"total_terms,omitempty"`
}

// RetrieveEnhanced ranks events for a multi-term query. Term weights
// accumulate on every feature they match; dimension weights above the
// threshold add energy to the indexed events and strengthen the matching
// refinement boosts. With no usable terms it behaves exactly like
// Retrieve(q.OriginalQuery, topK).
func (e *Engine) RetrieveEnhanced(q EnhancedQuery, topK int) Result {
	checkTopK(topK)

	terms := make([]QueryTerm, 0, len(q.Terms))
	for _, t := range q.Terms {
		if strings.TrimSpace(t.Term) != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return e.Retrieve(q.OriginalQuery, topK)
	}

	c := e.snap
	if c == nil {
		return notReady()
	}
	start := e.clock()

	ps := e.newPass(c)
	qfp := fingerprint.ForQuery(q.OriginalQuery)

	activated := ps.activateTerms(terms)
	ps.resonate(qfp)
	ps.boostDimensions(q.DimensionWeights)
	ps.diffuseOntology()
	ps.normalize()
	ps.diffuseMemory()
	hits := ps.rank(qfp, e.params.enhancedBoosts(q.DimensionWeights), e.clock().Unix(), topK)

	return Result{
		Status: StatusOK,
		Hits:   hits,
		Stats: RetrievalStats{
			RetrieveTimeMs:    elapsedMs(start, e.clock()),
			ActivatedKeywords: activated,
			TotalResults:      len(hits),
			TermsUsed:         len(terms),
		},
	}
}

// activateTerms adds each term's weight to every distinct feature the term
// matches and returns the number of distinct features that received
// energy. Zero-weight terms match nothing.
func (ps *pass) activateTerms(terms []QueryTerm) int {
	hit := make(map[int32]struct{})
	for _, t := range terms {
		w := t.EffectiveWeight()
		if w <= 0 {
			continue
		}
		for _, id := range ps.c.automaton.MatchedIDs(normalizeKeyword(t.Term)) {
			s, ok := ps.c.slot[NodeID(id)]
			if !ok {
				continue
			}
			ps.energy[s] += w
			hit[s] = struct{}{}
		}
	}
	return len(hit)
}

// boostDimensions adds energy to indexed events for every dimension above
// the threshold. Nodes active before this step get the larger boost.
func (ps *pass) boostDimensions(dw DimensionWeights) {
	threshold := ps.p.DimensionThreshold
	wasActive := make([]bool, len(ps.energy))
	for i, v := range ps.energy {
		wasActive[i] = v > 0
	}
	add := func(slots []int32, active, inactive, weight float64) {
		for _, s := range slots {
			if wasActive[s] {
				ps.energy[s] += active * weight
			} else {
				ps.energy[s] += inactive * weight
			}
		}
	}

	if st := math.Max(dim(dw.Temporal), dim(dw.Spatial)); st > threshold {
		add(ps.c.stEvents, temporalDimActive, temporalDimInactive, st)
	}
	if em := dim(dw.Emotional); em > threshold {
		add(ps.c.emoEvents, emotionalDimActive, emotionalDimInactive, em)
	}
	if ch := dim(dw.Character); ch > threshold {
		add(ps.c.persons, characterDimActive, characterDimInactive, ch)
	}
}

// enhancedBoosts strengthens the refinement boosts whose dimension weight
// is high.
func (p Params) enhancedBoosts(dw DimensionWeights) boostFactors {
	f := p.boosts()
	if math.Max(dim(dw.Temporal), dim(dw.Spatial)) >= p.StrongDimension {
		f.temporal *= p.StrongBoostFactor
	}
	if dim(dw.Emotional) >= p.StrongDimension {
		f.emotion *= p.StrongBoostFactor
	}
	if dim(dw.Character) >= p.StrongDimension {
		f.typ *= p.StrongBoostFactor
	}
	return f
}
