package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pedsa/pedsa/pkg/engine"
)

func (h *Hub) cached(ctx context.Context, key string) (*Result, bool) {
	raw, ok := h.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		h.log.Warn("discarding unreadable cached result", "key", key, "error", err)
		return nil, false
	}
	if res.Hits == nil {
		res.Hits = []Hit{}
	}
	res.Cached = true
	return &res, true
}

func (h *Hub) storeCached(ctx context.Context, key string, res *Result) {
	raw, err := json.Marshal(res)
	if err != nil {
		h.log.Warn("result not cacheable", "error", err)
		return
	}
	h.cache.Set(ctx, key, raw)
}

// enhancedKey is the canonical form of the parts of q that shape a
// result. Weights go through strconv so every query has a distinct key,
// NaN included.
func enhancedKey(q engine.EnhancedQuery) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(q.OriginalQuery))
	for _, t := range q.Terms {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(t.Term))
		b.WriteByte('=')
		writeWeight(&b, t.Weight)
	}
	b.WriteString("|dims")
	for _, w := range []*float64{
		q.DimensionWeights.Temporal,
		q.DimensionWeights.Spatial,
		q.DimensionWeights.Emotional,
		q.DimensionWeights.Causal,
		q.DimensionWeights.Character,
		q.DimensionWeights.Thematic,
	} {
		b.WriteByte(',')
		writeWeight(&b, w)
	}
	return b.String()
}

func writeWeight(b *strings.Builder, w *float64) {
	if w == nil {
		b.WriteByte('-')
		return
	}
	b.WriteString(strconv.FormatFloat(*w, 'g', -1, 64))
}

func snapshotAttributes(s Snapshot) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pedsa.snapshot.version", s.Version),
		attribute.Int("pedsa.snapshot.events", s.Stats.Events),
		attribute.Int("pedsa.snapshot.features", s.Stats.Features),
		attribute.Int("pedsa.snapshot.memory_edges", s.Stats.MemoryEdges),
		attribute.Int("pedsa.snapshot.ontology_edges", s.Stats.OntologyEdges),
	}
}

func retrievalAttributes(mode string, res *Result) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("pedsa.retrieval.mode", mode),
		attribute.String("pedsa.retrieval.status", string(res.Status)),
		attribute.Int("pedsa.retrieval.hits", len(res.Hits)),
		attribute.Int("pedsa.retrieval.activated_keywords", res.Stats.ActivatedKeywords),
		attribute.Bool("pedsa.retrieval.cached", res.Cached),
	}
}
