package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/pedsa/pedsa/pkg/cache"
	"github.com/pedsa/pedsa/pkg/corpus"
	"github.com/pedsa/pedsa/pkg/engine"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/metrics"
	"github.com/pedsa/pedsa/pkg/storage"
)

// snapshot is a compiled engine plus its description. It is never
// mutated after it is published.
type snapshot struct {
	info Snapshot
	eng  *engine.Engine
}

// Hub owns the corpus store and the live snapshot. Writes go to the store
// and mark the hub dirty; Compile rebuilds a fresh engine from the store
// and swaps it in atomically, so retrievals never see a partial build.
type Hub struct {
	cfg   HubConfig
	store storage.Storage

	log     logger.Logger
	cache   cache.Cache
	metrics *metrics.Manager
	tracer  trace.Tracer
	clock   func() time.Time

	observers []Observer

	// mu serializes snapshot builds and guards params.
	mu     sync.Mutex
	params engine.Params

	current atomic.Pointer[snapshot]
	dirty   atomic.Bool
	started atomic.Bool

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub over store. Call Start before writing.
func NewHub(cfg HubConfig, store storage.Storage, opts ...HubOption) *Hub {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.TagWeight <= 0 {
		cfg.TagWeight = 1.0
	}
	if cfg.CompileDebounce <= 0 {
		cfg.CompileDebounce = 500 * time.Millisecond
	}

	h := &Hub{
		cfg:     cfg,
		store:   store,
		log:     logger.Nop(),
		cache:   cache.Nop{},
		metrics: metrics.NoOpManager(),
		tracer:  hubTracer(),
		clock:   time.Now,
		params:  cfg.Params,
		kick:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start seeds the store from the corpus file when it is empty, builds the
// first snapshot and, with auto-compile, starts the rebuild loop.
func (h *Hub) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return fmt.Errorf("memory hub already started")
	}

	h.log.Info("starting memory hub",
		"auto_compile", h.cfg.AutoCompile,
		"corpus_file", h.cfg.CorpusFile,
	)

	if h.cfg.CorpusFile != "" {
		if err := h.seed(ctx, h.cfg.CorpusFile); err != nil {
			h.started.Store(false)
			return err
		}
	}

	if _, err := h.Compile(ctx); err != nil {
		h.started.Store(false)
		return err
	}

	if h.cfg.AutoCompile {
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		h.cancel = cancel
		h.done = make(chan struct{})
		go h.compileLoop(loopCtx)
	}

	h.log.Info("memory hub started")
	return nil
}

// Stop stops the rebuild loop. The live snapshot stays readable.
func (h *Hub) Stop(ctx context.Context) error {
	if !h.started.CompareAndSwap(true, false) {
		return nil
	}

	h.log.Info("stopping memory hub")
	if h.cancel != nil {
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		h.cancel = nil
	}
	h.log.Info("memory hub stopped")
	return nil
}

func (h *Hub) seed(ctx context.Context, path string) error {
	_, total, err := h.store.ListEntries(ctx, &storage.EntryFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("memory: inspect store: %w", err)
	}
	if total > 0 {
		h.log.Info("store not empty, skipping corpus seed", "entries", total)
		return nil
	}

	f, err := corpus.Load(path)
	if err != nil {
		return fmt.Errorf("memory: seed corpus: %w", err)
	}
	for i := range f.Entries {
		if err := h.store.SaveEntry(ctx, &f.Entries[i]); err != nil {
			return fmt.Errorf("memory: seed entry %d: %w", f.Entries[i].ID, err)
		}
	}
	for i := range f.Relations {
		if err := h.store.SaveRelation(ctx, &f.Relations[i]); err != nil {
			return fmt.Errorf("memory: seed relation: %w", err)
		}
	}
	for i := range f.Links {
		if err := h.store.SaveLink(ctx, &f.Links[i]); err != nil {
			return fmt.Errorf("memory: seed link: %w", err)
		}
	}

	h.metrics.RecordIngest("entry", len(f.Entries))
	h.metrics.RecordIngest("relation", len(f.Relations))
	h.metrics.RecordIngest("link", len(f.Links))
	h.log.Info("seeded store from corpus",
		"path", path,
		"entries", len(f.Entries),
		"relations", len(f.Relations),
		"links", len(f.Links),
	)
	return nil
}

// Ingest stores or replaces an entry.
func (h *Hub) Ingest(ctx context.Context, e storage.Entry) error {
	if !h.started.Load() {
		return ErrHubNotStarted
	}
	if err := validateEntry(&e); err != nil {
		return err
	}
	if err := h.store.SaveEntry(ctx, &e); err != nil {
		return fmt.Errorf("memory: store entry %d: %w", e.ID, err)
	}
	h.metrics.RecordIngest("entry", 1)
	h.markDirty()
	return nil
}

// IngestBatch validates every entry before storing any of them. It
// returns the number stored, which is short of len(entries) only when
// the store fails part way.
func (h *Hub) IngestBatch(ctx context.Context, entries []storage.Entry) (int, error) {
	if !h.started.Load() {
		return 0, ErrHubNotStarted
	}

	var errs []error
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			errs = append(errs, fmt.Errorf("entries[%d]: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}

	stored := 0
	for i := range entries {
		if err := h.store.SaveEntry(ctx, &entries[i]); err != nil {
			h.metrics.RecordIngest("entry", stored)
			if stored > 0 {
				h.markDirty()
			}
			return stored, fmt.Errorf("memory: batch ingest failed at entry %d: %w", entries[i].ID, err)
		}
		stored++
	}
	h.metrics.RecordIngest("entry", stored)
	if stored > 0 {
		h.markDirty()
	}
	return stored, nil
}

// Relate stores an ontology relation between two keywords.
func (h *Hub) Relate(ctx context.Context, r storage.Relation) error {
	if !h.started.Load() {
		return ErrHubNotStarted
	}
	r.Source = strings.TrimSpace(r.Source)
	r.Target = strings.TrimSpace(r.Target)
	if r.Source == "" || r.Target == "" {
		return ErrInvalidRelation
	}
	if !validWeight(r.Weight) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, r.Weight)
	}
	if err := h.store.SaveRelation(ctx, &r); err != nil {
		return fmt.Errorf("memory: store relation: %w", err)
	}
	h.metrics.RecordIngest("relation", 1)
	h.markDirty()
	return nil
}

// Link stores a directed memory edge between two entries. Links to
// entries that do not exist are kept and ignored by snapshot builds.
func (h *Hub) Link(ctx context.Context, l storage.Link) error {
	if !h.started.Load() {
		return ErrHubNotStarted
	}
	if l.Source <= 0 || l.Target <= 0 {
		return ErrInvalidEntryID
	}
	if !validWeight(l.Weight) {
		return fmt.Errorf("%w: %v", ErrInvalidWeight, l.Weight)
	}
	if err := h.store.SaveLink(ctx, &l); err != nil {
		return fmt.Errorf("memory: store link: %w", err)
	}
	h.metrics.RecordIngest("link", 1)
	h.markDirty()
	return nil
}

// Forget deletes entries and the links touching them. Unknown ids are
// skipped; the count of removed entries is returned.
func (h *Hub) Forget(ctx context.Context, ids []int64) (int, error) {
	if !h.started.Load() {
		return 0, ErrHubNotStarted
	}

	removed := 0
	for _, id := range ids {
		err := h.store.DeleteEntry(ctx, id)
		var nf *storage.NotFoundError
		switch {
		case err == nil:
			removed++
		case errors.As(err, &nf):
			h.log.Debug("forget skipped unknown entry", "entry_id", id)
		default:
			h.finishForget(removed)
			return removed, fmt.Errorf("memory: forget entry %d: %w", id, err)
		}
	}
	h.finishForget(removed)
	return removed, nil
}

func (h *Hub) finishForget(removed int) {
	if removed == 0 {
		return
	}
	h.metrics.RecordIngest("forget", removed)
	h.markDirty()
}

// Compile builds a snapshot from the store and publishes it. Writes that
// land while it runs leave the hub dirty for the next build.
func (h *Hub) Compile(ctx context.Context) (Snapshot, error) {
	ctx, span := h.tracer.Start(ctx, spanCompile)
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	h.dirty.Store(false)

	f, err := h.load(ctx)
	if err != nil {
		h.dirty.Store(true)
		h.metrics.RecordCompile("error", time.Since(start))
		span.RecordError(err)
		return Snapshot{}, err
	}

	eng := engine.New(
		engine.WithParams(h.params),
		engine.WithClock(h.clock),
		engine.WithLogger(h.log),
	)
	corpus.Build(eng, f, h.cfg.TagWeight)

	snap := &snapshot{
		info: Snapshot{
			Version: uuid.NewString(),
			BuiltAt: h.clock().UTC(),
			Stats:   eng.Stats(),
		},
		eng: eng,
	}
	prev := h.current.Swap(snap)
	if prev != nil {
		h.cache.Purge(ctx)
	}

	elapsed := time.Since(start)
	st := snap.info.Stats
	h.metrics.RecordCompile("ok", elapsed)
	h.metrics.SetSnapshotSize(metrics.SnapshotSize{
		Features:      st.Features,
		Events:        st.Events,
		Keywords:      st.Keywords,
		MemoryEdges:   st.MemoryEdges,
		OntologyEdges: st.OntologyEdges,
	})
	span.SetAttributes(snapshotAttributes(snap.info)...)
	h.log.InfoContext(ctx, "snapshot compiled",
		"version", snap.info.Version,
		"events", st.Events,
		"features", st.Features,
		"memory_edges", st.MemoryEdges,
		"ontology_edges", st.OntologyEdges,
		"dangling_edges", st.DanglingEdges,
		"duration_ms", elapsed.Milliseconds(),
	)
	h.notify(EventSnapshotCompiled, snap.info)
	return snap.info, nil
}

func (h *Hub) load(ctx context.Context) (*corpus.File, error) {
	entries, _, err := h.store.ListEntries(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: list entries: %w", err)
	}
	relations, err := h.store.ListRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: list relations: %w", err)
	}
	links, err := h.store.ListLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: list links: %w", err)
	}

	f := &corpus.File{
		Entries:   make([]storage.Entry, len(entries)),
		Relations: make([]storage.Relation, len(relations)),
		Links:     make([]storage.Link, len(links)),
	}
	for i, e := range entries {
		f.Entries[i] = *e
	}
	for i, r := range relations {
		f.Relations[i] = *r
	}
	for i, l := range links {
		f.Links[i] = *l
	}
	return f, nil
}

// Retrieve runs a single-query retrieval against the live snapshot. A
// topK of zero uses the configured default. With no snapshot the result
// has status not_ready and no hits.
func (h *Hub) Retrieve(ctx context.Context, query string, topK int) (*Result, error) {
	ctx, span := h.tracer.Start(ctx, spanRetrieve)
	defer span.End()

	return h.retrieve(ctx, span, metrics.ModeSingle, topK, query,
		func(eng *engine.Engine, k int) engine.Result { return eng.Retrieve(query, k) })
}

// RetrieveEnhanced runs an enhanced retrieval against the live snapshot.
func (h *Hub) RetrieveEnhanced(ctx context.Context, q engine.EnhancedQuery, topK int) (*Result, error) {
	ctx, span := h.tracer.Start(ctx, spanRetrieveEnhanced)
	defer span.End()

	return h.retrieve(ctx, span, metrics.ModeEnhanced, topK, enhancedKey(q),
		func(eng *engine.Engine, k int) engine.Result { return eng.RetrieveEnhanced(q, k) })
}

func (h *Hub) retrieve(ctx context.Context, span trace.Span, mode string, topK int, key string, run func(*engine.Engine, int) engine.Result) (*Result, error) {
	if topK < 0 {
		return nil, ErrInvalidTopK
	}
	if topK == 0 {
		topK = h.cfg.DefaultTopK
	}
	start := time.Now()

	snap := h.current.Load()
	if snap == nil {
		res := notReady()
		h.metrics.RecordRetrieval(mode, string(res.Status), time.Since(start), 0, 0)
		span.SetAttributes(retrievalAttributes(mode, res)...)
		return res, nil
	}

	cacheKey := cache.Key(snap.info.Version, mode, strconv.Itoa(topK), key)
	if res, ok := h.cached(ctx, cacheKey); ok {
		h.metrics.RecordCacheHit()
		h.metrics.RecordRetrieval(mode, string(res.Status), time.Since(start), res.Stats.ActivatedKeywords, len(res.Hits))
		span.SetAttributes(retrievalAttributes(mode, res)...)
		return res, nil
	}
	h.metrics.RecordCacheMiss()

	res := convert(snap, run(snap.eng, topK))
	h.storeCached(ctx, cacheKey, res)

	h.metrics.RecordRetrieval(mode, string(res.Status), time.Since(start), res.Stats.ActivatedKeywords, len(res.Hits))
	span.SetAttributes(retrievalAttributes(mode, res)...)
	h.log.DebugContext(ctx, "retrieval finished",
		"mode", mode,
		"hits", len(res.Hits),
		"activated_keywords", res.Stats.ActivatedKeywords,
		"retrieve_time_ms", res.Stats.RetrieveTimeMs,
	)
	return res, nil
}

func convert(snap *snapshot, r engine.Result) *Result {
	res := &Result{
		Status:  r.Status,
		Version: snap.info.Version,
		Hits:    make([]Hit, len(r.Hits)),
		Stats:   r.Stats,
	}
	for i, hit := range r.Hits {
		entry, _ := hit.Ref.(*storage.Entry)
		res.Hits[i] = Hit{
			ID:        int64(hit.NodeID),
			Score:     hit.Score,
			Content:   hit.Content,
			Timestamp: hit.Timestamp,
			Entry:     entry.Clone(),
		}
	}
	return res
}

// Entry returns a stored entry.
func (h *Hub) Entry(ctx context.Context, id int64) (*storage.Entry, error) {
	if id <= 0 {
		return nil, ErrInvalidEntryID
	}
	e, err := h.store.GetEntry(ctx, id)
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("memory: get entry %d: %w", id, err)
	}
	return e, nil
}

// List returns stored entries in id order with the total count.
func (h *Hub) List(ctx context.Context, limit, offset int) ([]*storage.Entry, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	entries, total, err := h.store.ListEntries(ctx, &storage.EntryFilter{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, fmt.Errorf("memory: list entries: %w", err)
	}
	return entries, total, nil
}

// Timeline returns the entries of the live snapshot in chronological
// order. Entries without a timestamp are not on the timeline.
func (h *Hub) Timeline(ctx context.Context) []*storage.Entry {
	snap := h.current.Load()
	if snap == nil {
		return []*storage.Entry{}
	}
	ids := snap.eng.Timeline()
	out := make([]*storage.Entry, 0, len(ids))
	for _, id := range ids {
		n, ok := snap.eng.Node(id)
		if !ok {
			continue
		}
		if e, ok := n.Ref.(*storage.Entry); ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Stats reports the store size and the live snapshot.
func (h *Hub) Stats(ctx context.Context) (*HubStats, error) {
	_, total, err := h.store.ListEntries(ctx, &storage.EntryFilter{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("memory: get stats: %w", err)
	}
	stats := &HubStats{
		Entries:     total,
		Dirty:       h.dirty.Load(),
		AutoCompile: h.cfg.AutoCompile,
		Params:      h.Params(),
	}
	if snap := h.current.Load(); snap != nil {
		info := snap.info
		stats.Snapshot = &info
	}
	return stats, nil
}

// Ready reports whether a snapshot has been published.
func (h *Hub) Ready() bool {
	return h.current.Load() != nil
}

// Snapshot returns the live snapshot description.
func (h *Hub) Snapshot() (Snapshot, bool) {
	snap := h.current.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return snap.info, true
}

// Params returns the parameters the next build will use.
func (h *Hub) Params() engine.Params {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params
}

// UpdateParams replaces the engine parameters. They take effect with the
// next snapshot build, which auto-compile schedules right away.
func (h *Hub) UpdateParams(p engine.Params) {
	h.mu.Lock()
	h.params = p
	h.mu.Unlock()
	h.log.Info("engine params updated")
	h.notify(EventParamsUpdated, p)
	h.markDirty()
}

func (h *Hub) markDirty() {
	h.dirty.Store(true)
	if !h.cfg.AutoCompile {
		return
	}
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func validateEntry(e *storage.Entry) error {
	if e.ID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEntryID, e.ID)
	}
	if strings.TrimSpace(e.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && w >= 0 && w <= 1
}
