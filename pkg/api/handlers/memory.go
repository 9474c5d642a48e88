package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/api/response"
	"github.com/pedsa/pedsa/pkg/engine"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/memory"
	"github.com/pedsa/pedsa/pkg/storage"
)

// MemoryHandler serves corpus writes, snapshot builds and retrieval.
type MemoryHandler struct {
	hub      *memory.Hub
	logger   logger.Logger
	validate *validator.Validate
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(hub *memory.Hub, log logger.Logger) *MemoryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &MemoryHandler{
		hub:      hub,
		logger:   log,
		validate: newValidator(),
	}
}

// --- Request/Response types ---

type entryRequest struct {
	ID        int64             `json:"id" validate:"gt=0"`
	Content   string            `json:"content" validate:"required"`
	Timestamp int64             `json:"timestamp" validate:"gte=0"`
	Location  string            `json:"location"`
	Emotions  []string          `json:"emotions" validate:"omitempty,dive,required"`
	Type      string            `json:"type"`
	Keywords  []string          `json:"keywords" validate:"omitempty,dive,required"`
	Metadata  map[string]string `json:"metadata"`
}

func (e entryRequest) toEntry() storage.Entry {
	return storage.Entry{
		ID:        e.ID,
		Content:   e.Content,
		Timestamp: e.Timestamp,
		Location:  e.Location,
		Emotions:  e.Emotions,
		Type:      e.Type,
		Keywords:  e.Keywords,
		Metadata:  e.Metadata,
	}
}

type batchRequest struct {
	Entries []entryRequest `json:"entries" validate:"required,min=1,max=1000,dive"`
}

type batchResponse struct {
	Stored int `json:"stored"`
}

type relationRequest struct {
	Source   string   `json:"source" validate:"required"`
	Target   string   `json:"target" validate:"required,nefield=Source"`
	Weight   *float64 `json:"weight" validate:"omitempty,gte=0,lte=1"`
	Equality bool     `json:"equality"`
}

type linkRequest struct {
	Source int64    `json:"source" validate:"gt=0"`
	Target int64    `json:"target" validate:"gt=0"`
	Weight *float64 `json:"weight" validate:"omitempty,gte=0,lte=1"`
}

// edgeWeight resolves an optional request weight.
func edgeWeight(w *float64) float64 {
	if w == nil {
		return storage.DefaultWeight
	}
	return *w
}

type forgetRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=1000"`
}

type enhancedRequest struct {
	OriginalQuery    string                  `json:"original_query"`
	Terms            []engine.QueryTerm      `json:"terms" validate:"omitempty,max=256"`
	DimensionWeights engine.DimensionWeights `json:"dimension_weights"`
	TotalTerms       int                     `json:"total_terms"`
	TopK             int                     `json:"top_k" validate:"gte=0,lte=1000"`
}

type listResponse struct {
	Entries []*storage.Entry `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type timelineResponse struct {
	Entries []*storage.Entry `json:"entries"`
	Total   int              `json:"total"`
}

// CreateEntry handles POST /api/v1/entries
func (h *MemoryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	e := req.toEntry()
	if err := h.hub.Ingest(r.Context(), e); err != nil {
		writeHubError(w, r, h.logger, "ingest", err)
		return
	}
	response.JSON(w, http.StatusCreated, e)
}

// CreateEntries handles POST /api/v1/entries/batch
func (h *MemoryHandler) CreateEntries(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	entries := make([]storage.Entry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = e.toEntry()
	}

	stored, err := h.hub.IngestBatch(r.Context(), entries)
	if err != nil {
		if stored > 0 {
			h.logger.WarnContext(r.Context(), "batch ingest stopped part way", "stored", stored, "error", err)
		}
		writeHubError(w, r, h.logger, "batch ingest", err)
		return
	}
	response.JSON(w, http.StatusCreated, batchResponse{Stored: stored})
}

// ListEntries handles GET /api/v1/entries
func (h *MemoryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	entries, total, err := h.hub.List(r.Context(), limit, offset)
	if err != nil {
		writeHubError(w, r, h.logger, "list entries", err)
		return
	}
	if entries == nil {
		entries = []*storage.Entry{}
	}
	response.JSON(w, http.StatusOK, listResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// GetEntry handles GET /api/v1/entries/{id}
func (h *MemoryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	e, err := h.hub.Entry(r.Context(), id)
	if err != nil {
		writeHubError(w, r, h.logger, "get entry", err)
		return
	}
	response.JSON(w, http.StatusOK, e)
}

// DeleteEntry handles DELETE /api/v1/entries/{id}
func (h *MemoryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	removed, err := h.hub.Forget(r.Context(), []int64{id})
	if err != nil {
		writeHubError(w, r, h.logger, "forget", err)
		return
	}
	if removed == 0 {
		writeHubError(w, r, h.logger, "forget", fmt.Errorf("%w: %d", memory.ErrNotFound, id))
		return
	}
	response.JSON(w, http.StatusOK, deleteResponse{Deleted: removed})
}

// ForgetEntries handles POST /api/v1/entries/forget
func (h *MemoryHandler) ForgetEntries(w http.ResponseWriter, r *http.Request) {
	var req forgetRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	removed, err := h.hub.Forget(r.Context(), req.IDs)
	if err != nil {
		writeHubError(w, r, h.logger, "forget", err)
		return
	}
	response.JSON(w, http.StatusOK, deleteResponse{Deleted: removed})
}

// CreateRelation handles POST /api/v1/relations
func (h *MemoryHandler) CreateRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	rel := storage.Relation{Source: req.Source, Target: req.Target, Weight: edgeWeight(req.Weight), Equality: req.Equality}
	if err := h.hub.Relate(r.Context(), rel); err != nil {
		writeHubError(w, r, h.logger, "relate", err)
		return
	}
	response.JSON(w, http.StatusCreated, rel)
}

// CreateLink handles POST /api/v1/links
func (h *MemoryHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	l := storage.Link{Source: req.Source, Target: req.Target, Weight: edgeWeight(req.Weight)}
	if err := h.hub.Link(r.Context(), l); err != nil {
		writeHubError(w, r, h.logger, "link", err)
		return
	}
	response.JSON(w, http.StatusCreated, l)
}

// Compile handles POST /api/v1/compile
func (h *MemoryHandler) Compile(w http.ResponseWriter, r *http.Request) {
	snap, err := h.hub.Compile(r.Context())
	if err != nil {
		writeHubError(w, r, h.logger, "compile", err)
		return
	}
	response.JSON(w, http.StatusOK, snap)
}

// Retrieve handles POST /api/v1/retrieve and GET /api/v1/retrieve?q=...
func (h *MemoryHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if r.Method == http.MethodGet {
		topK, ok := queryInt(w, r, "top_k", 0)
		if !ok {
			return
		}
		req = retrieveRequest{Query: r.URL.Query().Get("q"), TopK: topK}
		if err := h.validate.Struct(&req); err != nil {
			writeValidationError(w, r, err)
			return
		}
	} else if !decode(w, r, h.validate, &req) {
		return
	}

	res, err := h.hub.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		writeHubError(w, r, h.logger, "retrieve", err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// RetrieveEnhanced handles POST /api/v1/retrieve/enhanced
func (h *MemoryHandler) RetrieveEnhanced(w http.ResponseWriter, r *http.Request) {
	var req enhancedRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	q := engine.EnhancedQuery{
		OriginalQuery:    req.OriginalQuery,
		Terms:            req.Terms,
		DimensionWeights: req.DimensionWeights,
		TotalTerms:       req.TotalTerms,
	}
	res, err := h.hub.RetrieveEnhanced(r.Context(), q, req.TopK)
	if err != nil {
		writeHubError(w, r, h.logger, "retrieve", err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// GetStats handles GET /api/v1/stats
func (h *MemoryHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.hub.Stats(r.Context())
	if err != nil {
		writeHubError(w, r, h.logger, "stats", err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

// GetTimeline handles GET /api/v1/timeline
func (h *MemoryHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	entries := h.hub.Timeline(r.Context())
	response.JSON(w, http.StatusOK, timelineResponse{Entries: entries, Total: len(entries)})
}

// GetParams handles GET /api/v1/params
func (h *MemoryHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.hub.Params())
}

// UpdateParams handles PUT /api/v1/params. The body replaces the whole
// parameter set; fields left out take their default values.
func (h *MemoryHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	p := engine.DefaultParams()
	if !decode(w, r, h.validate, &p) {
		return
	}
	if err := config.ValidateParams(p); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), requestID(r))
		return
	}

	h.hub.UpdateParams(p)
	response.JSON(w, http.StatusAccepted, p)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest,
			fmt.Sprintf("invalid entry id %q", raw), requestID(r))
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest,
			fmt.Sprintf("query parameter %s must be a non-negative integer", key), requestID(r))
		return 0, false
	}
	return v, true
}
