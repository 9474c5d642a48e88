// Package memory hosts the PEDSA hub: it owns the corpus store, builds
// compiled engine snapshots from it and serves retrievals against the
// live snapshot.
package memory

import (
	"errors"
	"time"

	"github.com/pedsa/pedsa/pkg/engine"
	"github.com/pedsa/pedsa/pkg/storage"
)

// Sentinel errors for the hub.
var (
	ErrInvalidEntryID  = errors.New("memory: invalid entry ID")
	ErrEmptyContent    = errors.New("memory: entry content is empty")
	ErrInvalidRelation = errors.New("memory: relation needs source and target")
	ErrInvalidWeight   = errors.New("memory: weight outside [0,1]")
	ErrInvalidTopK     = errors.New("memory: top_k must not be negative")
	ErrNotFound        = errors.New("memory: entry not found")
	ErrHubNotStarted   = errors.New("memory: hub not started")
)

// HubConfig configures a Hub.
type HubConfig struct {
	Params engine.Params

	// DefaultTopK is used when a retrieval asks for zero results.
	DefaultTopK int

	// TagWeight is the edge weight between an entry and its keywords.
	TagWeight float64

	// AutoCompile rebuilds the snapshot CompileDebounce after the last
	// write. Without it snapshots are only rebuilt by Compile.
	AutoCompile     bool
	CompileDebounce time.Duration

	// CorpusFile seeds an empty store on Start.
	CorpusFile string
}

// DefaultHubConfig returns the defaults used by the server.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Params:          engine.DefaultParams(),
		DefaultTopK:     10,
		TagWeight:       1.0,
		AutoCompile:     true,
		CompileDebounce: 500 * time.Millisecond,
	}
}

// Snapshot describes a compiled engine build.
type Snapshot struct {
	Version string       `json:"version"`
	BuiltAt time.Time    `json:"built_at"`
	Stats   engine.Stats `json:"stats"`
}

// Hit is one ranked entry.
type Hit struct {
	ID        int64          `json:"id"`
	Score     float64        `json:"score"`
	Content   string         `json:"content"`
	Timestamp int64          `json:"timestamp"`
	Entry     *storage.Entry `json:"entry,omitempty"`
}

// Result is a retrieval answer. Version names the snapshot that produced
// it and is empty when no snapshot was ready.
type Result struct {
	Status  engine.Status         `json:"status"`
	Version string                `json:"snapshot_version,omitempty"`
	Hits    []Hit                 `json:"hits"`
	Stats   engine.RetrievalStats `json:"stats"`
	Cached  bool                  `json:"cached"`
}

// HubStats reports the state of the hub.
type HubStats struct {
	Entries     int           `json:"entries"`
	Dirty       bool          `json:"dirty"`
	AutoCompile bool          `json:"auto_compile"`
	Snapshot    *Snapshot     `json:"snapshot,omitempty"`
	Params      engine.Params `json:"params"`
}

func notReady() *Result {
	return &Result{Status: engine.StatusNotReady, Hits: []Hit{}}
}
