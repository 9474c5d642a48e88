// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pedsa/pedsa/pkg/storage"
)

type relationKey struct{ source, target string }

type linkKey struct{ source, target int64 }

// MemoryStorage implements the Storage interface using in-memory maps.
type MemoryStorage struct {
	mu        sync.RWMutex
	entries   map[int64]*storage.Entry
	relations map[relationKey]storage.Relation
	links     map[linkKey]storage.Link
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries:   make(map[int64]*storage.Entry),
		relations: make(map[relationKey]storage.Relation),
		links:     make(map[linkKey]storage.Link),
	}
}

// SaveEntry creates or replaces an entry.
func (m *MemoryStorage) SaveEntry(ctx context.Context, e *storage.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.CreatedAt.IsZero() {
		if prev, ok := m.entries[e.ID]; ok {
			e.CreatedAt = prev.CreatedAt
		} else {
			e.CreatedAt = time.Now().UTC()
		}
	}

	// Deep copy to avoid external modifications
	m.entries[e.ID] = e.Clone()
	return nil
}

// GetEntry retrieves an entry by ID.
func (m *MemoryStorage) GetEntry(ctx context.Context, id int64) (*storage.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, &storage.NotFoundError{
			EntityType: "entry",
			ID:         strconv.FormatInt(id, 10),
		}
	}
	return e.Clone(), nil
}

// ListEntries lists entries in ID order with optional pagination. The
// returned total ignores pagination.
func (m *MemoryStorage) ListEntries(ctx context.Context, filter *storage.EntryFilter) ([]*storage.Entry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*storage.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	total := len(entries)
	page := storage.Paginate(entries, filter)
	out := make([]*storage.Entry, len(page))
	for i, e := range page {
		out[i] = e.Clone()
	}
	return out, total, nil
}

// DeleteEntry deletes an entry and every link touching it.
func (m *MemoryStorage) DeleteEntry(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return &storage.NotFoundError{
			EntityType: "entry",
			ID:         strconv.FormatInt(id, 10),
		}
	}
	delete(m.entries, id)

	for k := range m.links {
		if k.source == id || k.target == id {
			delete(m.links, k)
		}
	}
	return nil
}

// SaveRelation creates or replaces the relation between two keywords.
func (m *MemoryStorage) SaveRelation(ctx context.Context, r *storage.Relation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.relations[relationKey{r.Source, r.Target}] = *r
	return nil
}

// ListRelations lists relations ordered by source, then target.
func (m *MemoryStorage) ListRelations(ctx context.Context) ([]*storage.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*storage.Relation, 0, len(m.relations))
	for _, r := range m.relations {
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

// DeleteRelation deletes the relation from source to target.
func (m *MemoryStorage) DeleteRelation(ctx context.Context, source, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := relationKey{source, target}
	if _, ok := m.relations[key]; !ok {
		return &storage.NotFoundError{
			EntityType: "relation",
			ID:         source + "->" + target,
		}
	}
	delete(m.relations, key)
	return nil
}

// SaveLink creates or replaces the link between two entries.
func (m *MemoryStorage) SaveLink(ctx context.Context, l *storage.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.links[linkKey{l.Source, l.Target}] = *l
	return nil
}

// ListLinks lists links ordered by source, then target.
func (m *MemoryStorage) ListLinks(ctx context.Context) ([]*storage.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*storage.Link, 0, len(m.links))
	for _, l := range m.links {
		l := l
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

// Close is a no-op for in-memory storage.
func (m *MemoryStorage) Close() error {
	return nil
}
