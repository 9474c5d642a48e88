// Package storage provides persistent storage of the knowledge corpus: the
// entries, keyword relations and entry links compiled into engine snapshots.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage defines the interface for persistent corpus operations.
type Storage interface {
	// Entry operations
	SaveEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, id int64) (*Entry, error)
	ListEntries(ctx context.Context, filter *EntryFilter) ([]*Entry, int, error)
	DeleteEntry(ctx context.Context, id int64) error

	// Relation operations
	SaveRelation(ctx context.Context, r *Relation) error
	ListRelations(ctx context.Context) ([]*Relation, error)
	DeleteRelation(ctx context.Context, source, target string) error

	// Link operations
	SaveLink(ctx context.Context, l *Link) error
	ListLinks(ctx context.Context) ([]*Link, error)

	// Lifecycle
	Close() error
}

// Entry is a knowledge fragment together with its optional metadata.
type Entry struct {
	ID        int64             `json:"id" yaml:"id"`
	Content   string            `json:"content" yaml:"content"`
	Timestamp int64             `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Location  string            `json:"location,omitempty" yaml:"location,omitempty"`
	Emotions  []string          `json:"emotions,omitempty" yaml:"emotions,omitempty"`
	Type      string            `json:"type,omitempty" yaml:"type,omitempty"`
	Keywords  []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Emotions != nil {
		c.Emotions = append([]string(nil), e.Emotions...)
	}
	if e.Keywords != nil {
		c.Keywords = append([]string(nil), e.Keywords...)
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// DefaultWeight is the edge weight used when a relation or link is decoded
// without one.
const DefaultWeight = 1.0

// Relation is an ontology edge between two keywords.
type Relation struct {
	Source   string  `json:"source" yaml:"source"`
	Target   string  `json:"target" yaml:"target"`
	Weight   float64 `json:"weight" yaml:"weight"`
	Equality bool    `json:"equality,omitempty" yaml:"equality,omitempty"`
}

// UnmarshalJSON decodes a relation, defaulting an absent weight.
func (r *Relation) UnmarshalJSON(data []byte) error {
	type plain Relation
	p := plain{Weight: DefaultWeight}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Relation(p)
	return nil
}

// UnmarshalYAML decodes a relation, defaulting an absent weight.
func (r *Relation) UnmarshalYAML(value *yaml.Node) error {
	type plain Relation
	p := plain{Weight: DefaultWeight}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = Relation(p)
	return nil
}

// Link is a memory edge between two entries.
type Link struct {
	Source int64   `json:"source" yaml:"source"`
	Target int64   `json:"target" yaml:"target"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// UnmarshalJSON decodes a link, defaulting an absent weight.
func (l *Link) UnmarshalJSON(data []byte) error {
	type plain Link
	p := plain{Weight: DefaultWeight}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Link(p)
	return nil
}

// UnmarshalYAML decodes a link, defaulting an absent weight.
func (l *Link) UnmarshalYAML(value *yaml.Node) error {
	type plain Link
	p := plain{Weight: DefaultWeight}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*l = Link(p)
	return nil
}

// EntryFilter defines pagination for listing entries. A zero Limit lists
// everything from Offset on.
type EntryFilter struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Paginate applies the filter to a slice already in listing order.
func Paginate[T any](items []T, filter *EntryFilter) []T {
	if filter == nil {
		return items
	}
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return items[start:end]
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// DuplicateKeyError indicates that an entity with the given ID already exists.
type DuplicateKeyError struct {
	EntityType string
	ID         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
