// Package corpus reads and writes corpus files: the entries, keyword
// relations and entry links of a knowledge base, in YAML or JSON.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pedsa/pedsa/pkg/engine"
	"github.com/pedsa/pedsa/pkg/fingerprint"
	"github.com/pedsa/pedsa/pkg/storage"
)

// Format is a corpus file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension; anything that is
// not .json is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// File is the on-disk shape of a corpus.
type File struct {
	Entries   []storage.Entry    `json:"entries" yaml:"entries"`
	Relations []storage.Relation `json:"relations,omitempty" yaml:"relations,omitempty"`
	Links     []storage.Link     `json:"links,omitempty" yaml:"links,omitempty"`
}

// Load reads and validates a corpus file.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer fh.Close()

	f, err := Decode(fh, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode parses a corpus without validating it.
func Decode(r io.Reader, format Format) (*File, error) {
	var f File
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&f); err != nil {
			return nil, &storage.SerializationError{Operation: "decode json corpus", Cause: err}
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, &storage.SerializationError{Operation: "decode yaml corpus", Cause: err}
		}
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", format)
	}
	return &f, nil
}

// Write encodes a corpus.
func Write(w io.Writer, format Format, f *File) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(f); err != nil {
			return &storage.SerializationError{Operation: "encode json corpus", Cause: err}
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return &storage.SerializationError{Operation: "encode yaml corpus", Cause: err}
		}
		if err := enc.Close(); err != nil {
			return &storage.SerializationError{Operation: "encode yaml corpus", Cause: err}
		}
	default:
		return fmt.Errorf("unsupported corpus format %q", format)
	}
	return nil
}

// Validate checks that entry ids are positive and unique, content is
// present, relations name both keywords and every weight lies in [0,1].
// All problems are reported together.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[int64]struct{}, len(f.Entries))
	for i, e := range f.Entries {
		if e.ID <= 0 {
			errs = append(errs, fmt.Errorf("entries[%d]: id must be positive, got %d", i, e.ID))
		} else if _, dup := seen[e.ID]; dup {
			errs = append(errs, &storage.DuplicateKeyError{EntityType: "entry", ID: strconv.FormatInt(e.ID, 10)})
		}
		seen[e.ID] = struct{}{}
		if strings.TrimSpace(e.Content) == "" {
			errs = append(errs, fmt.Errorf("entries[%d]: content is empty", i))
		}
	}
	for i, r := range f.Relations {
		if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "" {
			errs = append(errs, fmt.Errorf("relations[%d]: source and target are required", i))
		}
		if !validWeight(r.Weight) {
			errs = append(errs, fmt.Errorf("relations[%d]: weight %v outside [0,1]", i, r.Weight))
		}
	}
	for i, l := range f.Links {
		if !validWeight(l.Weight) {
			errs = append(errs, fmt.Errorf("links[%d]: weight %v outside [0,1]", i, l.Weight))
		}
	}
	return errors.Join(errs...)
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && w >= 0 && w <= 1
}

// Build ingests the corpus into eng: entries become events tagged with
// their keywords at tagWeight, relations become ontology edges and links
// memory edges. It then builds the temporal backbone and compiles.
func Build(eng *engine.Engine, f *File, tagWeight float64) {
	for i := range f.Entries {
		e := &f.Entries[i]
		eng.AddEvent(engine.Event{
			ID:        engine.NodeID(e.ID),
			Text:      e.Content,
			Timestamp: e.Timestamp,
			Location:  e.Location,
			Emotions:  e.Emotions,
			Type:      fingerprint.ParseType(e.Type),
			Ref:       e,
		})
		for _, kw := range e.Keywords {
			eng.Tag(engine.NodeID(e.ID), kw, tagWeight)
		}
	}
	for _, r := range f.Relations {
		eng.AddOntologyEdge(r.Source, r.Target, r.Weight, r.Equality)
	}
	for _, l := range f.Links {
		eng.AddEdge(engine.NodeID(l.Source), engine.NodeID(l.Target), l.Weight)
	}
	eng.BuildTemporalBackbone()
	eng.Compile()
}
