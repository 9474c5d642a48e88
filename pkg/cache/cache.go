// Package cache stores serialized retrieval results keyed by snapshot and
// query, in process (LRU) or in Redis.
package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Cache is a byte-valued result cache. Misses and backend failures both
// report ok=false; a cache never fails a retrieval.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Purge(ctx context.Context)
}

// Key derives a cache key from the snapshot version and the query parts.
func Key(version string, parts ...string) string {
	return fmt.Sprintf("%s:%016x", version, xxhash.Sum64String(strings.Join(parts, "\x00")))
}

// Nop is a cache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, []byte)        {}
func (Nop) Purge(context.Context)                      {}
