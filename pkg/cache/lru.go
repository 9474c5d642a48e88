package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU is an in-process cache bounded by entry count, with optional TTL.
type LRU struct {
	lru *expirable.LRU[string, []byte]
}

// NewLRU creates an LRU cache holding at most size results. A zero ttl
// keeps results until evicted.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *LRU) Set(_ context.Context, key string, value []byte) {
	c.lru.Add(key, value)
}

func (c *LRU) Purge(context.Context) {
	c.lru.Purge()
}

// Len returns the number of cached results.
func (c *LRU) Len() int {
	return c.lru.Len()
}
