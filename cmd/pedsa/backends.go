package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/cache"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/storage"
	"github.com/pedsa/pedsa/pkg/storage/badger"
	"github.com/pedsa/pedsa/pkg/storage/memory"
)

func openStorage(cfg config.StorageConfig, log logger.Logger) (storage.Storage, error) {
	switch cfg.Type {
	case "badger":
		store, err := badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			InMemory:          cfg.Badger.InMemory,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
		if err != nil {
			return nil, fmt.Errorf("open badger storage: %w", err)
		}
		log.Info("initialized badger storage", "path", cfg.Badger.Path, "in_memory", cfg.Badger.InMemory)
		return store, nil
	case "memory", "":
		log.Info("initialized memory storage")
		return memory.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// openCache builds the result cache. An unreachable Redis falls back to
// the in-process LRU so retrieval keeps working. The returned close
// function is never nil.
func openCache(ctx context.Context, cfg config.CacheConfig, log logger.Logger) (cache.Cache, func() error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "memory":
		log.Info("initialized memory result cache", "size", cfg.Size, "ttl", cfg.TTL)
		return cache.NewLRU(cfg.Size, cfg.TTL), noop
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c := cache.NewRedis(client, cfg.Redis.Prefix, cfg.TTL, log.With("component", "cache"))

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			log.Warn("redis cache unreachable, using memory cache", "address", cfg.Redis.Address, "error", err)
			client.Close() //nolint:errcheck
			return cache.NewLRU(cfg.Size, cfg.TTL), noop
		}
		log.Info("initialized redis result cache", "address", cfg.Redis.Address, "db", cfg.Redis.DB)
		return c, client.Close
	default:
		return cache.Nop{}, noop
	}
}
