package book

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
)

// Cache holds recently built snapshots so read traffic does not rebuild
// the projection on every request.
type Cache interface {
	Get(ctx context.Context, pair core.Pair) (*Snapshot, bool)
	Set(ctx context.Context, snapshot *Snapshot)
	Close() error
}

// MemoryCache is a per-process TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[core.Pair]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	snapshot  *Snapshot
	expiresAt time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[core.Pair]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, pair core.Pair) (*Snapshot, bool) {
	c.mu.RLock()
	entry, ok := c.entries[pair]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.snapshot, true
}

func (c *MemoryCache) Set(_ context.Context, snapshot *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snapshot.Pair] = memoryEntry{
		snapshot:  snapshot,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *MemoryCache) Close() error { return nil }

// RedisCache shares snapshots across processes through Redis with a
// server-side TTL.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewRedisCache creates a cache over an existing Redis client.
func NewRedisCache(client *redis.Client, keyPrefix string, ttl time.Duration, logger zerolog.Logger) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With().Str("component", "book_cache").Logger(),
	}
}

func (c *RedisCache) key(pair core.Pair) string {
	return fmt.Sprintf("%s:book:%s", c.keyPrefix, pair)
}

func (c *RedisCache) Get(ctx context.Context, pair core.Pair) (*Snapshot, bool) {
	data, err := c.client.Get(ctx, c.key(pair)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error().Err(err).Str("pair", pair.String()).Msg("failed to read cached book")
		}
		return nil, false
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.Error().Err(err).Str("pair", pair.String()).Msg("failed to decode cached book")
		return nil, false
	}
	return &snapshot, true
}

func (c *RedisCache) Set(ctx context.Context, snapshot *Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode book snapshot")
		return
	}
	if err := c.client.Set(ctx, c.key(snapshot.Pair), data, c.ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("pair", snapshot.Pair.String()).Msg("failed to cache book")
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedProjector serves snapshots through a cache, rebuilding on miss.
type CachedProjector struct {
	projector *Projector
	cache     Cache
}

// NewCachedProjector wraps a projector with a cache.
func NewCachedProjector(projector *Projector, cache Cache) *CachedProjector {
	return &CachedProjector{projector: projector, cache: cache}
}

// Snapshot returns the cached snapshot for the pair, building and
// caching a fresh one on miss.
func (p *CachedProjector) Snapshot(ctx context.Context, pair core.Pair) *Snapshot {
	if snapshot, ok := p.cache.Get(ctx, pair); ok {
		return snapshot
	}
	snapshot := p.projector.Snapshot(pair)
	p.cache.Set(ctx, snapshot)
	return snapshot
}
