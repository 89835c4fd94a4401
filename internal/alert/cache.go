package alert

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

const ruleCacheKey = "amzwatch:alert_rules:active"

// Cache is a byte cache with TTL semantics. Get returns false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get reads a key, reporting a miss for redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "redis get")
	}
	return val, true, nil
}

// Set writes a key with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return eris.Wrap(err, "redis set")
	}
	return nil
}

// MemoryCache is a process-local Cache for deployments without Redis and
// for tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   monitor.Clock
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache(clock monitor.Clock) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

// Get reads a key if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set writes a key with the given TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: value, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

// CachedRuleSource fronts a RuleSource with a TTL cache. Cache failures
// are logged and fall through to the backing source; rule reads must
// never block ingestion.
type CachedRuleSource struct {
	source monitor.RuleSource
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRuleSource creates a CachedRuleSource.
func NewCachedRuleSource(source monitor.RuleSource, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedRuleSource {
	return &CachedRuleSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// ActiveRules returns cached rules when fresh, otherwise loads from the
// backing source and repopulates the cache best-effort.
func (s *CachedRuleSource) ActiveRules(ctx context.Context) ([]monitor.AlertRule, error) {
	if data, ok, err := s.cache.Get(ctx, ruleCacheKey); err != nil {
		s.logger.Warn("rule cache read failed", zap.Error(err))
	} else if ok {
		var rules []monitor.AlertRule
		if err := json.Unmarshal(data, &rules); err != nil {
			s.logger.Warn("rule cache entry corrupt, reloading", zap.Error(err))
		} else {
			return rules, nil
		}
	}

	rules, err := s.source.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rules); err != nil {
		s.logger.Warn("rule cache encode failed", zap.Error(err))
	} else if err := s.cache.Set(ctx, ruleCacheKey, data, s.ttl); err != nil {
		s.logger.Warn("rule cache write failed", zap.Error(err))
	}
	return rules, nil
}
