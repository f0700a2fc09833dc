package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/history"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "nuka-drive:state:"

// Cache is a read-through Redis cache in front of another StateStore.
// Redis failures are logged and fall through to the backing store.
type Cache struct {
	next   StateStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache connects to redisURL and wraps next.
func NewCache(ctx context.Context, next StateStore, redisURL string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis state cache connected", zap.Duration("ttl", ttl))
	return newCache(next, rdb, ttl, logger), nil
}

func newCache(next StateStore, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(agentID string) string { return cacheKeyPrefix + agentID }

// Load returns the cached state or loads and caches it from the backing store.
func (c *Cache) Load(ctx context.Context, agentID string) (autonomy.State, error) {
	data, err := c.rdb.Get(ctx, cacheKey(agentID)).Bytes()
	switch {
	case err == nil:
		var st autonomy.State
		if jerr := json.Unmarshal(data, &st); jerr == nil {
			return st, nil
		}
		c.logger.Warn("dropping undecodable cached state", zap.String("agent", agentID))
		c.rdb.Del(ctx, cacheKey(agentID))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("state cache read failed", zap.String("agent", agentID), zap.Error(err))
	}

	st, err := c.next.Load(ctx, agentID)
	if err != nil {
		return autonomy.State{}, err
	}
	c.put(ctx, st)
	return st, nil
}

// Save writes through to the backing store, then refreshes the cache.
func (c *Cache) Save(ctx context.Context, st autonomy.State) error {
	if err := c.next.Save(ctx, st); err != nil {
		c.rdb.Del(ctx, cacheKey(st.AgentID))
		return err
	}
	c.put(ctx, st)
	return nil
}

func (c *Cache) put(ctx context.Context, st autonomy.State) {
	data, err := json.Marshal(st)
	if err != nil {
		c.logger.Warn("state cache encode failed", zap.String("agent", st.AgentID), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(st.AgentID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("state cache write failed", zap.String("agent", st.AgentID), zap.Error(err))
	}
}

func (c *Cache) AgentIDs(ctx context.Context) ([]string, error) {
	return c.next.AgentIDs(ctx)
}

func (c *Cache) AppendDecision(ctx context.Context, agentID string, r history.Record) error {
	return c.next.AppendDecision(ctx, agentID, r)
}

func (c *Cache) RecentDecisions(ctx context.Context, agentID string, limit int) ([]history.Record, error) {
	return c.next.RecentDecisions(ctx, agentID, limit)
}

// Close closes the Redis client and the backing store.
func (c *Cache) Close() error {
	return errors.Join(c.rdb.Close(), c.next.Close())
}
