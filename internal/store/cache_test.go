package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	backing := newSQLite(t)
	core, logs := observer.New(zap.WarnLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := newCache(backing, rdb, time.Minute, zap.New(core))
	defer rdb.Close()

	e := newEngine("aurora", nil)
	require.NoError(t, c.Save(ctx, e.State()))

	st, err := c.Load(ctx, "aurora")
	require.NoError(t, err)
	assert.Equal(t, "aurora", st.AgentID)
	assert.NotZero(t, logs.FilterMessage("state cache read failed").Len())
	assert.NotZero(t, logs.FilterMessage("state cache write failed").Len())

	_, err = c.Load(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewCacheRejectsBadURL(t *testing.T) {
	_, err := NewCache(context.Background(), newSQLite(t), "not a url", time.Minute, zap.NewNop())
	assert.ErrorContains(t, err, "parse redis url")
}
