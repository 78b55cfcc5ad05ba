package advisory

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCached_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis cache test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	inner := &countingGenerator{}
	c := NewCached(inner, rdb, time.Minute, zap.NewNop())
	c.Prefix = fmt.Sprintf("uptimeadvisor:test:%d:", time.Now().UnixNano())
	defer rdb.Del(ctx, c.key(503))

	for i := 0; i < 3; i++ {
		text, err := c.Generate(ctx, 503)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	}
	assert.EqualValues(t, 1, inner.calls.Load())

	ttl, err := rdb.TTL(ctx, c.key(503)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestCached_KeyIncludesStatus(t *testing.T) {
	c := NewCached(Static{}, nil, 0, nil)
	assert.Equal(t, "uptimeadvisor:advisory:status:404", c.key(404))
	assert.Equal(t, time.Hour, c.TTL)
}

func TestCached_UnreachableRedisLogsAndServes(t *testing.T) {
	// nothing listens on port 1
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	core, logs := observer.New(zap.WarnLevel)
	inner := &countingGenerator{}
	c := NewCached(inner, rdb, time.Minute, zap.New(core))

	text, err := c.Generate(context.Background(), 502)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.EqualValues(t, 1, inner.calls.Load())

	writes := logs.FilterMessage("advisory_cache_write_failed").All()
	require.Len(t, writes, 1)
	assert.EqualValues(t, 502, writes[0].ContextMap()["status"])
	assert.Equal(t, 1, logs.FilterMessage("advisory_cache_read_failed").Len())
}
