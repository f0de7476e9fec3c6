package terminated

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ersonp/stinet/internal/domain/ports"
	"github.com/ersonp/stinet/internal/infrastructure/config"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.TerminatedSet = (*MemorySet)(nil)
	_ ports.TerminatedSet = (*RedisSet)(nil)
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// visibleOneStepLate runs the same scenario against any backend.
func visibleOneStepLate(t *testing.T, set ports.TerminatedSet) {
	ctx := context.Background()

	require.NoError(t, set.Advance(ctx, 0))
	require.NoError(t, set.Add(ctx, 1, 42))

	ok, err := set.WasTerminatedLastStep(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok, "not visible during the step it was added")

	require.NoError(t, set.Advance(ctx, 1))
	ok, err = set.WasTerminatedLastStep(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = set.WasTerminatedLastStep(ctx, 43)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, set.Advance(ctx, 2))
	ok, err = set.WasTerminatedLastStep(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok, "visible for one step only")
}

func TestMemorySet(t *testing.T) {
	t.Run("visible one step late", func(t *testing.T) {
		visibleOneStepLate(t, NewMemorySet())
	})

	t.Run("posted before the first step", func(t *testing.T) {
		ctx := context.Background()
		set := NewMemorySet()
		require.NoError(t, set.Add(ctx, 1, 9))
		require.NoError(t, set.Advance(ctx, 0))

		ok, err := set.WasTerminatedLastStep(ctx, 9)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("skipping a step clears the set", func(t *testing.T) {
		ctx := context.Background()
		set := NewMemorySet()
		require.NoError(t, set.Advance(ctx, 1))
		require.NoError(t, set.Add(ctx, 1, 7))
		require.NoError(t, set.Advance(ctx, 3))

		ok, err := set.WasTerminatedLastStep(ctx, 7)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRedisSet(t *testing.T) {
	t.Run("visible one step late", func(t *testing.T) {
		_, client := setupTestRedis(t)
		visibleOneStepLate(t, NewRedisSet(client, config.RedisConfig{}, "run-1", nil))
	})

	t.Run("posted before the first step", func(t *testing.T) {
		ctx := context.Background()
		_, client := setupTestRedis(t)
		set := NewRedisSet(client, config.RedisConfig{}, "run-1", nil)
		require.NoError(t, set.Add(ctx, 1, 9))
		require.NoError(t, set.Advance(ctx, 0))

		ok, err := set.WasTerminatedLastStep(ctx, 9)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("shared between processes", func(t *testing.T) {
		ctx := context.Background()
		_, client := setupTestRedis(t)
		rank0 := NewRedisSet(client, config.RedisConfig{Prefix: "sim"}, "run-1", nil)
		rank1 := NewRedisSet(client, config.RedisConfig{Prefix: "sim"}, "run-1", nil)
		otherRun := NewRedisSet(client, config.RedisConfig{Prefix: "sim"}, "run-2", nil)

		for _, s := range []*RedisSet{rank0, rank1, otherRun} {
			require.NoError(t, s.Advance(ctx, 4))
		}
		require.NoError(t, rank0.Add(ctx, 3, 1001))
		for _, s := range []*RedisSet{rank0, rank1, otherRun} {
			require.NoError(t, s.Advance(ctx, 5))
		}

		ok, err := rank1.WasTerminatedLastStep(ctx, 1001)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = otherRun.WasTerminatedLastStep(ctx, 1001)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("keys expire", func(t *testing.T) {
		ctx := context.Background()
		mr, client := setupTestRedis(t)
		set := NewRedisSet(client, config.RedisConfig{TTLSeconds: 60}, "run-1", nil)
		require.NoError(t, set.Advance(ctx, 0))
		require.NoError(t, set.Add(ctx, 1, 5))

		key := "stinet:run-1:terminated:0"
		assert.True(t, mr.Exists(key))
		assert.Equal(t, "1", mr.HGet(key, "5"))
		assert.Equal(t, 60*time.Second, mr.TTL(key))

		mr.FastForward(61 * time.Second)
		assert.False(t, mr.Exists(key))
	})

	t.Run("connection errors surface", func(t *testing.T) {
		ctx := context.Background()
		mr, err := miniredis.Run()
		require.NoError(t, err)
		client := NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
		defer client.Close()
		set := NewRedisSet(client, config.RedisConfig{}, "run-1", nil)
		require.NoError(t, set.Ping(ctx))
		mr.Close()

		assert.Error(t, set.Advance(ctx, 1))
		assert.Error(t, set.Add(ctx, 1, 2))
	})
}

func TestNewRedisSet_Defaults(t *testing.T) {
	set := NewRedisSet(nil, config.RedisConfig{}, "r", nil)

	assert.Equal(t, "stinet:r:terminated:9", set.key(9))
	assert.Equal(t, time.Hour, set.ttl)
}
