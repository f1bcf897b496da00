package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/warden/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// backend pairs a Cache with a way to move its clock forward.
type backend struct {
	cache.Cache
	advance func(time.Duration)
}

func backends(t *testing.T) map[string]func(t *testing.T) backend {
	return map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend {
			now := time.Now()
			m := cache.NewMemory()
			m.Now = func() time.Time { return now }
			return backend{Cache: m, advance: func(d time.Duration) { now = now.Add(d) }}
		},
		"redis": func(t *testing.T) backend {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return backend{Cache: cache.NewRedis(rdb, "test:"), advance: mr.FastForward}
		},
	}
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("add and contains", func(t *testing.T) {
				b := open(t)
				require.NoError(t, b.Add(ctx, "jti-1", "", time.Minute))

				ok, err := b.Contains(ctx, "jti-1")
				require.NoError(t, err)
				require.True(t, ok)

				ok, err = b.Contains(ctx, "jti-2")
				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("entries expire", func(t *testing.T) {
				b := open(t)
				require.NoError(t, b.Add(ctx, "state", "https://app/cb", time.Minute))

				b.advance(61 * time.Second)

				ok, err := b.Contains(ctx, "state")
				require.NoError(t, err)
				require.False(t, ok)

				_, ok, err = b.Take(ctx, "state")
				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("take is single use", func(t *testing.T) {
				b := open(t)
				require.NoError(t, b.Add(ctx, "state", "https://app/cb", time.Minute))

				v, ok, err := b.Take(ctx, "state")
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, "https://app/cb", v)

				_, ok, err = b.Take(ctx, "state")
				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("non-positive ttl ignored", func(t *testing.T) {
				b := open(t)
				require.NoError(t, b.Add(ctx, "gone", "", 0))

				ok, err := b.Contains(ctx, "gone")
				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("concurrent take has one winner", func(t *testing.T) {
				b := open(t)
				require.NoError(t, b.Add(ctx, "race", "v", time.Minute))

				var wins atomic.Int32
				var wg sync.WaitGroup
				for range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if _, ok, err := b.Take(ctx, "race"); err == nil && ok {
							wins.Add(1)
						}
					}()
				}
				wg.Wait()
				require.Equal(t, int32(1), wins.Load())
			})
		})
	}
}

func TestMemoryExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	m := cache.NewMemory()
	m.Now = func() time.Time { return now }

	require.NoError(t, m.Add(ctx, "short", "", time.Second))
	require.NoError(t, m.Add(ctx, "long", "", time.Hour))

	now = now.Add(2 * time.Second)

	n, err := m.Expire(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, m.Len())
}

func TestRedisPrefixIsolation(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	revoked := cache.NewRedis(rdb, "revoked:")
	states := cache.NewRedis(rdb, "oauth_state:")

	require.NoError(t, revoked.Add(ctx, "k", "", time.Minute))

	ok, err := states.Contains(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, mr.Exists("revoked:k"))
	require.NoError(t, revoked.Ping(ctx))
}
