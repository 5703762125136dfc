package corecache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
)

// fakeClock is advanced manually by the tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Microsecond)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	cache   Cache
	advance func(time.Duration)
}

func backends() map[string]func(t *testing.T, opts Options) harness {
	return map[string]func(t *testing.T, opts Options) harness{
		"memory": func(t *testing.T, opts Options) harness {
			clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			return harness{cache: NewMemory(opts).WithClock(clock.Now), advance: clock.Advance}
		},
		"redis": func(t *testing.T, opts Options) harness {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
			return harness{
				cache: NewRedis(rdb, opts).WithClock(clock.Now),
				advance: func(d time.Duration) {
					clock.Advance(d)
					mr.FastForward(d)
				},
			}
		},
	}
}

func sampleCore(tag string) reading.CoreReading {
	return reading.NormalizeCore(reading.CoreReading{
		CoreSummary:   "summary " + tag,
		CoreKeyPoints: []string{tag},
		CoreGuidance:  "guidance " + tag,
	}, "en")
}

func TestCacheContract(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("miss then hit", func(t *testing.T) {
				h := build(t, Options{})
				_, ok, err := h.cache.Get(ctx, "k")
				require.NoError(t, err)
				assert.False(t, ok)

				want := sampleCore("a")
				require.NoError(t, h.cache.Put(ctx, "k", want))
				got, ok, err := h.cache.Get(ctx, "k")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, want, got)
			})

			t.Run("ttl expiry", func(t *testing.T) {
				h := build(t, Options{TTL: time.Minute})
				require.NoError(t, h.cache.Put(ctx, "k", sampleCore("a")))
				h.advance(30 * time.Second)
				_, ok, _ := h.cache.Get(ctx, "k")
				assert.True(t, ok)
				h.advance(31 * time.Second)
				_, ok, _ = h.cache.Get(ctx, "k")
				assert.False(t, ok)
			})

			t.Run("fifo eviction", func(t *testing.T) {
				h := build(t, Options{Capacity: 3})
				for i := 0; i < 3; i++ {
					require.NoError(t, h.cache.Put(ctx, fmt.Sprintf("k%d", i), sampleCore("x")))
				}
				// Reading k0 must not protect it: eviction is by insertion order.
				_, ok, _ := h.cache.Get(ctx, "k0")
				require.True(t, ok)

				require.NoError(t, h.cache.Put(ctx, "k3", sampleCore("x")))
				_, ok, _ = h.cache.Get(ctx, "k0")
				assert.False(t, ok, "oldest inserted entry is evicted")
				for _, k := range []string{"k1", "k2", "k3"} {
					_, ok, _ := h.cache.Get(ctx, k)
					assert.True(t, ok, k)
				}
			})

			t.Run("re-put keeps insertion position", func(t *testing.T) {
				h := build(t, Options{Capacity: 2})
				require.NoError(t, h.cache.Put(ctx, "a", sampleCore("1")))
				require.NoError(t, h.cache.Put(ctx, "b", sampleCore("1")))
				require.NoError(t, h.cache.Put(ctx, "a", sampleCore("2")))
				require.NoError(t, h.cache.Put(ctx, "c", sampleCore("1")))

				_, ok, _ := h.cache.Get(ctx, "a")
				assert.False(t, ok)
				got, ok, _ := h.cache.Get(ctx, "b")
				assert.True(t, ok)
				assert.Equal(t, sampleCore("1"), got)
			})

			t.Run("evict", func(t *testing.T) {
				h := build(t, Options{})
				require.NoError(t, h.cache.Put(ctx, "k", sampleCore("a")))
				require.NoError(t, h.cache.Evict(ctx, "k"))
				_, ok, _ := h.cache.Get(ctx, "k")
				assert.False(t, ok)
				assert.NoError(t, h.cache.Evict(ctx, "missing"))
			})
		})
	}
}

func TestMemoryCapacityBound(t *testing.T) {
	m := NewMemory(Options{})
	for i := 0; i < 150; i++ {
		require.NoError(t, m.Put(context.Background(), fmt.Sprintf("k%d", i), sampleCore("x")))
	}
	assert.Equal(t, DefaultCapacity, m.Len())
}

func TestMemorySweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(Options{TTL: time.Minute}).WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "old", sampleCore("old")))
	clock.Advance(45 * time.Second)
	require.NoError(t, m.Put(ctx, "new", sampleCore("new")))
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
	_, ok, err := m.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, m.Sweep())
}
