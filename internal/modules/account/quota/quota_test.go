package quota

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarotlab/fortune-core/internal/models"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	"github.com/tarotlab/fortune-core/internal/testutil"
	"golang.org/x/sync/errgroup"
)

type clock struct{ t atomic.Value }

func newClock(t time.Time) *clock {
	c := &clock{}
	c.t.Store(t)
	return c
}

func (c *clock) Now() time.Time { return c.t.Load().(time.Time) }
func (c *clock) Set(t time.Time) { c.t.Store(t) }
func (c *clock) zone() *calendar.Zone { return calendar.MustNew("Asia/Seoul").WithClock(c.Now) }

// 2025-06-10 03:00 UTC is 12:00 in Seoul.
var noonSeoul = time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)

func backends(t *testing.T, c *clock) map[string]Ledger {
	t.Helper()
	_, rdb := testutil.Redis(t)
	return map[string]Ledger{
		"gorm":  NewGormLedger(testutil.SQLite(t), c.zone(), nil),
		"redis": NewRedisLedger(rdb, c.zone()),
	}
}

func TestLedgerContract(t *testing.T) {
	ctx := context.Background()

	t.Run("sixth request over a limit of five is denied", func(t *testing.T) {
		for name, ledger := range backends(t, newClock(noonSeoul)) {
			t.Run(name, func(t *testing.T) {
				for i := 1; i <= 5; i++ {
					res, err := ledger.CheckAndIncrement(ctx, "u1", 5)
					require.NoError(t, err)
					assert.True(t, res.Allowed)
					assert.Equal(t, i, res.Used)
					assert.Equal(t, 5-i, res.Remaining)
					assert.Equal(t, "2025-06-10", res.DateKey)
				}

				res, err := ledger.CheckAndIncrement(ctx, "u1", 5)
				require.NoError(t, err)
				assert.Equal(t, Result{Allowed: false, Used: 5, Limit: 5, Remaining: 0, DateKey: "2025-06-10"}, res)

				// Denial does not mutate.
				st, err := ledger.Status(ctx, "u1", 5)
				require.NoError(t, err)
				assert.Equal(t, 5, st.Used)
				assert.False(t, st.Allowed)
			})
		}
	})

	t.Run("unlimited always allows and still counts", func(t *testing.T) {
		for name, ledger := range backends(t, newClock(noonSeoul)) {
			t.Run(name, func(t *testing.T) {
				for i := 1; i <= 3; i++ {
					res, err := ledger.CheckAndIncrement(ctx, "arch", tier.Unlimited)
					require.NoError(t, err)
					assert.True(t, res.Allowed)
					assert.Equal(t, i, res.Used)
					assert.Equal(t, tier.Unlimited, res.Limit)
					assert.Equal(t, tier.Unlimited, res.Remaining)
				}
			})
		}
	})

	t.Run("zero limit denies without creating usage", func(t *testing.T) {
		for name, ledger := range backends(t, newClock(noonSeoul)) {
			t.Run(name, func(t *testing.T) {
				res, err := ledger.CheckAndIncrement(ctx, "u0", 0)
				require.NoError(t, err)
				assert.False(t, res.Allowed)
				assert.Equal(t, 0, res.Used)
			})
		}
	})

	t.Run("users and days are counted separately", func(t *testing.T) {
		c := newClock(noonSeoul)
		for name, ledger := range backends(t, c) {
			t.Run(name, func(t *testing.T) {
				c.Set(noonSeoul)
				_, err := ledger.CheckAndIncrement(ctx, "a", 1)
				require.NoError(t, err)
				res, err := ledger.CheckAndIncrement(ctx, "a", 1)
				require.NoError(t, err)
				assert.False(t, res.Allowed)

				res, err = ledger.CheckAndIncrement(ctx, "b", 1)
				require.NoError(t, err)
				assert.True(t, res.Allowed)

				// 15:30 UTC is 00:30 the next day in Seoul.
				c.Set(time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC))
				res, err = ledger.CheckAndIncrement(ctx, "a", 1)
				require.NoError(t, err)
				assert.True(t, res.Allowed)
				assert.Equal(t, "2025-06-11", res.DateKey)
				assert.Equal(t, 1, res.Used)
			})
		}
	})

	t.Run("status of an unseen user", func(t *testing.T) {
		for name, ledger := range backends(t, newClock(noonSeoul)) {
			t.Run(name, func(t *testing.T) {
				res, err := ledger.Status(ctx, "ghost", 30)
				require.NoError(t, err)
				assert.Equal(t, Result{Allowed: true, Used: 0, Limit: 30, Remaining: 30, DateKey: "2025-06-10"}, res)
			})
		}
	})
}

func TestLedgerConcurrentRequestsNeverExceedLimit(t *testing.T) {
	const (
		limit   = 5
		callers = 24
	)
	for name, ledger := range backends(t, newClock(noonSeoul)) {
		t.Run(name, func(t *testing.T) {
			var accepted atomic.Int32
			var g errgroup.Group
			for i := 0; i < callers; i++ {
				g.Go(func() error {
					res, err := ledger.CheckAndIncrement(context.Background(), "racer", limit)
					if err != nil {
						return err
					}
					if res.Allowed {
						accepted.Add(1)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			assert.EqualValues(t, limit, accepted.Load())
			st, err := ledger.Status(context.Background(), "racer", limit)
			require.NoError(t, err)
			assert.Equal(t, limit, st.Used)
		})
	}
}

func TestGormLedgerKeepsOneRowPerDay(t *testing.T) {
	db := testutil.SQLite(t)
	ledger := NewGormLedger(db, newClock(noonSeoul).zone(), nil)

	for i := 0; i < 3; i++ {
		_, err := ledger.CheckAndIncrement(context.Background(), "u1", 10)
		require.NoError(t, err)
	}

	var rows []models.QuotaUsageModel
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-06-10", rows[0].DateKey)
	assert.Equal(t, 3, rows[0].UsedCount)
}

func TestGormLedgerStoreFailure(t *testing.T) {
	db := testutil.SQLite(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	ledger := NewGormLedger(db, newClock(noonSeoul).zone(), nil)
	_, err = ledger.CheckAndIncrement(context.Background(), "u1", 5)
	assert.ErrorIs(t, err, ErrStore)
}

func TestRedisLedgerKeepsHistory(t *testing.T) {
	mr, rdb := testutil.Redis(t)
	ledger := NewRedisLedger(rdb, newClock(noonSeoul).zone())

	_, err := ledger.CheckAndIncrement(context.Background(), "u1", 5)
	require.NoError(t, err)

	key := redisQuotaKey("u1", "2025-06-10")
	assert.Zero(t, mr.TTL(key))

	mr.FastForward(30 * 24 * time.Hour)
	used, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "1", used)
}

func TestNegativeLimitOtherThanSentinelDenies(t *testing.T) {
	for name, ledger := range backends(t, newClock(noonSeoul)) {
		t.Run(name, func(t *testing.T) {
			res, err := ledger.CheckAndIncrement(context.Background(), "u1", -5)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Zero(t, res.Used)

			res, err = ledger.CheckAndIncrement(context.Background(), "u1", tier.Unlimited)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 1, res.Used)
		})
	}
}
