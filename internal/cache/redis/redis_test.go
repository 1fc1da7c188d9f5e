package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), ClientConfig{Addr: addr})
	assert.Error(t, err)
}

func TestNewAcceptsURL(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: "redis://" + mr.Addr() + "/2", PoolSize: 3})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 2, c.rdb.Options().DB)
	assert.Equal(t, 3, c.rdb.Options().PoolSize)
}

func TestMarketCacheRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	mc := NewMarketCache(c)
	ctx := context.Background()

	_, err := mc.GetMarkets(ctx, "binance")
	require.ErrorIs(t, err, domain.ErrNotFound)

	set := domain.MarketSet{
		Exchange: "binance",
		Pairs:    []domain.Pair{{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Active: true}},
		LoadedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
	require.NoError(t, mc.SetMarkets(ctx, set, time.Hour))

	got, err := mc.GetMarkets(ctx, "binance")
	require.NoError(t, err)
	assert.Equal(t, set.Pairs, got.Pairs)
	assert.True(t, set.LoadedAt.Equal(got.LoadedAt))

	mr.FastForward(2 * time.Hour)
	_, err = mc.GetMarkets(ctx, "binance")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, mc.SetMarkets(ctx, set, time.Hour))
	require.NoError(t, mc.Invalidate(ctx, "binance"))
	_, err = mc.GetMarkets(ctx, "binance")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "rest:binance", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "rest:binance", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "rest:kucoin", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(1500 * time.Millisecond)
	ok, err = rl.Allow(ctx, "rest:binance", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterWaitSleepsUntilSlotFrees(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx, "short", 1, 100*time.Millisecond))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "short", 1, 100*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	require.NoError(t, rl.Wait(context.Background(), "k", 1, time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLockManager(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "cyclebot:engine", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "cyclebot:engine", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "cyclebot:engine", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockRefreshesWhileHeld(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(context.Background(), "refresh", 300*time.Millisecond)
	require.NoError(t, err)

	mr.FastForward(250 * time.Millisecond)
	require.True(t, mr.Exists("lock:refresh"))
	assert.Eventually(t, func() bool {
		return mr.TTL("lock:refresh") > 100*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)

	unlock()
	assert.False(t, mr.Exists("lock:refresh"))
}

func TestSignalBusPatternSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 0)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := bus.Subscribe(ctx, "cyclebot:*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "cyclebot:alerts", []byte("hello")))

	select {
	case payload := <-sub:
		assert.Equal(t, "hello", string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no pattern message")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, open := <-sub:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIterationPublisher(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "cyclebot:iterations")
	require.NoError(t, err)

	pub := NewIterationPublisher(bus, "cyclebot:iterations", "cyclebot:iterations:log")
	res := domain.IterationResult{
		ID:  "it-1",
		Seq: 7,
		Ranked: []domain.Opportunity{{
			Exchange:  "binance",
			Path:      []domain.Currency{"BTC", "ETH", "USDT", "BTC"},
			Hops:      3,
			NetProfit: 0.02,
			Rank:      1,
		}},
	}
	require.NoError(t, pub.Emit(ctx, res))

	select {
	case payload := <-sub:
		assert.Contains(t, string(payload), `"id":"it-1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no pub/sub message")
	}

	got, last, err := ReadIterations(ctx, bus, "cyclebot:iterations:log", "0", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Seq)
	assert.Equal(t, res.Ranked[0].Path, got[0].Ranked[0].Path)
	assert.NotEqual(t, "0", last)

	more, _, err := ReadIterations(ctx, bus, "cyclebot:iterations:log", last, 10)
	require.NoError(t, err)
	assert.Empty(t, more)
}
