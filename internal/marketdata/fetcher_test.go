package marketdata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	markets    domain.MarketSet
	quotes     map[string]domain.TickerQuote
	marketsErr error
	tickersErr error
	loads      atomic.Int32
	requested  []string
}

func (s *fakeSource) Name() domain.ExchangeID { return "fake" }

func (s *fakeSource) LoadMarkets(context.Context) (domain.MarketSet, error) {
	s.loads.Add(1)
	return s.markets, s.marketsErr
}

func (s *fakeSource) FetchTickers(_ context.Context, symbols []string) (map[string]domain.TickerQuote, error) {
	s.requested = symbols
	if s.tickersErr != nil {
		return nil, s.tickersErr
	}
	out := make(map[string]domain.TickerQuote)
	for _, sym := range symbols {
		if q, ok := s.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

func newFakeSource(ts time.Time) *fakeSource {
	return &fakeSource{
		markets: domain.MarketSet{Pairs: []domain.Pair{
			{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Active: true},
			{Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", Active: true},
			{Symbol: "DOGEEUR", Base: "DOGE", Quote: "EUR", Active: true},
			{Symbol: "OLDUSDT", Base: "OLD", Quote: "USDT", Active: false},
		}},
		quotes: map[string]domain.TickerQuote{
			"BTCUSDT": {Bid: 60000, Ask: 60001, QuoteVolume: 1e6, Timestamp: ts},
			"ETHBTC":  {Bid: 0.05, Ask: 0.0501, QuoteVolume: 10, Timestamp: ts.Add(-time.Hour)},
		},
	}
}

func TestNewFetcherRequiresAllowlist(t *testing.T) {
	_, err := NewFetcher(newFakeSource(time.Now()), Options{}, discard)
	assert.ErrorIs(t, err, domain.ErrEmptyAllowlist)
}

func TestFetchSelectsAllowlistedPairs(t *testing.T) {
	src := newFakeSource(time.Now())
	f, err := NewFetcher(src, Options{Quotes: []domain.Currency{"USDT", "BTC"}, MarketsTTL: time.Hour}, discard)
	require.NoError(t, err)

	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHBTC"}, src.requested)
	require.Len(t, snap.Tickers, 2)
	q := snap.Tickers["BTC/USDT"]
	assert.Equal(t, domain.Currency("BTC"), q.Base)
	assert.Equal(t, domain.Currency("USDT"), q.Quote)
	assert.Equal(t, domain.ExchangeID("fake"), snap.Exchange)
}

func TestFetchDropsStaleTickers(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	src := newFakeSource(now)
	f, err := NewFetcher(src, Options{
		Quotes:       []domain.Currency{"USDT", "BTC"},
		MaxTickerAge: time.Minute,
	}, discard, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	snap, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Tickers, 1)
	assert.Equal(t, 1, snap.Dropped)
	assert.Contains(t, snap.Tickers, "BTC/USDT")
}

func TestFetchReusesMarketsWithinTTL(t *testing.T) {
	src := newFakeSource(time.Now())
	f, err := NewFetcher(src, Options{Quotes: []domain.Currency{"USDT"}, MarketsTTL: time.Hour}, discard)
	require.NoError(t, err)

	for range 3 {
		_, err := f.Fetch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.loads.Load())
}

func TestFetchWrapsErrors(t *testing.T) {
	src := newFakeSource(time.Now())
	src.tickersErr = io.ErrUnexpectedEOF
	f, err := NewFetcher(src, Options{Quotes: []domain.Currency{"USDT"}}, discard)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.ExchangeID("fake"), fe.Exchange)
	assert.True(t, fe.Transient())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFetchKeepsTerminalKind(t *testing.T) {
	src := newFakeSource(time.Now())
	src.marketsErr = domain.NewFetchError("fake", domain.FetchTerminal, domain.ErrUnauthorized)
	f, err := NewFetcher(src, Options{Quotes: []domain.Currency{"USDT"}}, discard)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.FetchTerminal, fe.Kind)
}

func TestFetchNoMatchingMarkets(t *testing.T) {
	f, err := NewFetcher(newFakeSource(time.Now()), Options{Quotes: []domain.Currency{"JPY"}}, discard)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoMarkets)
}

type memCache struct {
	sets map[domain.ExchangeID]domain.MarketSet
}

func (c *memCache) GetMarkets(_ context.Context, ex domain.ExchangeID) (domain.MarketSet, error) {
	s, ok := c.sets[ex]
	if !ok {
		return domain.MarketSet{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *memCache) SetMarkets(_ context.Context, s domain.MarketSet, _ time.Duration) error {
	c.sets[s.Exchange] = s
	return nil
}

type countingLimiter struct{ waits int }

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(context.Context, string, int, time.Duration) error {
	l.waits++
	return nil
}

func TestFetchUsesSharedCacheAndLimiter(t *testing.T) {
	src := newFakeSource(time.Now())
	src.markets.Exchange = "fake"
	cache := &memCache{sets: map[domain.ExchangeID]domain.MarketSet{}}
	limiter := &countingLimiter{}

	opts := Options{Quotes: []domain.Currency{"USDT"}, MarketsTTL: time.Hour, RateLimit: 5, RateWindow: time.Second}
	first, err := NewFetcher(src, opts, discard, WithMarketCache(cache), WithRateLimiter(limiter))
	require.NoError(t, err)
	_, err = first.Fetch(context.Background())
	require.NoError(t, err)
	assert.Contains(t, cache.sets, domain.ExchangeID("fake"))
	assert.Equal(t, 2, limiter.waits)

	second, err := NewFetcher(src, opts, discard, WithMarketCache(cache), WithRateLimiter(limiter))
	require.NoError(t, err)
	_, err = second.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.loads.Load(), "second fetcher reads the shared cache")
	assert.Equal(t, 3, limiter.waits)
}

func TestWarmPreloadsMarkets(t *testing.T) {
	src := newFakeSource(time.Now())
	f, err := NewFetcher(src, Options{Quotes: []domain.Currency{"USDT", "BTC"}, MarketsTTL: time.Hour}, discard)
	require.NoError(t, err)

	n, err := f.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.loads.Load())
}

func TestWarmReportsSourceError(t *testing.T) {
	src := newFakeSource(time.Now())
	src.marketsErr = errors.New("maintenance")
	f, err := NewFetcher(src, Options{Quotes: []domain.Currency{"USDT"}}, discard)
	require.NoError(t, err)

	_, err = f.Warm(context.Background())
	assert.ErrorContains(t, err, "warm fake")
	assert.ErrorContains(t, err, "maintenance")
}
