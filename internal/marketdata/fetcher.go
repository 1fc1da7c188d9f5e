package marketdata

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Options configures a Fetcher.
type Options struct {
	// Quotes is the quote currency allowlist. Only pairs touching at least
	// one of these currencies are requested.
	Quotes []domain.Currency
	// MarketsTTL is how long a market listing is reused before reloading.
	MarketsTTL time.Duration
	// MaxTickerAge drops quotes older than this when the source reports a
	// timestamp. Zero disables the check.
	MaxTickerAge time.Duration
	// RateLimit and RateWindow bound REST calls through the shared limiter.
	RateLimit  int
	RateWindow time.Duration
}

// Option customises optional Fetcher collaborators.
type Option func(*Fetcher)

// WithMarketCache mirrors market listings to a shared cache.
func WithMarketCache(c domain.MarketCache) Option {
	return func(f *Fetcher) { f.cache = c }
}

// WithRateLimiter throttles REST calls through l.
func WithRateLimiter(l domain.RateLimiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// Fetcher produces a TickerSnapshot for one exchange.
type Fetcher struct {
	src     Source
	opts    Options
	quotes  map[domain.Currency]bool
	cache   domain.MarketCache
	limiter domain.RateLimiter
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	markets  domain.MarketSet
	loadedAt time.Time
}

// NewFetcher creates a Fetcher. It returns domain.ErrEmptyAllowlist when no
// quote currency is configured.
func NewFetcher(src Source, opts Options, logger *slog.Logger, options ...Option) (*Fetcher, error) {
	if len(opts.Quotes) == 0 {
		return nil, fmt.Errorf("marketdata: %s: %w", src.Name(), domain.ErrEmptyAllowlist)
	}
	quotes := make(map[domain.Currency]bool, len(opts.Quotes))
	for _, q := range opts.Quotes {
		quotes[q] = true
	}
	f := &Fetcher{
		src:    src,
		opts:   opts,
		quotes: quotes,
		now:    time.Now,
		logger: logger.With(
			slog.String("component", "fetcher"),
			slog.String("exchange", string(src.Name())),
		),
	}
	for _, o := range options {
		o(f)
	}
	return f, nil
}

// Exchange returns the exchange this fetcher serves.
func (f *Fetcher) Exchange() domain.ExchangeID { return f.src.Name() }

// Fetch captures a snapshot of every active pair touching the quote
// allowlist. Failures are returned as *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context) (domain.TickerSnapshot, error) {
	exchange := f.src.Name()

	markets, err := f.loadMarkets(ctx)
	if err != nil {
		return domain.TickerSnapshot{}, domain.NewFetchError(exchange, domain.FetchTransient, err)
	}

	pairs := f.selectPairs(markets)
	if len(pairs) == 0 {
		return domain.TickerSnapshot{}, domain.NewFetchError(exchange, domain.FetchTerminal,
			fmt.Errorf("marketdata: %s: %w", exchange, domain.ErrNoMarkets))
	}
	symbols := make([]string, len(pairs))
	for i, p := range pairs {
		symbols[i] = p.Symbol
	}

	if err := f.wait(ctx); err != nil {
		return domain.TickerSnapshot{}, domain.NewFetchError(exchange, domain.FetchTransient, err)
	}
	raw, err := f.src.FetchTickers(ctx, symbols)
	if err != nil {
		return domain.TickerSnapshot{}, domain.NewFetchError(exchange, domain.FetchTransient, err)
	}

	now := f.now()
	snap := domain.TickerSnapshot{
		Exchange:  exchange,
		FetchedAt: now,
		Tickers:   make(map[string]domain.TickerQuote, len(raw)),
	}
	for _, p := range pairs {
		q, ok := raw[p.Symbol]
		if !ok {
			continue
		}
		if f.stale(q, now) {
			snap.Dropped++
			continue
		}
		q.Symbol = p.Symbol
		q.Base = p.Base
		q.Quote = p.Quote
		snap.Tickers[p.Key()] = q
	}

	if snap.Dropped > 0 {
		f.logger.DebugContext(ctx, "dropped stale tickers",
			slog.Int("dropped", snap.Dropped),
			slog.Duration("max_age", f.opts.MaxTickerAge),
		)
	}
	return snap, nil
}

// Warm loads the market listing ahead of the first Fetch. It returns the
// number of pairs the allowlist selects.
func (f *Fetcher) Warm(ctx context.Context) (int, error) {
	markets, err := f.loadMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("marketdata: warm %s: %w", f.src.Name(), err)
	}
	return len(f.selectPairs(markets)), nil
}

func (f *Fetcher) stale(q domain.TickerQuote, now time.Time) bool {
	if f.opts.MaxTickerAge <= 0 || q.Timestamp.IsZero() {
		return false
	}
	return now.Sub(q.Timestamp) > f.opts.MaxTickerAge
}

// selectPairs returns active pairs with at least one side in the quote
// allowlist, sorted by normalised key. When the exchange lists the same
// BASE/QUOTE twice, the first symbol wins.
func (f *Fetcher) selectPairs(markets domain.MarketSet) []domain.Pair {
	seen := make(map[string]bool, len(markets.Pairs))
	out := make([]domain.Pair, 0, len(markets.Pairs))
	for _, p := range markets.Pairs {
		if !p.Active || p.Base == p.Quote {
			continue
		}
		if !f.quotes[p.Quote] && !f.quotes[p.Base] {
			continue
		}
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Pair) int {
		return cmp.Compare(a.Key(), b.Key())
	})
	return out
}

// loadMarkets returns the cached listing while it is fresh, then the shared
// cache, then the source itself.
func (f *Fetcher) loadMarkets(ctx context.Context) (domain.MarketSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if !f.loadedAt.IsZero() && now.Sub(f.loadedAt) < f.opts.MarketsTTL {
		return f.markets, nil
	}

	exchange := f.src.Name()
	if f.cache != nil {
		set, err := f.cache.GetMarkets(ctx, exchange)
		switch {
		case err == nil:
			f.markets, f.loadedAt = set, now
			return set, nil
		case !errors.Is(err, domain.ErrNotFound):
			f.logger.WarnContext(ctx, "market cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if err := f.wait(ctx); err != nil {
		return domain.MarketSet{}, err
	}
	set, err := f.src.LoadMarkets(ctx)
	if err != nil {
		return domain.MarketSet{}, err
	}
	if set.LoadedAt.IsZero() {
		set.LoadedAt = now
	}
	f.markets, f.loadedAt = set, now

	if f.cache != nil && f.opts.MarketsTTL > 0 {
		if err := f.cache.SetMarkets(ctx, set, f.opts.MarketsTTL); err != nil {
			f.logger.WarnContext(ctx, "market cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	f.logger.InfoContext(ctx, "markets loaded", slog.Int("pairs", len(set.Pairs)))
	return set, nil
}

func (f *Fetcher) wait(ctx context.Context) error {
	if f.limiter == nil || f.opts.RateLimit <= 0 {
		return nil
	}
	key := "rest:" + string(f.src.Name())
	if err := f.limiter.Wait(ctx, key, f.opts.RateLimit, f.opts.RateWindow); err != nil {
		return fmt.Errorf("marketdata: %w", err)
	}
	return nil
}
