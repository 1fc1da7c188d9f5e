package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cyclebot/internal/arbitrage"
	s3blob "github.com/alanyoungcy/cyclebot/internal/blob/s3"
	"github.com/alanyoungcy/cyclebot/internal/cache/redis"
	"github.com/alanyoungcy/cyclebot/internal/config"
	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/engine"
	"github.com/alanyoungcy/cyclebot/internal/executor"
	"github.com/alanyoungcy/cyclebot/internal/graph"
	"github.com/alanyoungcy/cyclebot/internal/marketdata"
	"github.com/alanyoungcy/cyclebot/internal/metrics"
	"github.com/alanyoungcy/cyclebot/internal/notify"
	"github.com/alanyoungcy/cyclebot/internal/platform/binance"
	"github.com/alanyoungcy/cyclebot/internal/platform/kucoin"
	"github.com/alanyoungcy/cyclebot/internal/platform/snapshotfile"
	"github.com/alanyoungcy/cyclebot/internal/sink"
)

const (
	sinkTimeout   = 10 * time.Second
	warmTimeout   = 30 * time.Second
	warmParallel  = 4
	defaultClient = 10 * time.Second
)

// runtime is the engine and the collaborators built around it.
type runtime struct {
	engine    *engine.Engine
	metrics   *metrics.Collector
	exchanges []string
}

// buildRuntime assembles fetchers, builders, sinks and the engine. extra sinks
// are appended after the configured ones.
func (a *App) buildRuntime(ctx context.Context, deps *Dependencies, extra ...domain.IterationSink) (*runtime, error) {
	cfg := a.cfg

	strategy, err := arbitrage.DefaultRegistry().Get(cfg.Engine.Strategy)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	exchanges, fetchers, err := buildExchanges(cfg, deps, a.logger)
	if err != nil {
		return nil, err
	}
	a.warmMarkets(ctx, fetchers)

	fanout := sink.NewFanout(sinkTimeout, a.logger, buildSinks(cfg, deps, a.logger)...)
	for _, s := range extra {
		fanout.Add(s)
	}

	options := []engine.Option{engine.WithSink(fanout)}
	if cfg.Executor.Enabled {
		options = append(options, engine.WithExecutor(executor.NewLogExecutor(cfg.Executor.DedupTTL.Duration, a.logger)))
	}
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Metrics.Namespace)
		options = append(options, engine.WithObserver(collector))
	}

	eng, err := engine.New(exchanges, strategy, engineOptions(cfg.Engine), a.logger, options...)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(fetchers))
	for i, f := range fetchers {
		names[i] = string(f.Exchange())
	}
	return &runtime{engine: eng, metrics: collector, exchanges: names}, nil
}

func engineOptions(ec config.EngineConfig) engine.Options {
	return engine.Options{
		Params: arbitrage.Params{
			MinHops: ec.MinHops,
			MaxHops: ec.MaxHops,
			MinNet:  ec.MinNet,
		},
		Top:             ec.Top,
		DetectTimeout:   ec.DetectTimeout.Duration,
		IterationBudget: ec.IterationBudget.Duration,
		Repeat:          ec.Repeat,
		RepeatSleep:     ec.RepeatSleep.Duration,
		Simulate:        ec.Simulate,
		InitialBaseline: ec.InitialBaseline,
	}
}

// buildExchanges creates one long-lived fetcher and graph builder per
// configured exchange.
func buildExchanges(cfg *config.Config, deps *Dependencies, logger *slog.Logger) ([]engine.Exchange, []*marketdata.Fetcher, error) {
	quotes := make([]domain.Currency, len(cfg.Graph.Quotes))
	for i, q := range cfg.Graph.Quotes {
		quotes[i] = domain.Currency(q)
	}

	var fetchOpts []marketdata.Option
	if deps.MarketCache != nil {
		fetchOpts = append(fetchOpts, marketdata.WithMarketCache(deps.MarketCache))
	}
	if deps.RateLimiter != nil {
		fetchOpts = append(fetchOpts, marketdata.WithRateLimiter(deps.RateLimiter))
	}

	exchanges := make([]engine.Exchange, 0, len(cfg.Exchanges))
	fetchers := make([]*marketdata.Fetcher, 0, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		src, err := newSource(ex, deps.BlobReader)
		if err != nil {
			return nil, nil, err
		}
		f, err := marketdata.NewFetcher(src, marketdata.Options{
			Quotes:       quotes,
			MarketsTTL:   ex.MarketsTTL.Duration,
			MaxTickerAge: cfg.Graph.MaxTickerAge.Duration,
			RateLimit:    ex.RateLimit,
			RateWindow:   ex.RateWindow.Duration,
		}, logger, fetchOpts...)
		if err != nil {
			return nil, nil, err
		}

		b := graph.NewBuilder(src.Name(), graph.Options{
			Quotes:           quotes,
			FeeBps:           ex.Fee(cfg.Graph.FeeBps),
			MinQuoteVol:      cfg.Graph.MinQuoteVol,
			RequireTopOfBook: cfg.Graph.RequireTopOfBook,
			RequireQuote:     cfg.Graph.RequireQuote,
			RequireDualQuote: cfg.Graph.RequireDualQuote,
			CurrenciesLimit:  cfg.Graph.CurrenciesLimit,
			RankByQVol:       cfg.Graph.RankByQVol,
		})

		exchanges = append(exchanges, engine.Exchange{Fetcher: f, Builder: b})
		fetchers = append(fetchers, f)
	}
	return exchanges, fetchers, nil
}

func newSource(ex config.ExchangeConfig, blobs domain.BlobReader) (marketdata.Source, error) {
	name := domain.ExchangeID(ex.Name)
	timeout := ex.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultClient
	}
	switch ex.Kind {
	case "binance":
		return binance.NewClient(name, ex.BaseURL, timeout), nil
	case "kucoin":
		return kucoin.NewClient(name, ex.BaseURL, timeout), nil
	case "snapshot":
		return snapshotfile.New(name, ex.SnapshotPath, blobs), nil
	default:
		return nil, fmt.Errorf("exchange %s: unknown kind %q", ex.Name, ex.Kind)
	}
}

// buildSinks returns the configured result sinks. The log sink is always on.
func buildSinks(cfg *config.Config, deps *Dependencies, logger *slog.Logger) []domain.IterationSink {
	sinks := []domain.IterationSink{sink.NewLogSink(logger)}
	if deps.Store != nil {
		sinks = append(sinks, sink.NewStoreSink(deps.StoreName, deps.Store))
	}
	if deps.BlobWriter != nil {
		sinks = append(sinks, s3blob.NewArchiver(deps.BlobWriter, cfg.S3.Prefix))
	}
	if deps.SignalBus != nil {
		sinks = append(sinks, redis.NewIterationPublisher(deps.SignalBus, cfg.Redis.Channel, cfg.Redis.Stream))
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		sinks = append(sinks, notify.NewAlertSink(deps.Notifier, cfg.Notify.MinNet))
	}
	return sinks
}

// warmMarkets loads every exchange's market listing concurrently so the first
// iteration spends its budget on tickers. Failures are logged; the engine
// reports the exchange as failed on its first fetch.
func (a *App) warmMarkets(ctx context.Context, fetchers []*marketdata.Fetcher) {
	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(warmParallel)
	for _, f := range fetchers {
		g.Go(func() error {
			pairs, err := f.Warm(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "market warmup failed",
					slog.String("exchange", string(f.Exchange())),
					slog.String("error", err.Error()),
				)
				return nil
			}
			a.logger.DebugContext(ctx, "markets warmed",
				slog.String("exchange", string(f.Exchange())),
				slog.Int("pairs", pairs),
			)
			return nil
		})
	}
	_ = g.Wait()
}
