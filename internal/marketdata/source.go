// Package marketdata captures per-exchange ticker snapshots. A Fetcher owns
// the long-lived session state for one exchange (its Source and the market
// listing cache) and is reused across iterations.
package marketdata

import (
	"context"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Source is an exchange market data client. FetchTickers is keyed by the
// exchange-native symbol of each requested pair.
type Source interface {
	Name() domain.ExchangeID
	LoadMarkets(ctx context.Context) (domain.MarketSet, error)
	FetchTickers(ctx context.Context, symbols []string) (map[string]domain.TickerQuote, error)
}
