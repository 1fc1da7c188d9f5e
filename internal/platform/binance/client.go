// Package binance reads spot market listings and 24h tickers from the Binance
// REST API.
package binance

import (
	"context"
	"net/url"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/marketdata"
	"github.com/alanyoungcy/cyclebot/internal/platform/rest"
)

// Client is a marketdata.Source for Binance spot.
type Client struct {
	name domain.ExchangeID
	rest *rest.Client
}

// NewClient creates a Binance client. baseURL is the API root, e.g.
// "https://api.binance.com".
func NewClient(name domain.ExchangeID, baseURL string, timeout time.Duration) *Client {
	return &Client{
		name: name,
		rest: rest.NewClient(name, baseURL, timeout),
	}
}

// Name returns the configured exchange ID.
func (c *Client) Name() domain.ExchangeID { return c.name }

// LoadMarkets lists every spot symbol. Only symbols in TRADING status are
// marked active.
func (c *Client) LoadMarkets(ctx context.Context) (domain.MarketSet, error) {
	var info exchangeInfo
	if err := c.rest.GetJSON(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return domain.MarketSet{}, err
	}

	set := domain.MarketSet{
		Exchange: c.name,
		Pairs:    make([]domain.Pair, 0, len(info.Symbols)),
		LoadedAt: time.Now(),
	}
	for _, s := range info.Symbols {
		if s.BaseAsset == "" || s.QuoteAsset == "" {
			continue
		}
		set.Pairs = append(set.Pairs, domain.Pair{
			Symbol: s.Symbol,
			Base:   domain.Currency(s.BaseAsset),
			Quote:  domain.Currency(s.QuoteAsset),
			Active: s.Status == "TRADING",
		})
	}
	return set, nil
}

// FetchTickers returns quotes for the requested native symbols. Binance's
// full 24h ticker list is fetched in one call and filtered locally.
func (c *Client) FetchTickers(ctx context.Context, symbols []string) (map[string]domain.TickerQuote, error) {
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}

	var tickers []ticker24h
	if err := c.rest.GetJSON(ctx, "/api/v3/ticker/24hr", url.Values{"type": {"FULL"}}, &tickers); err != nil {
		return nil, err
	}

	out := make(map[string]domain.TickerQuote, len(want))
	for _, t := range tickers {
		if _, ok := want[t.Symbol]; !ok {
			continue
		}
		q := domain.TickerQuote{
			Symbol:      t.Symbol,
			Bid:         rest.ParseNumber(t.BidPrice),
			Ask:         rest.ParseNumber(t.AskPrice),
			BaseVolume:  rest.ParseNumber(t.Volume),
			QuoteVolume: rest.ParseNumber(t.QuoteVolume),
		}
		if t.CloseTime > 0 {
			q.Timestamp = time.UnixMilli(t.CloseTime)
		}
		out[t.Symbol] = q
	}
	return out, nil
}

// Compile-time interface check.
var _ marketdata.Source = (*Client)(nil)
