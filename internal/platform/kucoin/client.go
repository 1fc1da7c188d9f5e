// Package kucoin reads spot market listings and tickers from the KuCoin REST
// API.
package kucoin

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/marketdata"
	"github.com/alanyoungcy/cyclebot/internal/platform/rest"
)

// codeOK is KuCoin's success code inside the response envelope.
const codeOK = "200000"

// Client is a marketdata.Source for KuCoin spot.
type Client struct {
	name domain.ExchangeID
	rest *rest.Client
}

// NewClient creates a KuCoin client. baseURL is the API root, e.g.
// "https://api.kucoin.com".
func NewClient(name domain.ExchangeID, baseURL string, timeout time.Duration) *Client {
	return &Client{
		name: name,
		rest: rest.NewClient(name, baseURL, timeout),
	}
}

// Name returns the configured exchange ID.
func (c *Client) Name() domain.ExchangeID { return c.name }

// LoadMarkets lists every spot symbol.
func (c *Client) LoadMarkets(ctx context.Context) (domain.MarketSet, error) {
	var resp envelope[[]symbol]
	if err := c.rest.GetJSON(ctx, "/api/v2/symbols", nil, &resp); err != nil {
		return domain.MarketSet{}, err
	}
	if err := c.checkCode(resp.Code, resp.Msg); err != nil {
		return domain.MarketSet{}, err
	}

	set := domain.MarketSet{
		Exchange: c.name,
		Pairs:    make([]domain.Pair, 0, len(resp.Data)),
		LoadedAt: time.Now(),
	}
	for _, s := range resp.Data {
		if s.BaseCurrency == "" || s.QuoteCurrency == "" {
			continue
		}
		set.Pairs = append(set.Pairs, domain.Pair{
			Symbol: s.Symbol,
			Base:   domain.Currency(s.BaseCurrency),
			Quote:  domain.Currency(s.QuoteCurrency),
			Active: s.EnableTrading,
		})
	}
	return set, nil
}

// FetchTickers returns quotes for the requested native symbols. All tickers
// share the snapshot time reported by the endpoint.
func (c *Client) FetchTickers(ctx context.Context, symbols []string) (map[string]domain.TickerQuote, error) {
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}

	var resp envelope[allTickers]
	if err := c.rest.GetJSON(ctx, "/api/v1/market/allTickers", nil, &resp); err != nil {
		return nil, err
	}
	if err := c.checkCode(resp.Code, resp.Msg); err != nil {
		return nil, err
	}

	var ts time.Time
	if resp.Data.Time > 0 {
		ts = time.UnixMilli(resp.Data.Time)
	}

	out := make(map[string]domain.TickerQuote, len(want))
	for _, t := range resp.Data.Ticker {
		if _, ok := want[t.Symbol]; !ok {
			continue
		}
		out[t.Symbol] = domain.TickerQuote{
			Symbol:      t.Symbol,
			Bid:         rest.ParseNumber(t.Buy),
			Ask:         rest.ParseNumber(t.Sell),
			BaseVolume:  rest.ParseNumber(t.Vol),
			QuoteVolume: rest.ParseNumber(t.VolValue),
			Timestamp:   ts,
		}
	}
	return out, nil
}

// checkCode turns an application-level error inside a 200 response into a
// transient fetch error.
func (c *Client) checkCode(code, msg string) error {
	if code == "" || code == codeOK {
		return nil
	}
	return domain.NewFetchError(c.name, domain.FetchTransient,
		fmt.Errorf("kucoin: api code %s: %s", code, msg))
}

// Compile-time interface check.
var _ marketdata.Source = (*Client)(nil)
