package domain

import "time"

// Pair is a tradable market as listed by an exchange.
type Pair struct {
	Symbol string   `json:"symbol"` // exchange-native symbol, e.g. "BTCUSDT" or "BTC-USDT"
	Base   Currency `json:"base"`
	Quote  Currency `json:"quote"`
	Active bool     `json:"active"`
}

// Key is the normalised "BASE/QUOTE" form.
func (p Pair) Key() string {
	return PairKey(p.Base, p.Quote)
}

// PairKey joins base and quote as "BASE/QUOTE".
func PairKey(base, quote Currency) string {
	return string(base) + "/" + string(quote)
}

// MarketSet is the list of pairs an exchange offers.
type MarketSet struct {
	Exchange ExchangeID `json:"exchange"`
	Pairs    []Pair     `json:"pairs"`
	LoadedAt time.Time  `json:"loaded_at"`
}

// TickerQuote is the top of book and 24h volume for one pair. A zero Bid or
// Ask means the side is missing. Timestamp is zero when the source does not
// report one.
type TickerQuote struct {
	Symbol      string    `json:"symbol"`
	Base        Currency  `json:"base"`
	Quote       Currency  `json:"quote"`
	Bid         float64   `json:"bid"`
	Ask         float64   `json:"ask"`
	BaseVolume  float64   `json:"base_volume"`
	QuoteVolume float64   `json:"quote_volume"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// TickerSnapshot is the set of quotes captured from one exchange at the start
// of an iteration, keyed by "BASE/QUOTE".
type TickerSnapshot struct {
	Exchange  ExchangeID             `json:"exchange"`
	FetchedAt time.Time              `json:"fetched_at"`
	Tickers   map[string]TickerQuote `json:"tickers"`
	Dropped   int                    `json:"dropped"`
}
