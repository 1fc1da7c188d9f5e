// Package graph turns a ticker snapshot into a per-exchange rate graph.
// Building is a pure function of the snapshot and the options: identical
// inputs always produce an identical graph.
package graph

import (
	"cmp"
	"math"
	"slices"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// maxSamples bounds how many data errors Stats keeps for logging.
const maxSamples = 5

// Options are the graph filters for one exchange.
type Options struct {
	Quotes           []domain.Currency
	FeeBps           uint32
	MinQuoteVol      float64
	RequireTopOfBook bool
	RequireQuote     bool
	RequireDualQuote bool
	CurrenciesLimit  int
	RankByQVol       bool
}

// Stats describes what a build kept and dropped.
type Stats struct {
	Tickers      int
	Nodes        int
	Edges        int
	DataErrors   int
	Samples      []*domain.DataError
	LowVolume    int
	NoTopOfBook  int
	NotQuoted    int
	SingleQuote  int
	OverLimit    int
	InvalidEdges int
}

func (s *Stats) dataError(e *domain.DataError) {
	s.DataErrors++
	if len(s.Samples) < maxSamples {
		s.Samples = append(s.Samples, e)
	}
}

// Builder builds graphs for one exchange.
type Builder struct {
	exchange domain.ExchangeID
	opts     Options
	allowed  map[domain.Currency]int // quote -> allowlist position
}

// NewBuilder creates a Builder.
func NewBuilder(exchange domain.ExchangeID, opts Options) *Builder {
	allowed := make(map[domain.Currency]int, len(opts.Quotes))
	for i, q := range opts.Quotes {
		if _, dup := allowed[q]; !dup {
			allowed[q] = i
		}
	}
	return &Builder{exchange: exchange, opts: opts, allowed: allowed}
}

// Build assembles the graph for snapshot. Malformed tickers are counted in
// Stats and skipped; they never abort the build.
func (b *Builder) Build(snap domain.TickerSnapshot) (domain.Graph, Stats) {
	var st Stats
	st.Tickers = len(snap.Tickers)

	keys := make([]string, 0, len(snap.Tickers))
	for k := range snap.Tickers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	accepted := make([]domain.TickerQuote, 0, len(keys))
	for _, k := range keys {
		q := snap.Tickers[k]
		if de := validate(k, q); de != nil {
			st.dataError(de)
			continue
		}
		if q.QuoteVolume < b.opts.MinQuoteVol {
			st.LowVolume++
			continue
		}
		if b.opts.RequireTopOfBook && !(q.Bid > 0 && q.Ask > 0) {
			st.NoTopOfBook++
			continue
		}
		if b.opts.RequireQuote && !b.isQuote(q.Quote) {
			st.NotQuoted++
			continue
		}
		accepted = append(accepted, q)
	}

	if b.opts.RequireDualQuote {
		accepted = b.dualQuoted(accepted, &st)
	}
	if b.opts.CurrenciesLimit > 0 {
		accepted = b.limitCurrencies(accepted, &st)
	}

	edges := make([]domain.RateEdge, 0, 2*len(accepted))
	for _, q := range accepted {
		tob := q.Bid > 0 && q.Ask > 0
		if q.Bid > 0 {
			edges = append(edges, domain.RateEdge{
				From: q.Base, To: q.Quote, Rate: q.Bid,
				FeeBps: b.opts.FeeBps, VolumeQuote: q.QuoteVolume,
				HasTopOfBook: tob, Exchange: b.exchange,
			})
		}
		if q.Ask > 0 {
			edges = append(edges, domain.RateEdge{
				From: q.Quote, To: q.Base, Rate: 1 / q.Ask,
				FeeBps: b.opts.FeeBps, VolumeQuote: q.QuoteVolume,
				HasTopOfBook: tob, Exchange: b.exchange,
			})
		}
	}
	for _, e := range edges {
		if !e.Valid() {
			st.InvalidEdges++
		}
	}

	g := domain.NewGraph(b.exchange, edges)
	st.Nodes = len(g.Nodes)
	st.Edges = len(g.Edges)
	return g, st
}

func (b *Builder) isQuote(c domain.Currency) bool {
	_, ok := b.allowed[c]
	return ok
}

// validate reports the first malformed field of a ticker.
func validate(key string, q domain.TickerQuote) *domain.DataError {
	switch {
	case q.Base == "" || q.Quote == "":
		return &domain.DataError{Symbol: key, Field: "symbol", Reason: "missing base or quote"}
	case q.Base == q.Quote:
		return &domain.DataError{Symbol: key, Field: "symbol", Reason: "base equals quote"}
	case !finiteNonNeg(q.Bid):
		return &domain.DataError{Symbol: key, Field: "bid", Reason: "not a finite non-negative number"}
	case !finiteNonNeg(q.Ask):
		return &domain.DataError{Symbol: key, Field: "ask", Reason: "not a finite non-negative number"}
	case !finiteNonNeg(q.QuoteVolume):
		return &domain.DataError{Symbol: key, Field: "quote_volume", Reason: "not a finite non-negative number"}
	case q.Bid == 0 && q.Ask == 0:
		return &domain.DataError{Symbol: key, Field: "bid/ask", Reason: "both sides missing"}
	}
	return nil
}

func finiteNonNeg(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// dualQuoted drops pairs touching a non-quote currency that trades against
// fewer than two allowlisted quotes.
func (b *Builder) dualQuoted(in []domain.TickerQuote, st *Stats) []domain.TickerQuote {
	links := make(map[domain.Currency]map[domain.Currency]struct{})
	link := func(c, q domain.Currency) {
		if links[c] == nil {
			links[c] = make(map[domain.Currency]struct{})
		}
		links[c][q] = struct{}{}
	}
	for _, q := range in {
		if b.isQuote(q.Quote) {
			link(q.Base, q.Quote)
		}
		if b.isQuote(q.Base) {
			link(q.Quote, q.Base)
		}
	}
	ok := func(c domain.Currency) bool {
		return b.isQuote(c) || len(links[c]) >= 2
	}

	out := in[:0:0]
	for _, q := range in {
		if ok(q.Base) && ok(q.Quote) {
			out = append(out, q)
		} else {
			st.SingleQuote++
		}
	}
	return out
}

// limitCurrencies keeps at most CurrenciesLimit currencies. Allowlisted
// quotes rank first in allowlist order, then the rest by aggregate quote
// volume (or name when RankByQVol is off), ties broken by name. Pairs with a
// dropped currency are removed.
func (b *Builder) limitCurrencies(in []domain.TickerQuote, st *Stats) []domain.TickerQuote {
	volume := make(map[domain.Currency]float64)
	for _, q := range in {
		volume[q.Base] += q.QuoteVolume
		volume[q.Quote] += q.QuoteVolume
	}
	if len(volume) <= b.opts.CurrenciesLimit {
		return in
	}

	ranked := make([]domain.Currency, 0, len(volume))
	for c := range volume {
		ranked = append(ranked, c)
	}
	slices.SortFunc(ranked, func(x, y domain.Currency) int {
		xi, xq := b.allowed[x]
		yi, yq := b.allowed[y]
		switch {
		case xq && yq:
			return cmp.Compare(xi, yi)
		case xq:
			return -1
		case yq:
			return 1
		}
		if b.opts.RankByQVol {
			if c := cmp.Compare(volume[y], volume[x]); c != 0 {
				return c
			}
		}
		return cmp.Compare(x, y)
	})

	keep := make(map[domain.Currency]bool, b.opts.CurrenciesLimit)
	for _, c := range ranked[:b.opts.CurrenciesLimit] {
		keep[c] = true
	}

	out := in[:0:0]
	for _, q := range in {
		if keep[q.Base] && keep[q.Quote] {
			out = append(out, q)
		} else {
			st.OverLimit++
		}
	}
	return out
}
