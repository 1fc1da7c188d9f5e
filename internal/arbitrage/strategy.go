// Package arbitrage detects profitable conversion cycles in per-exchange rate
// graphs. Detection strategies are selected by name from a Registry once per
// run; a Delegator runs the chosen strategy under a deadline and a Ranker
// merges the per-exchange results.
package arbitrage

import (
	"cmp"
	"context"
	"slices"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Params bound the cycles a strategy reports.
type Params struct {
	MinHops int
	MaxHops int
	// MinNet is the smallest acceptable fractional profit, e.g. 0.001.
	MinNet float64
}

// Validate returns a *domain.ConfigError for unusable bounds.
func (p Params) Validate() error {
	errs := &domain.ConfigError{}
	if p.MinHops < 2 {
		errs.Add("min_hops must be >= 2, got %d", p.MinHops)
	}
	if p.MinHops > p.MaxHops {
		errs.Add("min_hops (%d) must not exceed max_hops (%d)", p.MinHops, p.MaxHops)
	}
	if p.MinNet <= -1 {
		errs.Add("min_net must be > -1, got %g", p.MinNet)
	}
	return errs.OrNil()
}

// Strategy is a cycle detection technique. Detect must only read g and must
// return opportunities with Path, Hops, NetProfit and GrossWeightSum set.
// Implementations return domain.ErrMalformedGraph for graphs that fail
// validation and an empty result when nothing qualifies.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, g domain.Graph, p Params) ([]domain.Opportunity, error)
}

// edgeIndex maps a directed pair to its weight.
type edgeIndex map[[2]domain.Currency]float64

func indexEdges(g domain.Graph) edgeIndex {
	idx := make(edgeIndex, len(g.Edges))
	for _, e := range g.Edges {
		idx[[2]domain.Currency{e.From, e.To}] = e.Weight()
	}
	return idx
}

// cycleWeight sums the weights along a closed path. ok is false when a hop
// has no edge.
func (idx edgeIndex) cycleWeight(path []domain.Currency) (sum float64, ok bool) {
	for i := 0; i+1 < len(path); i++ {
		w, found := idx[[2]domain.Currency{path[i], path[i+1]}]
		if !found {
			return 0, false
		}
		sum += w
	}
	return sum, true
}

// collector dedupes cycles by signature and applies the profit filter.
type collector struct {
	p     Params
	idx   edgeIndex
	found map[string]domain.Opportunity
}

func newCollector(g domain.Graph, p Params) *collector {
	return &collector{p: p, idx: indexEdges(g), found: make(map[string]domain.Opportunity)}
}

// add records a closed path. The weight is recomputed along the canonical
// rotation so every rotation of a cycle yields the same sum.
func (c *collector) add(path []domain.Currency) {
	hops := len(path) - 1
	if hops < c.p.MinHops || hops > c.p.MaxHops {
		return
	}
	canon := domain.CanonicalCycle(path)
	sum, ok := c.idx.cycleWeight(canon)
	if !ok || sum >= 0 {
		return
	}
	net := domain.NetFromWeight(sum)
	if net < c.p.MinNet {
		return
	}
	opp := domain.Opportunity{Path: canon, Hops: hops, NetProfit: net, GrossWeightSum: sum}
	sig := opp.Signature()
	if _, dup := c.found[sig]; dup {
		return
	}
	c.found[sig] = opp
}

func (c *collector) result() []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(c.found))
	for _, o := range c.found {
		out = append(out, o)
	}
	sortOpportunities(out)
	return out
}

// sortOpportunities orders by net profit descending, then fewer hops, then
// start currency and signature.
func sortOpportunities(opps []domain.Opportunity) {
	slices.SortFunc(opps, func(a, b domain.Opportunity) int {
		if c := cmp.Compare(b.NetProfit, a.NetProfit); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Hops, b.Hops); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Start(), b.Start()); c != 0 {
			return c
		}
		return cmp.Compare(a.Signature(), b.Signature())
	})
}
