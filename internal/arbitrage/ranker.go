package arbitrage

import (
	"cmp"
	"slices"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Ranker merges per-exchange results into one ranked list.
type Ranker struct {
	top       int
	simulated bool
}

// NewRanker keeps the top n opportunities. simulated is stamped on every
// ranked opportunity.
func NewRanker(top int, simulated bool) *Ranker {
	return &Ranker{top: top, simulated: simulated}
}

// Rank dedupes on (exchange, signature), keeping the more profitable copy,
// and orders by net profit descending, hops ascending, exchange, start
// currency and signature. Only Success outcomes contribute. The result holds
// deep copies with Rank set from 1.
func (r *Ranker) Rank(outcomes map[domain.ExchangeID]domain.Outcome) []domain.Opportunity {
	type key struct {
		exchange domain.ExchangeID
		sig      string
	}
	best := make(map[key]domain.Opportunity)
	for ex, o := range outcomes {
		if o.Kind != domain.OutcomeSuccess {
			continue
		}
		for _, opp := range o.Opportunities {
			if opp.Exchange == "" {
				opp.Exchange = ex
			}
			k := key{opp.Exchange, opp.Signature()}
			if cur, ok := best[k]; ok && compareOpportunities(cur, opp) <= 0 {
				continue
			}
			best[k] = opp
		}
	}

	ranked := make([]domain.Opportunity, 0, len(best))
	for _, o := range best {
		ranked = append(ranked, o.Clone())
	}
	slices.SortFunc(ranked, compareOpportunities)

	if r.top > 0 && len(ranked) > r.top {
		ranked = ranked[:r.top]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Simulated = r.simulated
	}
	return ranked
}

func compareOpportunities(a, b domain.Opportunity) int {
	if c := cmp.Compare(b.NetProfit, a.NetProfit); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Hops, b.Hops); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Exchange, b.Exchange); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Start(), b.Start()); c != 0 {
		return c
	}
	return cmp.Compare(a.Signature(), b.Signature())
}
