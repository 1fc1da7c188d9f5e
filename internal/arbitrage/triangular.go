package arbitrage

import (
	"context"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Triangular enumerates every directed 3-cycle. It only reports when 3 lies
// within the configured hop bounds.
type Triangular struct{}

// NewTriangular returns the "tri" strategy.
func NewTriangular() *Triangular { return &Triangular{} }

// Name returns "tri".
func (*Triangular) Name() string { return "tri" }

// Detect walks a -> b -> c -> a for every a, visiting each cycle once from
// its smallest currency.
func (*Triangular) Detect(ctx context.Context, g domain.Graph, p Params) ([]domain.Opportunity, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.Empty() || p.MinHops > 3 || p.MaxHops < 3 {
		return nil, nil
	}

	out := make(map[domain.Currency][]domain.Currency)
	has := make(map[[2]domain.Currency]bool, len(g.Edges))
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e.To)
		has[[2]domain.Currency{e.From, e.To}] = true
	}

	col := newCollector(g, p)
	for _, a := range g.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, b := range out[a] {
			if b <= a {
				continue
			}
			for _, c := range out[b] {
				if c <= a || c == b {
					continue
				}
				if has[[2]domain.Currency{c, a}] {
					col.add([]domain.Currency{a, b, c, a})
				}
			}
		}
	}
	return col.result(), nil
}
