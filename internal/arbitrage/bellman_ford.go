package arbitrage

import (
	"context"
	"math"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// BellmanFord finds negative cycles with a hop-indexed relaxation. For every
// source it keeps dist[h][v], the cheapest simple walk of exactly h hops from
// the source to v, and closes a cycle whenever an edge leads back to the
// source at a hop count inside the bounds.
type BellmanFord struct{}

// NewBellmanFord returns the "bf" strategy.
func NewBellmanFord() *BellmanFord { return &BellmanFord{} }

// Name returns "bf".
func (*BellmanFord) Name() string { return "bf" }

type arc struct {
	to int
	w  float64
}

// Detect runs the relaxation from each node in sorted order.
func (*BellmanFord) Detect(ctx context.Context, g domain.Graph, p Params) ([]domain.Opportunity, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.Empty() || p.MaxHops < p.MinHops || p.MaxHops < 2 {
		return nil, nil
	}

	n := len(g.Nodes)
	pos := make(map[domain.Currency]int, n)
	for i, c := range g.Nodes {
		pos[c] = i
	}
	adj := make([][]arc, n)
	for _, e := range g.Edges {
		u := pos[e.From]
		adj[u] = append(adj[u], arc{to: pos[e.To], w: e.Weight()})
	}

	col := newCollector(g, p)
	inf := math.Inf(1)

	dist := make([][]float64, p.MaxHops+1)
	pred := make([][]int, p.MaxHops+1)
	for h := range dist {
		dist[h] = make([]float64, n)
		pred[h] = make([]int, n)
	}

	// onChain reports whether v already lies on the walk ending at (h, u).
	onChain := func(h, u, v int) bool {
		for ; h >= 0; h-- {
			if u == v {
				return true
			}
			u = pred[h][u]
		}
		return false
	}

	// walk rebuilds the closed path source -> ... -> u -> source.
	walk := func(h, u, src int) []domain.Currency {
		path := make([]domain.Currency, h+2)
		path[h+1] = g.Nodes[src]
		for ; h >= 0; h-- {
			path[h] = g.Nodes[u]
			u = pred[h][u]
		}
		return path
	}

	for src := 0; src < n; src++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for h := range dist {
			for v := range dist[h] {
				dist[h][v] = inf
				pred[h][v] = -1
			}
		}
		dist[0][src] = 0

		for h := 1; h <= p.MaxHops; h++ {
			relaxed := false
			for u := 0; u < n; u++ {
				du := dist[h-1][u]
				if math.IsInf(du, 1) {
					continue
				}
				for _, a := range adj[u] {
					if a.to == src {
						if h >= p.MinHops && du+a.w < 0 {
							col.add(walk(h-1, u, src))
						}
						continue
					}
					if onChain(h-1, u, a.to) {
						continue
					}
					if nd := du + a.w; nd < dist[h][a.to] {
						dist[h][a.to] = nd
						pred[h][a.to] = u
						relaxed = true
					}
				}
			}
			if !relaxed {
				break
			}
		}
	}

	return col.result(), nil
}
