package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Graph is the per-exchange, per-iteration rate graph. Nodes are sorted and
// unique; Edges are sorted by (From, To) with at most one edge per direction.
// A Graph is built fresh every iteration and never mutated after construction.
type Graph struct {
	Exchange ExchangeID
	Nodes    []Currency
	Edges    []RateEdge
}

// NewGraph assembles a graph from candidate edges. Invalid edges are dropped
// and, for duplicate directed edges, the one with the higher effective rate
// wins.
func NewGraph(exchange ExchangeID, edges []RateEdge) Graph {
	type key struct{ from, to Currency }
	best := make(map[key]RateEdge, len(edges))
	for _, e := range edges {
		if !e.Valid() {
			continue
		}
		k := key{e.From, e.To}
		if cur, ok := best[k]; ok && cur.EffectiveRate() >= e.EffectiveRate() {
			continue
		}
		best[k] = e
	}

	g := Graph{Exchange: exchange, Edges: make([]RateEdge, 0, len(best))}
	seen := make(map[Currency]struct{})
	for _, e := range best {
		g.Edges = append(g.Edges, e)
		seen[e.From] = struct{}{}
		seen[e.To] = struct{}{}
	}
	slices.SortFunc(g.Edges, func(a, b RateEdge) int {
		if c := strings.Compare(string(a.From), string(b.From)); c != 0 {
			return c
		}
		return strings.Compare(string(a.To), string(b.To))
	})

	g.Nodes = make([]Currency, 0, len(seen))
	for c := range seen {
		g.Nodes = append(g.Nodes, c)
	}
	slices.Sort(g.Nodes)
	return g
}

// Empty reports whether the graph has no edges.
func (g Graph) Empty() bool { return len(g.Edges) == 0 }

// Validate checks that every edge endpoint is a node and every weight is
// finite. It returns an error wrapping ErrMalformedGraph otherwise.
func (g Graph) Validate() error {
	nodes := make(map[Currency]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := nodes[e.From]; !ok {
			return fmt.Errorf("%w: edge %s->%s: unknown node %s", ErrMalformedGraph, e.From, e.To, e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			return fmt.Errorf("%w: edge %s->%s: unknown node %s", ErrMalformedGraph, e.From, e.To, e.To)
		}
		if !(e.Rate > 0) || !isFinite(e.Weight()) {
			return fmt.Errorf("%w: edge %s->%s: non-finite weight", ErrMalformedGraph, e.From, e.To)
		}
	}
	return nil
}
