package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraphDropsInvalidEdges(t *testing.T) {
	g := NewGraph("test", []RateEdge{
		{From: "A", To: "B", Rate: 2},
		{From: "B", To: "C", Rate: 0},
		{From: "C", To: "A", Rate: -3},
		{From: "B", To: "A", Rate: 0.5},
	})

	require.Len(t, g.Edges, 2)
	for _, e := range g.Edges {
		assert.Greater(t, e.Rate, 0.0)
	}
	assert.Equal(t, []Currency{"A", "B"}, g.Nodes)
	assert.NoError(t, g.Validate())
}

func TestNewGraphKeepsBetterDuplicate(t *testing.T) {
	g := NewGraph("test", []RateEdge{
		{From: "A", To: "B", Rate: 2, FeeBps: 100},
		{From: "A", To: "B", Rate: 1.99, FeeBps: 0},
	})

	require.Len(t, g.Edges, 1)
	assert.Equal(t, 1.99, g.Edges[0].Rate)
}

func TestNewGraphIsSorted(t *testing.T) {
	g := NewGraph("test", []RateEdge{
		{From: "C", To: "A", Rate: 1},
		{From: "A", To: "C", Rate: 1},
		{From: "A", To: "B", Rate: 1},
	})

	assert.Equal(t, []Currency{"A", "B", "C"}, g.Nodes)
	require.Len(t, g.Edges, 3)
	assert.Equal(t, Currency("B"), g.Edges[0].To)
	assert.Equal(t, Currency("C"), g.Edges[1].To)
	assert.Equal(t, Currency("C"), g.Edges[2].From)
}

func TestGraphValidate(t *testing.T) {
	g := Graph{
		Nodes: []Currency{"A"},
		Edges: []RateEdge{{From: "A", To: "B", Rate: 1}},
	}
	assert.ErrorIs(t, g.Validate(), ErrMalformedGraph)

	g = Graph{
		Nodes: []Currency{"A", "B"},
		Edges: []RateEdge{{From: "A", To: "B", Rate: 0}},
	}
	assert.ErrorIs(t, g.Validate(), ErrMalformedGraph)
}
