package arbitrage

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

func triangle() domain.Graph {
	return domain.NewGraph("test", []domain.RateEdge{
		{From: "A", To: "B", Rate: 1.02},
		{From: "B", To: "C", Rate: 1.01},
		{From: "C", To: "A", Rate: 0.99},
	})
}

// randomGraph builds a dense graph of n currencies with rates near parity so
// that many short and long negative cycles exist.
func randomGraph(seed uint64, n int) domain.Graph {
	r := rand.New(rand.NewPCG(seed, seed*31+7))
	names := make([]domain.Currency, n)
	for i := range names {
		names[i] = domain.Currency(string(rune('A' + i)))
	}
	var edges []domain.RateEdge
	for i := range names {
		for j := range names {
			if i == j || r.Float64() < 0.3 {
				continue
			}
			edges = append(edges, domain.RateEdge{
				From: names[i], To: names[j],
				Rate:   1 + (r.Float64()-0.45)*0.04,
				FeeBps: 5,
			})
		}
	}
	return domain.NewGraph("rand", edges)
}

func strategies() []Strategy {
	return []Strategy{NewBellmanFord(), NewTriangular()}
}

func TestDetectTriangle(t *testing.T) {
	for _, s := range strategies() {
		t.Run(s.Name(), func(t *testing.T) {
			opps, err := s.Detect(context.Background(), triangle(), Params{MinHops: 3, MaxHops: 3})
			require.NoError(t, err)
			require.Len(t, opps, 1)

			o := opps[0]
			assert.Equal(t, 3, o.Hops)
			assert.Equal(t, []domain.Currency{"A", "B", "C", "A"}, o.Path)
			assert.InDelta(t, 1.02*1.01*0.99-1, o.NetProfit, 1e-9)
			assert.InDelta(t, math.Exp(-o.GrossWeightSum)-1, o.NetProfit, 1e-12)
		})
	}
}

func TestDetectRespectsMinNet(t *testing.T) {
	opps, err := NewBellmanFord().Detect(context.Background(), triangle(), Params{MinHops: 2, MaxHops: 4, MinNet: 0.02})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestDetectEmptyGraph(t *testing.T) {
	for _, s := range strategies() {
		opps, err := s.Detect(context.Background(), domain.Graph{}, Params{MinHops: 2, MaxHops: 4})
		assert.NoError(t, err)
		assert.Empty(t, opps)
	}
}

func TestDetectNoCycle(t *testing.T) {
	g := domain.NewGraph("test", []domain.RateEdge{
		{From: "A", To: "B", Rate: 2},
		{From: "B", To: "C", Rate: 2},
	})
	opps, err := NewBellmanFord().Detect(context.Background(), g, Params{MinHops: 2, MaxHops: 5})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestDetectMalformedGraph(t *testing.T) {
	g := domain.Graph{
		Nodes: []domain.Currency{"A", "B"},
		Edges: []domain.RateEdge{{From: "A", To: "Z", Rate: 1}},
	}
	for _, s := range strategies() {
		_, err := s.Detect(context.Background(), g, Params{MinHops: 2, MaxHops: 3})
		assert.ErrorIs(t, err, domain.ErrMalformedGraph)
	}
}

func TestDetectHopBounds(t *testing.T) {
	g := randomGraph(42, 8)
	p := Params{MinHops: 3, MaxHops: 6}

	opps, err := NewBellmanFord().Detect(context.Background(), g, p)
	require.NoError(t, err)
	require.NotEmpty(t, opps)

	rates := make(map[[2]domain.Currency]float64)
	for _, e := range g.Edges {
		rates[[2]domain.Currency{e.From, e.To}] = e.EffectiveRate()
	}

	seen := make(map[string]bool)
	for _, o := range opps {
		assert.GreaterOrEqual(t, o.Hops, p.MinHops)
		assert.LessOrEqual(t, o.Hops, p.MaxHops)
		require.Len(t, o.Path, o.Hops+1)
		assert.Equal(t, o.Path[0], o.Path[len(o.Path)-1])

		inner := make(map[domain.Currency]bool)
		for _, c := range o.Path[:o.Hops] {
			assert.False(t, inner[c], "repeated currency %s in %v", c, o.Path)
			inner[c] = true
		}

		product := 1.0
		for i := 0; i < o.Hops; i++ {
			product *= rates[[2]domain.Currency{o.Path[i], o.Path[i+1]}]
		}
		assert.InDelta(t, product-1, o.NetProfit, 1e-9)
		assert.Less(t, o.GrossWeightSum, 0.0)

		assert.False(t, seen[o.Signature()], "duplicate signature %s", o.Signature())
		seen[o.Signature()] = true
	}
}

func TestDetectOrdering(t *testing.T) {
	opps, err := NewBellmanFord().Detect(context.Background(), randomGraph(7, 7), Params{MinHops: 2, MaxHops: 5})
	require.NoError(t, err)
	for i := 1; i < len(opps); i++ {
		prev, cur := opps[i-1], opps[i]
		if prev.NetProfit == cur.NetProfit {
			assert.LessOrEqual(t, prev.Hops, cur.Hops)
		} else {
			assert.Greater(t, prev.NetProfit, cur.NetProfit)
		}
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	g := randomGraph(99, 9)
	p := Params{MinHops: 3, MaxHops: 5, MinNet: 0.0001}

	for _, s := range strategies() {
		first, err := s.Detect(context.Background(), g, p)
		require.NoError(t, err)
		second, err := s.Detect(context.Background(), g, p)
		require.NoError(t, err)
		assert.Equal(t, first, second, s.Name())
	}
}

func TestTriangularMatchesBellmanFordOnTriangles(t *testing.T) {
	g := randomGraph(3, 6)
	p := Params{MinHops: 3, MaxHops: 3}

	bf, err := NewBellmanFord().Detect(context.Background(), g, p)
	require.NoError(t, err)
	tri, err := NewTriangular().Detect(context.Background(), g, p)
	require.NoError(t, err)

	// Exhaustive enumeration finds every triangle the relaxation finds.
	triSigs := make(map[string]bool)
	for _, o := range tri {
		triSigs[o.Signature()] = true
	}
	for _, o := range bf {
		assert.True(t, triSigs[o.Signature()], o.Signature())
	}
}

func TestTriangularInactiveOutsideBounds(t *testing.T) {
	opps, err := NewTriangular().Detect(context.Background(), triangle(), Params{MinHops: 4, MaxHops: 6})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestDetectHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBellmanFord().Detect(ctx, randomGraph(1, 6), Params{MinHops: 2, MaxHops: 4})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, Params{MinHops: 3, MaxHops: 6}.Validate())

	err := Params{MinHops: 5, MaxHops: 3}.Validate()
	var ce *domain.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Problems, 1)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"bf", "tri"}, r.List())

	s, err := r.Get(" TRI ")
	require.NoError(t, err)
	assert.Equal(t, "tri", s.Name())

	_, err = r.Get("inter")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}
