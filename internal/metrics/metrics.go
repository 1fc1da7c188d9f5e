// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/engine"
	"github.com/alanyoungcy/cyclebot/internal/graph"
)

// Collector implements engine.Observer on a private registry.
type Collector struct {
	reg *prometheus.Registry

	iterations       prometheus.Counter
	iterationSeconds prometheus.Histogram
	budgetExceeded   prometheus.Counter
	opportunities    prometheus.Counter
	topNet           prometheus.Gauge
	baseline         prometheus.Gauge

	outcomes       *prometheus.CounterVec
	stageSeconds   *prometheus.HistogramVec
	graphNodes     *prometheus.GaugeVec
	graphEdges     *prometheus.GaugeVec
	droppedTickers *prometheus.CounterVec
	netBps         *prometheus.HistogramVec
}

var _ engine.Observer = (*Collector)(nil)

// New creates a Collector whose metric names start with namespace.
func New(namespace string) *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "iterations_total",
			Help: "Completed scan iterations.",
		}),
		iterationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "iteration_duration_seconds",
			Help:    "Wall time of one iteration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		budgetExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "iteration_budget_exceeded_total",
			Help: "Iterations that hit the global budget.",
		}),
		opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "opportunities_ranked_total",
			Help: "Opportunities emitted after ranking.",
		}),
		topNet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "top_net_profit",
			Help: "Net profit of the best opportunity of the last iteration.",
		}),
		baseline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "simulated_baseline",
			Help: "Simulated wallet value.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exchange_outcomes_total",
			Help: "Per-exchange iteration outcomes.",
		}, []string{"exchange", "outcome"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "exchange_duration_seconds",
			Help:    "Fetch, build and detect time per exchange.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"exchange"}),
		graphNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "graph_nodes",
			Help: "Currencies in the last graph built.",
		}, []string{"exchange"}),
		graphEdges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "graph_edges",
			Help: "Edges in the last graph built.",
		}, []string{"exchange"}),
		droppedTickers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_tickers_total",
			Help: "Tickers dropped while building graphs, by reason.",
		}, []string{"exchange", "reason"}),
		netBps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "opportunity_net_bps",
			Help:    "Net profit of detected opportunities in basis points.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"exchange"}),
	}
	c.reg.MustRegister(
		c.iterations, c.iterationSeconds, c.budgetExceeded, c.opportunities, c.topNet, c.baseline,
		c.outcomes, c.stageSeconds, c.graphNodes, c.graphEdges, c.droppedTickers, c.netBps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// ObserveExchange implements engine.Observer.
func (c *Collector) ObserveExchange(exchange domain.ExchangeID, out domain.Outcome, st graph.Stats) {
	ex := string(exchange)
	c.outcomes.WithLabelValues(ex, string(out.Kind)).Inc()
	c.stageSeconds.WithLabelValues(ex).Observe(out.Duration.Seconds())

	if out.Stage != domain.StageFetch {
		c.graphNodes.WithLabelValues(ex).Set(float64(st.Nodes))
		c.graphEdges.WithLabelValues(ex).Set(float64(st.Edges))
	}
	for reason, n := range map[string]int{
		"data_error":     st.DataErrors,
		"low_volume":     st.LowVolume,
		"no_top_of_book": st.NoTopOfBook,
		"not_quoted":     st.NotQuoted,
		"single_quote":   st.SingleQuote,
		"over_limit":     st.OverLimit,
	} {
		if n > 0 {
			c.droppedTickers.WithLabelValues(ex, reason).Add(float64(n))
		}
	}
	for _, o := range out.Opportunities {
		c.netBps.WithLabelValues(ex).Observe(o.NetProfit * 1e4)
	}
}

// ObserveIteration implements engine.Observer.
func (c *Collector) ObserveIteration(res domain.IterationResult, state engine.RunState) {
	c.iterations.Inc()
	c.iterationSeconds.Observe(res.Duration().Seconds())
	if res.BudgetExceeded {
		c.budgetExceeded.Inc()
	}
	c.opportunities.Add(float64(len(res.Ranked)))
	if len(res.Ranked) > 0 {
		c.topNet.Set(res.Ranked[0].NetProfit)
	} else {
		c.topNet.Set(0)
	}
	c.baseline.Set(state.Baseline)
}
