package domain

import "math"

// Currency is a ticker symbol such as "BTC". It is the node identity of a
// rate graph.
type Currency string

// ExchangeID names a configured exchange.
type ExchangeID string

// RateEdge is one directed conversion between two currencies on a single
// exchange. Rate is the amount of To received per unit of From before fees.
type RateEdge struct {
	From         Currency
	To           Currency
	Rate         float64
	FeeBps       uint32
	VolumeQuote  float64
	HasTopOfBook bool
	Exchange     ExchangeID
}

// EffectiveRate is the rate after the per-hop fee.
func (e RateEdge) EffectiveRate() float64 {
	return e.Rate * (1 - float64(e.FeeBps)/10000)
}

// Weight is the additive log-domain cost of the hop. A profitable hop has a
// negative weight.
func (e RateEdge) Weight() float64 {
	return -math.Log(e.EffectiveRate())
}

// Valid reports whether the edge may enter a graph: a positive finite rate
// whose weight is also finite, between two distinct named currencies.
func (e RateEdge) Valid() bool {
	if e.From == "" || e.To == "" || e.From == e.To {
		return false
	}
	if !(e.Rate > 0) || math.IsInf(e.Rate, 0) {
		return false
	}
	return isFinite(e.Weight())
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
