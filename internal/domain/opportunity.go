package domain

import (
	"math"
	"strings"
	"time"
)

// Opportunity is a profitable conversion cycle found on one exchange. Path is
// closed: Path[0] == Path[len(Path)-1], and Hops == len(Path)-1.
type Opportunity struct {
	ID             string     `json:"id"`
	Exchange       ExchangeID `json:"exchange"`
	Path           []Currency `json:"path"`
	Hops           int        `json:"hops"`
	NetProfit      float64    `json:"net_profit"`
	GrossWeightSum float64    `json:"gross_weight_sum"`
	Timestamp      time.Time  `json:"timestamp"`
	Simulated      bool       `json:"simulated"`
	Strategy       string     `json:"strategy,omitempty"`
	Rank           int        `json:"rank,omitempty"`
}

// NetFromWeight converts a cycle's summed log weight into fractional profit.
func NetFromWeight(sum float64) float64 {
	return math.Exp(-sum) - 1
}

// CanonicalCycle rotates a closed path so it starts at its lexically smallest
// currency, preserving direction. The result is closed as well.
func CanonicalCycle(path []Currency) []Currency {
	if len(path) == 0 {
		return nil
	}
	ring := path
	if len(path) > 1 && path[0] == path[len(path)-1] {
		ring = path[:len(path)-1]
	}
	start := 0
	for i, c := range ring {
		if c < ring[start] {
			start = i
		}
	}
	out := make([]Currency, 0, len(ring)+1)
	out = append(out, ring[start:]...)
	out = append(out, ring[:start]...)
	out = append(out, out[0])
	return out
}

// Signature is the rotation-invariant key of the cycle, e.g. "A>B>C>A".
func (o Opportunity) Signature() string {
	canon := CanonicalCycle(o.Path)
	parts := make([]string, len(canon))
	for i, c := range canon {
		parts[i] = string(c)
	}
	return strings.Join(parts, ">")
}

// Start is the first currency of the canonical rotation.
func (o Opportunity) Start() Currency {
	canon := CanonicalCycle(o.Path)
	if len(canon) == 0 {
		return ""
	}
	return canon[0]
}

// Clone returns a deep copy.
func (o Opportunity) Clone() Opportunity {
	o.Path = append([]Currency(nil), o.Path...)
	return o
}
