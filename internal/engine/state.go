package engine

import (
	"maps"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// RunState is the state carried across iterations. The engine is its only
// writer and updates it once per iteration, after aggregation. Readers get
// copies.
type RunState struct {
	Iterations      uint64                       `json:"iterations"`
	Opportunities   uint64                       `json:"opportunities"`
	EmptyIterations uint64                       `json:"empty_iterations"`
	Failures        map[domain.ExchangeID]uint64 `json:"failures"`
	Timeouts        map[domain.ExchangeID]uint64 `json:"timeouts"`
	BestNet         float64                      `json:"best_net"`
	// Baseline is the simulated wallet value, compounded by the top
	// opportunity of each iteration in simulate mode.
	Baseline     float64       `json:"baseline"`
	LastID       string        `json:"last_id,omitempty"`
	LastFinished time.Time     `json:"last_finished,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns"`
}

func newRunState(baseline float64) RunState {
	return RunState{
		Failures: make(map[domain.ExchangeID]uint64),
		Timeouts: make(map[domain.ExchangeID]uint64),
		Baseline: baseline,
	}
}

// clone returns a deep copy.
func (s RunState) clone() RunState {
	s.Failures = maps.Clone(s.Failures)
	s.Timeouts = maps.Clone(s.Timeouts)
	return s
}

// apply folds one iteration into the state.
func (s *RunState) apply(res domain.IterationResult, simulate bool) {
	s.Iterations++
	s.Opportunities += uint64(len(res.Ranked))
	if len(res.Ranked) == 0 {
		s.EmptyIterations++
	}
	for ex, o := range res.PerExchange {
		switch o.Kind {
		case domain.OutcomeFetchFailed:
			s.Failures[ex]++
		case domain.OutcomeTimedOut:
			s.Timeouts[ex]++
		}
	}
	if len(res.Ranked) > 0 {
		top := res.Ranked[0].NetProfit
		if top > s.BestNet {
			s.BestNet = top
		}
		if simulate {
			s.Baseline *= 1 + top
		}
	}
	s.LastID = res.ID
	s.LastFinished = res.FinishedAt
	s.LastDuration = res.Duration()
}
