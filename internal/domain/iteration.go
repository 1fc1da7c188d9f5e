package domain

import (
	"slices"
	"time"
)

// OutcomeKind classifies how one exchange fared in an iteration.
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeEmpty       OutcomeKind = "empty"
	OutcomeTimedOut    OutcomeKind = "timed_out"
	OutcomeFetchFailed OutcomeKind = "fetch_failed"
)

// Pipeline stages an outcome can be attributed to.
const (
	StageFetch  = "fetch"
	StageBuild  = "build"
	StageDetect = "detect"
)

// Outcome is the per-exchange result of one iteration. Opportunities is only
// populated for OutcomeSuccess.
type Outcome struct {
	Kind          OutcomeKind   `json:"kind"`
	Opportunities []Opportunity `json:"opportunities,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Stage         string        `json:"stage,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
	Nodes         int           `json:"nodes"`
	Edges         int           `json:"edges"`
}

// IterationResult aggregates every exchange's outcome for one loop pass.
type IterationResult struct {
	ID             string                 `json:"id"`
	Seq            uint64                 `json:"seq"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at"`
	PerExchange    map[ExchangeID]Outcome `json:"per_exchange"`
	Ranked         []Opportunity          `json:"ranked"`
	Simulated      bool                   `json:"simulated"`
	BudgetExceeded bool                   `json:"budget_exceeded,omitempty"`
}

// Exchanges returns the exchange IDs in the result in sorted order.
func (r IterationResult) Exchanges() []ExchangeID {
	ids := make([]ExchangeID, 0, len(r.PerExchange))
	for id := range r.PerExchange {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns how many exchanges ended with kind.
func (r IterationResult) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.PerExchange {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Duration is the wall-clock time the iteration took.
func (r IterationResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
