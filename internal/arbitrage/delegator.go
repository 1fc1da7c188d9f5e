package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Delegator runs a Strategy for one exchange as an isolated unit of work with
// a hard deadline. The strategy runs on its own goroutine; when the deadline
// passes first its result is discarded and the exchange is reported as timed
// out. Nothing the abandoned goroutine produces is ever read.
type Delegator struct {
	strategy Strategy
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewDelegator creates a Delegator.
func NewDelegator(strategy Strategy, timeout time.Duration, logger *slog.Logger) *Delegator {
	return &Delegator{
		strategy: strategy,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "delegator")),
	}
}

// Strategy returns the delegated strategy.
func (d *Delegator) Strategy() Strategy { return d.strategy }

type detectResult struct {
	opps []domain.Opportunity
	err  error
}

// Run detects cycles in g. The returned Outcome is Success, Empty, TimedOut
// or FetchFailed (stage "detect") for strategy errors and panics. Run never
// blocks longer than the timeout or ctx allow.
func (d *Delegator) Run(ctx context.Context, g domain.Graph, p Params) domain.Outcome {
	start := d.now()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	results := make(chan detectResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("strategy panicked",
					slog.String("exchange", string(g.Exchange)),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				results <- detectResult{err: fmt.Errorf("arbitrage: %s panicked: %v", d.strategy.Name(), r)}
			}
		}()
		opps, err := d.strategy.Detect(ctx, g, p)
		results <- detectResult{opps: opps, err: err}
	}()

	out := domain.Outcome{Stage: domain.StageDetect, Nodes: len(g.Nodes), Edges: len(g.Edges)}

	select {
	case res := <-results:
		out.Duration = d.now().Sub(start)
		switch {
		case res.err != nil && ctx.Err() != nil && errors.Is(res.err, ctx.Err()):
			// The strategy noticed the deadline before we did.
			out.Kind = domain.OutcomeTimedOut
			out.Reason = domain.ErrDetectionTimeout.Error()
		case res.err != nil:
			out.Kind = domain.OutcomeFetchFailed
			out.Reason = res.err.Error()
		case len(res.opps) == 0:
			out.Kind = domain.OutcomeEmpty
		default:
			out.Kind = domain.OutcomeSuccess
			out.Opportunities = d.enrich(g.Exchange, res.opps)
		}
	case <-ctx.Done():
		out.Duration = d.now().Sub(start)
		out.Kind = domain.OutcomeTimedOut
		out.Reason = fmt.Sprintf("%v after %s", domain.ErrDetectionTimeout, d.timeout)
	}
	return out
}

// enrich stamps exchange, time, strategy and ID on fresh copies.
func (d *Delegator) enrich(exchange domain.ExchangeID, opps []domain.Opportunity) []domain.Opportunity {
	ts := d.now()
	out := make([]domain.Opportunity, len(opps))
	for i, o := range opps {
		o = o.Clone()
		o.ID = uuid.New().String()
		o.Exchange = exchange
		o.Timestamp = ts
		o.Strategy = d.strategy.Name()
		out[i] = o
	}
	return out
}
