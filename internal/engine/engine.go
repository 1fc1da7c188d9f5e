// Package engine drives scan iterations. Each iteration fetches and builds a
// graph per exchange concurrently, delegates detection under a deadline,
// aggregates whatever finished inside the iteration budget, and always emits
// the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/cyclebot/internal/arbitrage"
	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/graph"
)

// Fetcher captures a ticker snapshot for one exchange.
type Fetcher interface {
	Exchange() domain.ExchangeID
	Fetch(ctx context.Context) (domain.TickerSnapshot, error)
}

// GraphBuilder turns a snapshot into a rate graph.
type GraphBuilder interface {
	Build(snap domain.TickerSnapshot) (domain.Graph, graph.Stats)
}

// Exchange pairs the long-lived fetcher of one exchange with its builder.
type Exchange struct {
	Fetcher Fetcher
	Builder GraphBuilder
}

// Observer receives instrumentation callbacks. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObserveExchange(exchange domain.ExchangeID, out domain.Outcome, st graph.Stats)
	ObserveIteration(res domain.IterationResult, state RunState)
}

// Options are the run parameters.
type Options struct {
	Params          arbitrage.Params
	Top             int
	DetectTimeout   time.Duration
	IterationBudget time.Duration
	// Repeat is the number of iterations Run performs; 0 runs until ctx ends.
	Repeat          int
	RepeatSleep     time.Duration
	Simulate        bool
	InitialBaseline float64
}

// Option customises optional Engine collaborators.
type Option func(*Engine)

// WithSink sets where iteration results are emitted.
func WithSink(s domain.IterationSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithExecutor sets the swap executor handed each ranked list.
func WithExecutor(x domain.SwapExecutor) Option {
	return func(e *Engine) { e.executor = x }
}

// WithObserver sets the instrumentation observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the iteration orchestrator.
type Engine struct {
	exchanges []Exchange
	delegator *arbitrage.Delegator
	ranker    *arbitrage.Ranker
	opts      Options
	sink      domain.IterationSink
	executor  domain.SwapExecutor
	observer  Observer
	now       func() time.Time
	logger    *slog.Logger

	phase atomic.Int32
	seq   atomic.Uint64
	// stages belongs to the running iteration. Tasks abandoned at the budget
	// keep writing to their own iteration's tracker, never the current one.
	stages atomic.Pointer[stageTracker]

	mu    sync.RWMutex
	state RunState
	last  *domain.IterationResult
}

// New validates the run parameters and creates an Engine. Invalid parameters
// yield a *domain.ConfigError and no engine.
func New(exchanges []Exchange, strategy arbitrage.Strategy, opts Options, logger *slog.Logger, options ...Option) (*Engine, error) {
	errs := &domain.ConfigError{}
	var perr *domain.ConfigError
	if errors.As(opts.Params.Validate(), &perr) {
		errs.Problems = append(errs.Problems, perr.Problems...)
	}
	if len(exchanges) == 0 {
		errs.Add("at least one exchange is required")
	}
	seen := make(map[domain.ExchangeID]bool, len(exchanges))
	for i, ex := range exchanges {
		if ex.Fetcher == nil || ex.Builder == nil {
			errs.Add("exchange %d: fetcher and builder are required", i)
			continue
		}
		id := ex.Fetcher.Exchange()
		if seen[id] {
			errs.Add("exchange %d: duplicate exchange %q", i, id)
		}
		seen[id] = true
	}
	if strategy == nil {
		errs.Add("a detection strategy is required")
	}
	if opts.Top < 1 {
		errs.Add("top must be >= 1")
	}
	if opts.DetectTimeout <= 0 {
		errs.Add("detect_timeout must be > 0")
	}
	if opts.IterationBudget <= 0 {
		errs.Add("iteration_budget must be > 0")
	}
	if opts.Repeat < 0 {
		errs.Add("repeat must be >= 0")
	}
	if opts.Simulate && opts.InitialBaseline <= 0 {
		errs.Add("initial_baseline must be > 0 in simulate mode")
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	e := &Engine{
		exchanges: exchanges,
		opts:      opts,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "engine")),
		state:     newRunState(opts.InitialBaseline),
	}
	for _, o := range options {
		o(e)
	}
	e.stages.Store(newStageTracker())
	e.delegator = arbitrage.NewDelegator(strategy, opts.DetectTimeout, logger)
	e.ranker = arbitrage.NewRanker(opts.Top, opts.Simulate)
	return e, nil
}

// Phase reports where the engine is. While exchange tasks run it reports the
// earliest stage any of them is still in.
func (e *Engine) Phase() Phase {
	p := Phase(e.phase.Load())
	if p == PhaseFetching {
		if s, ok := e.stages.Load().earliest(); ok {
			return s
		}
	}
	return p
}

// State returns a copy of the run state.
func (e *Engine) State() RunState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.clone()
}

// Last returns the most recent iteration result, if any.
func (e *Engine) Last() (domain.IterationResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return domain.IterationResult{}, false
	}
	return *e.last, true
}

// Run performs iterations until Repeat is reached or ctx is cancelled. A
// cancelled context is a normal shutdown and returns nil.
func (e *Engine) Run(ctx context.Context) error {
	defer e.phase.Store(int32(PhaseIdle))

	e.logger.InfoContext(ctx, "engine started",
		slog.String("strategy", e.delegator.Strategy().Name()),
		slog.Int("exchanges", len(e.exchanges)),
		slog.Int("repeat", e.opts.Repeat),
	)
	defer e.logger.Info("engine stopped")

	for i := 1; ; i++ {
		if ctx.Err() != nil {
			return nil
		}
		e.RunIteration(ctx)
		if e.opts.Repeat > 0 && i >= e.opts.Repeat {
			return nil
		}

		e.phase.Store(int32(PhaseSleeping))
		timer := time.NewTimer(e.opts.RepeatSleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

type taskResult struct {
	exchange domain.ExchangeID
	outcome  domain.Outcome
	stats    graph.Stats
}

// RunIteration performs one full pass and returns its result. It never
// skips aggregation or emission: exchanges still running when the budget
// expires are reported as timed out and their late results are dropped.
func (e *Engine) RunIteration(ctx context.Context) domain.IterationResult {
	res := domain.IterationResult{
		ID:          uuid.New().String(),
		Seq:         e.seq.Add(1),
		StartedAt:   e.now(),
		PerExchange: make(map[domain.ExchangeID]domain.Outcome, len(e.exchanges)),
		Simulated:   e.opts.Simulate,
	}
	logger := e.logger.With(slog.String("iteration", res.ID), slog.Uint64("seq", res.Seq))

	budgetCtx, cancel := context.WithTimeout(ctx, e.opts.IterationBudget)
	defer cancel()

	stages := newStageTracker()
	e.stages.Store(stages)
	e.phase.Store(int32(PhaseFetching))

	// Buffered so abandoned tasks never block on send.
	results := make(chan taskResult, len(e.exchanges))
	pending := make(map[domain.ExchangeID]struct{}, len(e.exchanges))
	for _, ex := range e.exchanges {
		id := ex.Fetcher.Exchange()
		pending[id] = struct{}{}
		stages.set(id, PhaseFetching)
		go func() {
			out, st := e.runExchange(budgetCtx, ex, stages)
			results <- taskResult{exchange: id, outcome: out, stats: st}
		}()
	}

collect:
	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.exchange)
			stages.done(r.exchange)
			res.PerExchange[r.exchange] = r.outcome
			e.observe(r.exchange, r.outcome, r.stats)
		case <-budgetCtx.Done():
			break collect
		}
	}
	for id := range pending {
		res.BudgetExceeded = true
		stage, _ := stages.get(id)
		out := domain.Outcome{
			Kind:     domain.OutcomeTimedOut,
			Stage:    stageName(stage),
			Reason:   fmt.Sprintf("iteration budget %s exceeded", e.opts.IterationBudget),
			Duration: e.now().Sub(res.StartedAt),
		}
		res.PerExchange[id] = out
		e.observe(id, out, graph.Stats{})
	}
	e.stages.Store(newStageTracker())

	e.phase.Store(int32(PhaseAggregating))
	res.Ranked = e.ranker.Rank(res.PerExchange)
	res.FinishedAt = e.now()

	e.mu.Lock()
	e.state.apply(res, e.opts.Simulate)
	state := e.state.clone()
	last := res
	e.last = &last
	e.mu.Unlock()

	for _, id := range res.Exchanges() {
		o := res.PerExchange[id]
		if o.Kind == domain.OutcomeFetchFailed || o.Kind == domain.OutcomeTimedOut {
			logger.WarnContext(ctx, "exchange did not complete",
				slog.String("exchange", string(id)),
				slog.String("outcome", string(o.Kind)),
				slog.String("stage", o.Stage),
				slog.String("reason", o.Reason),
			)
		}
	}
	if e.observer != nil {
		e.observer.ObserveIteration(res, state)
	}

	e.phase.Store(int32(PhaseEmitting))
	e.emit(ctx, logger, res)

	logger.InfoContext(ctx, "iteration complete",
		slog.Int("exchanges", len(res.PerExchange)),
		slog.Int("succeeded", res.Count(domain.OutcomeSuccess)),
		slog.Int("empty", res.Count(domain.OutcomeEmpty)),
		slog.Int("failed", res.Count(domain.OutcomeFetchFailed)),
		slog.Int("timed_out", res.Count(domain.OutcomeTimedOut)),
		slog.Int("opportunities", len(res.Ranked)),
		slog.Duration("duration", res.Duration()),
	)
	e.phase.Store(int32(PhaseIdle))
	return res
}

// emit hands the result to the sink and the ranked list to the executor.
// Emission outlives a cancelled parent so a shutdown still publishes the
// final iteration.
func (e *Engine) emit(ctx context.Context, logger *slog.Logger, res domain.IterationResult) {
	ctx = context.WithoutCancel(ctx)
	if e.sink != nil {
		if err := e.sink.Emit(ctx, res); err != nil {
			logger.WarnContext(ctx, "emit failed", slog.String("error", err.Error()))
		}
	}
	if e.executor != nil && len(res.Ranked) > 0 {
		opps := make([]domain.Opportunity, len(res.Ranked))
		for i, o := range res.Ranked {
			opps[i] = o.Clone()
		}
		if err := e.executor.Submit(ctx, opps); err != nil {
			logger.WarnContext(ctx, "executor submit failed", slog.String("error", err.Error()))
		}
	}
}

// runExchange is the per-exchange task: fetch, build, then delegated
// detection. Every failure becomes an Outcome; nothing escapes the task.
// Observation happens in RunIteration so a result that misses the budget is
// never reported.
func (e *Engine) runExchange(ctx context.Context, ex Exchange, stages *stageTracker) (domain.Outcome, graph.Stats) {
	id := ex.Fetcher.Exchange()
	start := e.now()
	logger := e.logger.With(slog.String("exchange", string(id)))

	snap, err := ex.Fetcher.Fetch(ctx)
	if err != nil {
		out := domain.Outcome{
			Kind:     domain.OutcomeFetchFailed,
			Stage:    domain.StageFetch,
			Reason:   err.Error(),
			Duration: e.now().Sub(start),
		}
		return out, graph.Stats{}
	}

	stages.set(id, PhaseBuilding)
	g, st := ex.Builder.Build(snap)
	if st.DataErrors > 0 {
		attrs := []any{slog.Int("data_errors", st.DataErrors)}
		if len(st.Samples) > 0 {
			attrs = append(attrs, slog.String("sample", st.Samples[0].Error()))
		}
		logger.DebugContext(ctx, "dropped malformed tickers", attrs...)
	}

	stages.set(id, PhaseDetecting)
	out := e.delegator.Run(ctx, g, e.opts.Params)
	out.Duration = e.now().Sub(start)
	return out, st
}

func (e *Engine) observe(id domain.ExchangeID, out domain.Outcome, st graph.Stats) {
	if e.observer != nil {
		e.observer.ObserveExchange(id, out, st)
	}
}

func stageName(p Phase) string {
	switch p {
	case PhaseFetching:
		return domain.StageFetch
	case PhaseBuilding:
		return domain.StageBuild
	default:
		return domain.StageDetect
	}
}

// stageTracker records which stage each exchange task of one iteration is in.
type stageTracker struct {
	mu     sync.Mutex
	stages map[domain.ExchangeID]Phase
}

func newStageTracker() *stageTracker {
	return &stageTracker{stages: make(map[domain.ExchangeID]Phase)}
}

func (t *stageTracker) set(id domain.ExchangeID, p Phase) {
	t.mu.Lock()
	t.stages[id] = p
	t.mu.Unlock()
}

func (t *stageTracker) get(id domain.ExchangeID) (Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.stages[id]
	return p, ok
}

func (t *stageTracker) done(id domain.ExchangeID) {
	t.mu.Lock()
	delete(t.stages, id)
	t.mu.Unlock()
}

func (t *stageTracker) earliest() (Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	first, found := PhaseSleeping, false
	for _, p := range t.stages {
		if p < first {
			first, found = p, true
		}
	}
	return first, found
}
