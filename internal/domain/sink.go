package domain

import "context"

// IterationSink consumes one IterationResult per iteration. Formatting and
// persistence are entirely the sink's concern.
type IterationSink interface {
	Name() string
	Emit(ctx context.Context, result IterationResult) error
}

// SwapExecutor receives the final ranked list for an iteration.
type SwapExecutor interface {
	Submit(ctx context.Context, opps []Opportunity) error
}
