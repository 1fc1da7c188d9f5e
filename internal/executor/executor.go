// Package executor receives ranked opportunities for execution. The shipped
// executor only logs what it would trade; order placement lives behind
// domain.SwapExecutor.
package executor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// LogExecutor records each new opportunity at Info level. The same cycle on
// the same exchange is submitted at most once per dedup window.
type LogExecutor struct {
	dedup    *Dedup
	logger   *slog.Logger
	accepted atomic.Uint64
	skipped  atomic.Uint64
}

var _ domain.SwapExecutor = (*LogExecutor)(nil)

// NewLogExecutor creates a LogExecutor. A non-positive dedupTTL disables
// de-duplication.
func NewLogExecutor(dedupTTL time.Duration, logger *slog.Logger) *LogExecutor {
	return &LogExecutor{
		dedup:  NewDedup(dedupTTL),
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Submit implements domain.SwapExecutor.
func (x *LogExecutor) Submit(ctx context.Context, opps []domain.Opportunity) error {
	for _, o := range opps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if x.dedup.Seen(string(o.Exchange) + "|" + o.Signature()) {
			x.skipped.Add(1)
			x.logger.DebugContext(ctx, "duplicate opportunity skipped",
				slog.String("exchange", string(o.Exchange)),
				slog.String("path", o.Signature()),
			)
			continue
		}
		x.accepted.Add(1)
		x.logger.InfoContext(ctx, "would execute swap cycle",
			slog.String("id", o.ID),
			slog.String("exchange", string(o.Exchange)),
			slog.String("path", o.Signature()),
			slog.Float64("net_profit", o.NetProfit),
			slog.Bool("simulated", o.Simulated),
		)
	}
	return nil
}

// Stats returns how many opportunities were accepted and skipped.
func (x *LogExecutor) Stats() (accepted, skipped uint64) {
	return x.accepted.Load(), x.skipped.Load()
}
