package sink

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// LogSink writes each ranked opportunity as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

var _ domain.IterationSink = (*LogSink)(nil)

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "log_sink"))}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(ctx context.Context, res domain.IterationResult) error {
	if len(res.Ranked) == 0 {
		s.logger.InfoContext(ctx, "no opportunities",
			slog.String("iteration", res.ID),
			slog.Uint64("seq", res.Seq),
		)
		return nil
	}
	for _, o := range res.Ranked {
		s.logger.InfoContext(ctx, "opportunity",
			slog.String("iteration", res.ID),
			slog.Int("rank", o.Rank),
			slog.String("exchange", string(o.Exchange)),
			slog.String("path", o.Signature()),
			slog.Int("hops", o.Hops),
			slog.Float64("net_profit", o.NetProfit),
			slog.Bool("simulated", o.Simulated),
		)
	}
	return nil
}
