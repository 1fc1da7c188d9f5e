// Package sink delivers iteration results to every configured destination.
// A failing or slow destination never blocks the others or the engine.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Fanout dispatches each result to all registered sinks concurrently, each
// under its own timeout.
type Fanout struct {
	sinks   []domain.IterationSink
	timeout time.Duration
	logger  *slog.Logger
}

var _ domain.IterationSink = (*Fanout)(nil)

// NewFanout creates a Fanout. A non-positive timeout defaults to 5s.
func NewFanout(timeout time.Duration, logger *slog.Logger, sinks ...domain.IterationSink) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "sink")),
	}
}

// Add registers another sink.
func (f *Fanout) Add(s domain.IterationSink) {
	f.sinks = append(f.sinks, s)
}

// Len reports the number of registered sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Name implements domain.IterationSink.
func (f *Fanout) Name() string { return "fanout" }

// Emit delivers res to every sink and waits for all of them. Sink failures
// are logged and combined into the returned error.
func (f *Fanout) Emit(ctx context.Context, res domain.IterationResult) error {
	if len(f.sinks) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []string
	)
	for _, s := range f.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.deliver(ctx, s, res); err != nil {
				f.logger.WarnContext(ctx, "sink failed",
					slog.String("sink", s.Name()),
					slog.String("iteration", res.ID),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("sink: %d sink(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// deliver runs one sink under the per-sink timeout. A sink that ignores its
// context is abandoned once the timeout passes.
func (f *Fanout) deliver(ctx context.Context, s domain.IterationSink, res domain.IterationResult) (err error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- s.Emit(ctx, res)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out after %s: %w", f.timeout, ctx.Err())
	}
}
