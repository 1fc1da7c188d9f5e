// Package notify alerts operators about profitable cycles and failing
// exchanges through chat webhooks. Events can be filtered by type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event names accepted in the notify.events filter.
const (
	EventCycleDetected  = "cycle_detected"
	EventExchangeFailed = "exchange_failed"
)

// sendTimeout bounds one sender's delivery of one message.
const sendTimeout = 10 * time.Second

// Sender delivers a message over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, title, message string) error
}

// Notifier delivers every allowed event to all senders at once.
type Notifier struct {
	senders []Sender
	allow   map[string]struct{} // empty allows every event
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		allow:   make(map[string]struct{}, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			n.allow[e] = struct{}{}
		}
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

func (n *Notifier) Allows(event string) bool {
	if len(n.allow) == 0 {
		return true
	}
	_, ok := n.allow[event]
	return ok
}

// Notify sends title and message through every sender in parallel. Failures
// are logged and joined; one failing sender does not stop the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := s.Send(sctx, title, message); err != nil {
				n.logger.WarnContext(ctx, "notification not delivered",
					slog.String("sender", s.Name()),
					slog.String("event", event),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify %s: %w", event, err)
	}
	return nil
}
