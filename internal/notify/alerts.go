package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// AlertSink turns iteration results into notifications: one cycle_detected
// alert when the best opportunity reaches minNet, and one exchange_failed
// alert listing exchanges that failed or timed out.
type AlertSink struct {
	notifier *Notifier
	minNet   float64
}

var _ domain.IterationSink = (*AlertSink)(nil)

// NewAlertSink creates an AlertSink.
func NewAlertSink(n *Notifier, minNet float64) *AlertSink {
	return &AlertSink{notifier: n, minNet: minNet}
}

func (a *AlertSink) Name() string { return "notify" }

func (a *AlertSink) Emit(ctx context.Context, res domain.IterationResult) error {
	var errs []error

	if len(res.Ranked) > 0 && res.Ranked[0].NetProfit >= a.minNet {
		title, msg := cycleAlert(res)
		errs = append(errs, a.notifier.Notify(ctx, EventCycleDetected, title, msg))
	}

	var failed []string
	for _, ex := range res.Exchanges() {
		o := res.PerExchange[ex]
		if o.Kind == domain.OutcomeFetchFailed || o.Kind == domain.OutcomeTimedOut {
			failed = append(failed, fmt.Sprintf("%s: %s (%s) %s", ex, o.Kind, o.Stage, o.Reason))
		}
	}
	if len(failed) > 0 {
		title := fmt.Sprintf("%d exchange(s) failed in iteration #%d", len(failed), res.Seq)
		errs = append(errs, a.notifier.Notify(ctx, EventExchangeFailed, title, strings.Join(failed, "\n")))
	}
	return errors.Join(errs...)
}

func cycleAlert(res domain.IterationResult) (title, message string) {
	top := res.Ranked[0]
	title = fmt.Sprintf("Cycle %.3f%% on %s", top.NetProfit*100, top.Exchange)
	if top.Simulated {
		title += " (simulated)"
	}

	var b strings.Builder
	for _, o := range res.Ranked {
		fmt.Fprintf(&b, "#%d %s %s %.4f%% (%d hops)\n", o.Rank, o.Exchange, o.Signature(), o.NetProfit*100, o.Hops)
	}
	return title, strings.TrimSuffix(b.String(), "\n")
}
