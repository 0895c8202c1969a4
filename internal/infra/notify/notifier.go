package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/infra/worker"
)

// Ensure compile-time conformance
var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the structured log. It stands in for a
// real mail provider; the call sites and delivery semantics stay the same
// when one is plugged in.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(log *zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) PurchaseCompleted(ctx context.Context, userID, orderID string, courseIDs []string) error {
	n.log.Info().
		Str("user_id", userID).
		Str("order_id", orderID).
		Strs("course_ids", courseIDs).
		Msg("notify: purchase completed")
	return nil
}

func (n *LogNotifier) SubscriptionActivated(ctx context.Context, userID, planID string, periodEnd time.Time) error {
	n.log.Info().
		Str("user_id", userID).
		Str("plan_id", planID).
		Time("period_end", periodEnd).
		Msg("notify: subscription activated")
	return nil
}

func (n *LogNotifier) SubscriptionExpiring(ctx context.Context, userID string, periodEnd time.Time) error {
	n.log.Info().
		Str("user_id", userID).
		Time("period_end", periodEnd).
		Msg("notify: subscription expiring soon")
	return nil
}

var _ adapter.Notifier = (*Dispatcher)(nil)

// Dispatcher pushes deliveries onto the worker pool so callers never block.
// A saturated pool drops the notification; the entitlement change it
// announces has already committed.
type Dispatcher struct {
	inner adapter.Notifier
	pool  *worker.Pool
	log   *zerolog.Logger
}

func NewDispatcher(inner adapter.Notifier, pool *worker.Pool, log *zerolog.Logger) *Dispatcher {
	return &Dispatcher{inner: inner, pool: pool, log: log}
}

func (d *Dispatcher) PurchaseCompleted(ctx context.Context, userID, orderID string, courseIDs []string) error {
	d.submit("purchase_completed", func(ctx context.Context) error {
		return d.inner.PurchaseCompleted(ctx, userID, orderID, courseIDs)
	})
	return nil
}

func (d *Dispatcher) SubscriptionActivated(ctx context.Context, userID, planID string, periodEnd time.Time) error {
	d.submit("subscription_activated", func(ctx context.Context) error {
		return d.inner.SubscriptionActivated(ctx, userID, planID, periodEnd)
	})
	return nil
}

func (d *Dispatcher) SubscriptionExpiring(ctx context.Context, userID string, periodEnd time.Time) error {
	d.submit("subscription_expiring", func(ctx context.Context) error {
		return d.inner.SubscriptionExpiring(ctx, userID, periodEnd)
	})
	return nil
}

func (d *Dispatcher) submit(kind string, task worker.Task) {
	if err := d.pool.Submit(task); err != nil {
		d.log.Warn().Err(err).Str("kind", kind).Msg("notification dropped")
	}
}
