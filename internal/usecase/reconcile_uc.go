package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/domain/ports/repository"
	"course-platform/internal/infra/logging"
	"course-platform/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase is the single code path that brings enrollment state back
// into agreement with the latest known order/subscription status. Webhook
// handlers, admin overrides, the expiry sweep and the lazy read-time check
// all funnel through it.
type ReconcileUseCase interface {
	// ApplyPaymentEvent consumes one normalized gateway notification.
	// Replays of the same (provider, external id, raw status) are no-ops.
	ApplyPaymentEvent(ctx context.Context, ev model.PaymentEvent) error
	// SetOrderStatus drives the order state machine directly (admin override,
	// user cancel). Illegal or repeated transitions are logged and ignored.
	SetOrderStatus(ctx context.Context, orderID string, next model.OrderStatus) error
	// SetSubscriptionStatus drives the subscription state machine directly.
	// periodEnd, when non-nil, overrides the computed period end on activation.
	SetSubscriptionStatus(ctx context.Context, userID string, next model.SubscriptionStatus, periodEnd *time.Time) error
	// ExpireOverdue expires active subscriptions whose period has lapsed.
	ExpireOverdue(ctx context.Context) (int, error)
	// ExpireIfLapsed runs the lapse reconciliation for one user if their
	// subscription row still reads active past its period end. Returns
	// whether anything was expired.
	ExpireIfLapsed(ctx context.Context, userID string) (bool, error)
}

type reconcileUC struct {
	orders      repository.OrderRepository
	subs        repository.SubscriptionRepository
	plans       repository.SubscriptionPlanRepository
	enrollments repository.EnrollmentRepository
	events      repository.WebhookEventRepository
	tm          repository.TransactionManager
	notifier    adapter.Notifier
	log         *zerolog.Logger
}

func NewReconcileUseCase(
	orders repository.OrderRepository,
	subs repository.SubscriptionRepository,
	plans repository.SubscriptionPlanRepository,
	enrollments repository.EnrollmentRepository,
	events repository.WebhookEventRepository,
	tm repository.TransactionManager,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		orders:      orders,
		subs:        subs,
		plans:       plans,
		enrollments: enrollments,
		events:      events,
		tm:          tm,
		notifier:    notifier,
		log:         &l,
	}
}

func hashToInt64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

// lockEntity serializes concurrent mutations of one order/subscription via an
// advisory xact lock. On the non-pgx path (in-memory repos) it is a no-op.
func lockEntity(ctx context.Context, tx repository.Tx, key string) error {
	pgxTx, ok := tx.(pgx.Tx)
	if !ok {
		return nil
	}
	_, err := pgxTx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(key))
	return err
}

// postHooks collects notification sends to run only after the transaction
// commits, so a rollback never produces a stray email.
type postHooks []func(ctx context.Context)

func (p postHooks) run(ctx context.Context) {
	for _, f := range p {
		f(ctx)
	}
}

func (uc *reconcileUC) ApplyPaymentEvent(ctx context.Context, ev model.PaymentEvent) error {
	defer logging.TraceDuration(uc.log, "ReconcileUC.ApplyPaymentEvent")()

	var post postHooks
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		insErr := uc.events.Insert(ctx, tx, &model.WebhookEvent{
			Provider:   ev.Provider,
			ExternalID: ev.ExternalID,
			RawStatus:  ev.RawStatus,
			EventType:  string(ev.Kind),
			ReceivedAt: time.Now(),
		})
		if errors.Is(insErr, domain.ErrDuplicateEvent) {
			metrics.IncWebhook(ev.Provider, "replay")
			uc.log.Debug().Str("provider", ev.Provider).Str("external_id", ev.ExternalID).
				Str("raw_status", ev.RawStatus).Msg("duplicate webhook event, skipping")
			return nil
		}
		if insErr != nil {
			return insErr
		}

		switch ev.Kind {
		case model.EventKindPayment:
			return uc.applyOrderEvent(ctx, tx, ev, &post)
		case model.EventKindSubscription:
			return uc.applySubscriptionEvent(ctx, tx, ev, &post)
		default:
			return domain.ErrInvalidArgument
		}
	})
	if err != nil {
		return err
	}
	post.run(ctx)
	return nil
}

func (uc *reconcileUC) applyOrderEvent(ctx context.Context, tx repository.Tx, ev model.PaymentEvent, post *postHooks) error {
	if err := lockEntity(ctx, tx, "order:"+ev.ExternalRef); err != nil {
		return err
	}
	o, err := uc.orders.FindByID(ctx, tx, ev.ExternalRef)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncWebhook(ev.Provider, "unresolved")
		uc.log.Warn().Str("provider", ev.Provider).Str("external_ref", ev.ExternalRef).
			Msg("payment event references unknown order")
		return nil
	}
	if err != nil {
		return err
	}
	return uc.transitionOrder(ctx, tx, o, model.OrderStatusFromProvider(ev.RawStatus), post)
}

// transitionOrder applies one step of the order state machine and the
// resulting enrollment delta, inside the caller's transaction.
func (uc *reconcileUC) transitionOrder(ctx context.Context, tx repository.Tx, o *model.Order, next model.OrderStatus, post *postHooks) error {
	if next == o.Status {
		uc.log.Debug().Str("order_id", o.ID).Str("status", string(next)).Msg("order already in target status")
		return nil
	}
	if !o.Status.CanTransitionTo(next) {
		metrics.IncReconcile("order", string(o.Status)+"->"+string(next), "illegal")
		uc.log.Warn().Str("order_id", o.ID).Str("from", string(o.Status)).Str("to", string(next)).
			Msg("ignoring illegal order transition")
		return nil
	}

	prev := o.Status
	if err := uc.orders.UpdateStatus(ctx, tx, o.ID, next); err != nil {
		return err
	}
	o.Status = next
	metrics.IncReconcile("order", string(prev)+"->"+string(next), "applied")
	metrics.IncOrder(string(next))

	switch {
	case next == model.OrderStatusCompleted:
		metrics.AddOrderRevenue(o.Provider, o.Total)
		if err := uc.reconcileCourses(ctx, tx, o.UserID, o.CourseIDs()); err != nil {
			return err
		}
		userID, orderID, courses := o.UserID, o.ID, o.CourseIDs()
		*post = append(*post, func(ctx context.Context) {
			if err := uc.notifier.PurchaseCompleted(ctx, userID, orderID, courses); err != nil {
				uc.log.Warn().Err(err).Str("order_id", orderID).Msg("purchase notification failed")
			}
		})
	case prev == model.OrderStatusCompleted:
		// Chargeback/reversal. Recompute each course from both provenance
		// sources: an active subscription covering the course demotes the
		// enrollment to period-bound access instead of deleting it.
		if err := uc.reconcileCourses(ctx, tx, o.UserID, o.CourseIDs()); err != nil {
			return err
		}
	}
	return nil
}

func (uc *reconcileUC) applySubscriptionEvent(ctx context.Context, tx repository.Tx, ev model.PaymentEvent, post *postHooks) error {
	// The by-ref lookup only resolves the lock key. Its statement executes
	// before this transaction blocks on the advisory lock, so the row it
	// returns can predate a concurrent commit. The row is read again once
	// the lock is held and the transition check runs on that read.
	ref, err := uc.subs.FindByExternalRef(ctx, tx, ev.ExternalRef)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncWebhook(ev.Provider, "unresolved")
		uc.log.Warn().Str("provider", ev.Provider).Str("external_ref", ev.ExternalRef).
			Msg("subscription event references unknown subscription")
		return nil
	}
	if err != nil {
		return err
	}
	if err := lockEntity(ctx, tx, "sub:"+ref.UserID); err != nil {
		return err
	}
	s, err := uc.subs.FindByUser(ctx, tx, ref.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncWebhook(ev.Provider, "unresolved")
		uc.log.Warn().Str("provider", ev.Provider).Str("external_ref", ev.ExternalRef).
			Msg("subscription event references unknown subscription")
		return nil
	}
	if err != nil {
		return err
	}
	if s.ExternalRef != ev.ExternalRef {
		// The row was reused for a newer cycle while this event waited on
		// the lock; the event belongs to the superseded cycle.
		metrics.IncWebhook(ev.Provider, "unresolved")
		uc.log.Warn().Str("provider", ev.Provider).Str("external_ref", ev.ExternalRef).
			Msg("subscription event references a superseded cycle")
		return nil
	}
	return uc.transitionSubscription(ctx, tx, s, model.SubscriptionStatusFromProvider(ev.RawStatus), ev.PeriodEnd, post)
}

// transitionSubscription applies one step of the subscription state machine
// and reconciles the plan's course set, inside the caller's transaction.
func (uc *reconcileUC) transitionSubscription(ctx context.Context, tx repository.Tx, s *model.Subscription, next model.SubscriptionStatus, periodEnd *time.Time, post *postHooks) error {
	now := time.Now()
	renewal := next == model.SubscriptionStatusActive && s.Status == model.SubscriptionStatusActive &&
		periodEnd != nil && (s.PeriodEnd == nil || periodEnd.After(*s.PeriodEnd))

	if next == s.Status && !renewal {
		uc.log.Debug().Str("user_id", s.UserID).Str("status", string(next)).Msg("subscription already in target status")
		return nil
	}
	if next != s.Status && !s.Status.CanTransitionTo(next) {
		metrics.IncReconcile("subscription", string(s.Status)+"->"+string(next), "illegal")
		uc.log.Warn().Str("user_id", s.UserID).Str("from", string(s.Status)).Str("to", string(next)).
			Msg("ignoring illegal subscription transition")
		return nil
	}

	prev := s.Status
	switch next {
	case model.SubscriptionStatusActive:
		start := now
		end := s.DurationMonths.Period(start)
		if periodEnd != nil {
			end = *periodEnd
		}
		s.Status = model.SubscriptionStatusActive
		s.PeriodStart = &start
		s.PeriodEnd = &end
		s.UpdatedAt = now
		if err := uc.subs.Save(ctx, tx, s); err != nil {
			return err
		}
		if err := uc.reconcilePlanCourses(ctx, tx, s); err != nil {
			return err
		}
		if !renewal {
			userID, planID, pe := s.UserID, s.PlanID, end
			*post = append(*post, func(ctx context.Context) {
				if err := uc.notifier.SubscriptionActivated(ctx, userID, planID, pe); err != nil {
					uc.log.Warn().Err(err).Str("user_id", userID).Msg("activation notification failed")
				}
			})
		}

	case model.SubscriptionStatusCanceled, model.SubscriptionStatusExpired, model.SubscriptionStatusPaused:
		s.Status = next
		s.UpdatedAt = now
		if err := uc.subs.Save(ctx, tx, s); err != nil {
			return err
		}
		// Leaving active: each plan course is demoted to permanent access if
		// a completed order covers it, revoked otherwise.
		if err := uc.reconcilePlanCourses(ctx, tx, s); err != nil {
			return err
		}

	case model.SubscriptionStatusPending:
		s.Status = next
		s.UpdatedAt = now
		if err := uc.subs.Save(ctx, tx, s); err != nil {
			return err
		}
	}
	metrics.IncReconcile("subscription", string(prev)+"->"+string(next), "applied")
	return nil
}

// reconcilePlanCourses recomputes access for every course in the
// subscription's plan.
func (uc *reconcileUC) reconcilePlanCourses(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	plan, err := uc.plans.FindByID(ctx, tx, s.PlanID)
	if errors.Is(err, domain.ErrNotFound) {
		uc.log.Warn().Str("plan_id", s.PlanID).Msg("subscription references missing plan")
		return nil
	}
	if err != nil {
		return err
	}
	return uc.reconcileCourses(ctx, tx, s.UserID, plan.CourseIDs)
}

func (uc *reconcileUC) reconcileCourses(ctx context.Context, tx repository.Tx, userID string, courseIDs []string) error {
	var firstErr error
	for _, courseID := range courseIDs {
		if err := uc.reconcileCourseAccess(ctx, tx, userID, courseID); err != nil {
			uc.log.Error().Err(err).Str("user_id", userID).Str("course_id", courseID).
				Msg("course access reconciliation failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// reconcileCourseAccess recomputes one (user, course) enrollment from the
// two provenance sources, inside the caller's transaction:
//
//	completed order covers it        -> permanent enrollment (expiry null)
//	else subscription currently on   -> enrollment until period end
//	else                             -> no enrollment
//
// The recompute is idempotent, so replayed events and racing deliveries
// converge on the same state.
func (uc *reconcileUC) reconcileCourseAccess(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	owned, err := uc.orders.HasCompletedForCourse(ctx, tx, userID, courseID)
	if err != nil {
		return err
	}
	if owned {
		return uc.enrollments.Upsert(ctx, tx, userID, courseID, nil)
	}

	s, err := uc.subs.FindByUser(ctx, tx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if s != nil && s.CurrentlyGrants(time.Now()) {
		plan, err := uc.plans.FindByID(ctx, tx, s.PlanID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if plan != nil && plan.Covers(courseID) {
			return uc.enrollments.Upsert(ctx, tx, userID, courseID, s.PeriodEnd)
		}
	}
	return uc.enrollments.Delete(ctx, tx, userID, courseID)
}

func (uc *reconcileUC) SetOrderStatus(ctx context.Context, orderID string, next model.OrderStatus) error {
	var post postHooks
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := lockEntity(ctx, tx, "order:"+orderID); err != nil {
			return err
		}
		o, err := uc.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return uc.transitionOrder(ctx, tx, o, next, &post)
	})
	if err != nil {
		return err
	}
	post.run(ctx)
	return nil
}

func (uc *reconcileUC) SetSubscriptionStatus(ctx context.Context, userID string, next model.SubscriptionStatus, periodEnd *time.Time) error {
	var post postHooks
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := lockEntity(ctx, tx, "sub:"+userID); err != nil {
			return err
		}
		s, err := uc.subs.FindByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		return uc.transitionSubscription(ctx, tx, s, next, periodEnd, &post)
	})
	if err != nil {
		return err
	}
	post.run(ctx)
	return nil
}

func (uc *reconcileUC) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := uc.subs.FindOverdue(ctx, repository.NoTX, time.Now(), 500)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, s := range overdue {
		if err := uc.SetSubscriptionStatus(ctx, s.UserID, model.SubscriptionStatusExpired, nil); err != nil {
			uc.log.Error().Err(err).Str("user_id", s.UserID).Msg("failed expiring subscription")
			continue
		}
		n++
	}
	return n, nil
}

func (uc *reconcileUC) ExpireIfLapsed(ctx context.Context, userID string) (bool, error) {
	s, err := uc.subs.FindByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !s.StalePastPeriodEnd(time.Now()) {
		return false, nil
	}
	if err := uc.SetSubscriptionStatus(ctx, userID, model.SubscriptionStatusExpired, nil); err != nil {
		return false, err
	}
	return true, nil
}
