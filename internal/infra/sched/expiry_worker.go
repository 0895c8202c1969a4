package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/domain/ports/repository"
	"course-platform/internal/infra/metrics"
	red "course-platform/internal/infra/redis"
	"course-platform/internal/usecase"
)

// ExpiryWorker periodically expires lapsed subscriptions through the
// reconciliation path and sends period-end reminders. It is a safety net:
// the read-time lapse check already keeps entitlement answers correct
// between ticks.
type ExpiryWorker struct {
	interval     time.Duration
	reminderDays int
	reconciler   usecase.ReconcileUseCase
	subs         repository.SubscriptionRepository
	enrollments  repository.EnrollmentRepository
	notifier     adapter.Notifier
	cache        red.Client
	log          *zerolog.Logger
}

func NewExpiryWorker(
	interval time.Duration,
	reminderDays int,
	reconciler usecase.ReconcileUseCase,
	subs repository.SubscriptionRepository,
	enrollments repository.EnrollmentRepository,
	notifier adapter.Notifier,
	cache red.Client,
	logger *zerolog.Logger,
) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval:     interval,
		reminderDays: reminderDays,
		reconciler:   reconciler,
		subs:         subs,
		enrollments:  enrollments,
		notifier:     notifier,
		cache:        cache,
		log:          &l,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	// Run once on startup, then on every tick
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	n, err := w.reconciler.ExpireOverdue(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry sweep failed")
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		w.log.Info().Int("count", n).Msg("lapsed subscriptions expired")
	}
	w.sendReminders(ctx)
	w.refreshGauges(ctx)
}

// refreshGauges republishes the active-subscription and granting-enrollment
// gauges once per sweep.
func (w *ExpiryWorker) refreshGauges(ctx context.Context) {
	if byPlan, err := w.subs.CountActiveByPlan(ctx, repository.NoTX); err == nil {
		metrics.SetSubscriptionsActive(byPlan)
	}
	if granting, err := w.enrollments.CountGranting(ctx, repository.NoTX, time.Now()); err == nil {
		metrics.SetEnrollmentsGranting(granting)
	}
}

// sendReminders notifies users whose paid period ends within the reminder
// window. A redis counter keyed on (user, period end) keeps one reminder per
// period across ticks and restarts.
func (w *ExpiryWorker) sendReminders(ctx context.Context) {
	window := time.Duration(w.reminderDays) * 24 * time.Hour
	expiring, err := w.subs.FindExpiring(ctx, repository.NoTX, window)
	if err != nil {
		w.log.Error().Err(err).Msg("reminder scan failed")
		return
	}
	for _, s := range expiring {
		if s.PeriodEnd == nil || s.CancelAtPeriodEnd {
			continue
		}
		key := fmt.Sprintf("reminder:%s:%d", s.UserID, s.PeriodEnd.Unix())
		cnt, err := w.cache.Incr(ctx, key)
		if err != nil {
			w.log.Warn().Err(err).Str("user_id", s.UserID).Msg("reminder dedup unavailable, skipping")
			continue
		}
		if cnt > 1 {
			continue
		}
		_ = w.cache.Expire(ctx, key, window+24*time.Hour)

		if err := w.notifier.SubscriptionExpiring(ctx, s.UserID, *s.PeriodEnd); err != nil {
			w.log.Warn().Err(err).Str("user_id", s.UserID).Msg("reminder notification failed")
		}
	}
}
