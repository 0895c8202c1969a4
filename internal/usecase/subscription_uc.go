package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase manages the user-facing subscription lifecycle. Status
// changes with entitlement side effects go through the reconciler so the
// webhook path, the admin path and this path share one implementation.
type SubscriptionUseCase interface {
	// Subscribe starts a subscription checkout cycle for the user and plan.
	// Returns the gateway redirect URL.
	Subscribe(ctx context.Context, userID, planID string, duration model.PlanDuration) (*model.Subscription, string, error)
	// Cancel cancels the user's subscription. With atPeriodEnd, access runs
	// until the paid period lapses; otherwise revocation is immediate.
	Cancel(ctx context.Context, userID string, atPeriodEnd bool) error
	Get(ctx context.Context, userID string) (*model.Subscription, error)
}

type subscriptionUC struct {
	subs       repository.SubscriptionRepository
	plans      repository.SubscriptionPlanRepository
	gateway    adapter.RecurringGateway
	reconciler ReconcileUseCase
	tm         repository.TransactionManager
	log        *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	plans repository.SubscriptionPlanRepository,
	gateway adapter.RecurringGateway,
	reconciler ReconcileUseCase,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, plans: plans, gateway: gateway, reconciler: reconciler, tm: tm, log: &l}
}

func (uc *subscriptionUC) Subscribe(ctx context.Context, userID, planID string, duration model.PlanDuration) (*model.Subscription, string, error) {
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		return nil, "", err
	}
	if _, ok := plan.PriceFor(duration); !ok {
		return nil, "", domain.ErrInvalidArgument
	}

	// Pre-flight check before the gateway round trip; the binding check runs
	// again on a fresh row under the per-user lock below.
	existing, err := uc.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, "", err
	}
	if existing != nil && (existing.CurrentlyGrants(time.Now()) || existing.Status == model.SubscriptionStatusPending) {
		return nil, "", domain.ErrActiveSubscription
	}

	ref, redirectURL, err := uc.gateway.CreatePreapproval(ctx, userID, plan, duration)
	if err != nil {
		return nil, "", err
	}

	var s *model.Subscription
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := lockEntity(ctx, tx, "sub:"+userID); err != nil {
			return err
		}
		now := time.Now()
		cur, err := uc.subs.FindByUser(ctx, tx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		switch {
		case cur == nil:
			s, err = model.NewSubscription(userID, planID, duration)
			if err != nil {
				return err
			}
		case cur.CurrentlyGrants(now) || cur.Status == model.SubscriptionStatusPending:
			return domain.ErrActiveSubscription
		default:
			// canceled/expired row reused for the new cycle
			s = cur
			s.PlanID = planID
			s.DurationMonths = duration
			s.Status = model.SubscriptionStatusPending
			s.CancelAtPeriodEnd = false
			s.UpdatedAt = now
		}
		s.ExternalRef = ref
		return uc.subs.Save(ctx, tx, s)
	})
	if err != nil {
		if errors.Is(err, domain.ErrActiveSubscription) {
			// A concurrent cycle won the lock; release the preapproval
			// created above so it never bills.
			if cerr := uc.gateway.CancelPreapproval(ctx, ref); cerr != nil {
				uc.log.Warn().Err(cerr).Str("user_id", userID).Str("external_ref", ref).
					Msg("failed cancelling orphaned preapproval")
			}
		}
		return nil, "", err
	}

	uc.log.Info().Str("user_id", userID).Str("plan_id", planID).Int("months", int(duration)).
		Msg("subscription checkout created")
	return s, redirectURL, nil
}

func (uc *subscriptionUC) Cancel(ctx context.Context, userID string, atPeriodEnd bool) error {
	s, err := uc.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	if !s.CurrentlyGrants(time.Now()) {
		return domain.ErrNoActiveSubscription
	}

	if s.ExternalRef != "" {
		if err := uc.gateway.CancelPreapproval(ctx, s.ExternalRef); err != nil {
			// The provider retries nothing here; surface the failure so the
			// user can retry rather than keep getting billed.
			return err
		}
	}

	if !atPeriodEnd {
		return uc.reconciler.SetSubscriptionStatus(ctx, userID, model.SubscriptionStatusCanceled, nil)
	}
	// The flag write re-reads the row under the per-user lock so a webhook
	// transition landing after the check above is not written back stale.
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := lockEntity(ctx, tx, "sub:"+userID); err != nil {
			return err
		}
		cur, err := uc.subs.FindByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !cur.CurrentlyGrants(time.Now()) {
			return domain.ErrNoActiveSubscription
		}
		cur.CancelAtPeriodEnd = true
		cur.UpdatedAt = time.Now()
		return uc.subs.Save(ctx, tx, cur)
	})
}

func (uc *subscriptionUC) Get(ctx context.Context, userID string) (*model.Subscription, error) {
	return uc.subs.FindByUser(ctx, repository.NoTX, userID)
}
