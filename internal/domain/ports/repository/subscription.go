package repository

import (
	"context"
	"time"

	"course-platform/internal/domain/model"
)

// SubscriptionRepository persists the single per-user subscription row.
type SubscriptionRepository interface {
	// Save upserts on user_id; the row is reused across cycles.
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	FindByExternalRef(ctx context.Context, tx Tx, ref string) (*model.Subscription, error)
	// FindOverdue returns active rows whose period end is at or before now.
	FindOverdue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	// FindExpiring returns active rows ending within the window, for reminders.
	FindExpiring(ctx context.Context, tx Tx, within time.Duration) ([]*model.Subscription, error)
	CountActiveByPlan(ctx context.Context, tx Tx) (map[string]int, error)
}
