package repository

import (
	"context"

	"course-platform/internal/domain/model"
)

// SubscriptionPlanRepository manages the admin-owned plan catalog, including
// each plan's course set and per-duration price points.
type SubscriptionPlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.SubscriptionPlan) error
	Delete(ctx context.Context, tx Tx, id string) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.SubscriptionPlan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.SubscriptionPlan, error)
}
