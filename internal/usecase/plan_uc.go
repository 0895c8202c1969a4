package usecase

import (
	"context"

	"github.com/google/uuid"

	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// PlanUseCase manages the subscription plan catalog.
type PlanUseCase interface {
	Create(ctx context.Context, name string, prices map[model.PlanDuration]model.PlanPrice, courseIDs []string) (*model.SubscriptionPlan, error)
	Update(ctx context.Context, plan *model.SubscriptionPlan) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
}

type planUC struct {
	repo repository.SubscriptionPlanRepository
}

func NewPlanUseCase(repo repository.SubscriptionPlanRepository) *planUC {
	return &planUC{repo: repo}
}

func (uc *planUC) Create(ctx context.Context, name string, prices map[model.PlanDuration]model.PlanPrice, courseIDs []string) (*model.SubscriptionPlan, error) {
	plan, err := model.NewSubscriptionPlan(uuid.NewString(), name, prices, courseIDs)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Save(ctx, repository.NoTX, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (uc *planUC) Update(ctx context.Context, plan *model.SubscriptionPlan) error {
	return uc.repo.Save(ctx, repository.NoTX, plan)
}

func (uc *planUC) Delete(ctx context.Context, id string) error {
	return uc.repo.Delete(ctx, repository.NoTX, id)
}

func (uc *planUC) Get(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	return uc.repo.FindByID(ctx, repository.NoTX, id)
}

func (uc *planUC) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	return uc.repo.ListAll(ctx, repository.NoTX)
}
