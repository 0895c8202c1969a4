package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/repository"
	"course-platform/internal/infra/metrics"
	red "course-platform/internal/infra/redis"
)

var _ repository.SubscriptionPlanRepository = (*planRepoCacheDecorator)(nil)

// planRepoCacheDecorator is a read-through cache over the plan catalog. The
// catalog is read on every subscription reconciliation, so hits matter; it
// changes only through admin writes, which invalidate both keys.
type planRepoCacheDecorator struct {
	inner repository.SubscriptionPlanRepository
	cache red.Client
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.SubscriptionPlanRepository, cache red.Client) repository.SubscriptionPlanRepository {
	return &planRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
	}
}

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	key := fmt.Sprintf("plan:%s", id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("plan", "hit")
		var plan model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plan) == nil {
			return &plan, nil
		}
	} else if err != redis.Nil {
		metrics.IncCacheRequest("plan", "error")
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		bytes, _ := json.Marshal(plan)
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return plan, nil
}

func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	key := "plans:all"
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("plan_list", "hit")
		var plans []*model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plans) == nil {
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		bytes, _ := json.Marshal(plans)
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return plans, nil
}

// Writes invalidate both the per-plan key and the list key.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	d.cache.Del(ctx, fmt.Sprintf("plan:%s", plan.ID))
	d.cache.Del(ctx, "plans:all")
	return d.inner.Save(ctx, tx, plan)
}

func (d *planRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, id string) error {
	d.cache.Del(ctx, fmt.Sprintf("plan:%s", id))
	d.cache.Del(ctx, "plans:all")
	return d.inner.Delete(ctx, tx, id)
}
