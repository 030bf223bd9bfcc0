package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
	"edu-subscription-platform/internal/infra/metrics"
	red "edu-subscription-platform/internal/infra/redis"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

// planRepoCacheDecorator serves FindByID/FindBySlug from redis. Counters are
// volatile, so the TTL is short and every write path invalidates. List and the
// counter mutations always go to the database.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient) repository.PlanRepository {
	return &planRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   5 * time.Minute,
	}
}

func planKey(id string) string    { return fmt.Sprintf("plan:%s", id) }
func planSlugKey(s string) string { return fmt.Sprintf("plan:slug:%s", s) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Plan, error) {
	if qx == nil {
		if val, err := d.cache.Get(ctx, planKey(id)); err == nil {
			metrics.IncCacheRequest("plan", "hit")
			var plan model.Plan
			if json.Unmarshal([]byte(val), &plan) == nil {
				return &plan, nil
			}
		}
		metrics.IncCacheRequest("plan", "miss")
	}
	plan, err := d.inner.FindByID(ctx, qx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, plan)
	return plan, nil
}

func (d *planRepoCacheDecorator) FindBySlug(ctx context.Context, qx repository.Tx, slug string) (*model.Plan, error) {
	if qx == nil {
		if val, err := d.cache.Get(ctx, planSlugKey(slug)); err == nil {
			metrics.IncCacheRequest("plan", "hit")
			var plan model.Plan
			if json.Unmarshal([]byte(val), &plan) == nil {
				return &plan, nil
			}
		}
		metrics.IncCacheRequest("plan", "miss")
	}
	plan, err := d.inner.FindBySlug(ctx, qx, slug)
	if err != nil {
		return nil, err
	}
	d.store(ctx, plan)
	return plan, nil
}

func (d *planRepoCacheDecorator) store(ctx context.Context, plan *model.Plan) {
	bytes, err := json.Marshal(plan)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, planKey(plan.ID), bytes, d.ttl)
	_ = d.cache.Set(ctx, planSlugKey(plan.Slug), bytes, d.ttl)
}

func (d *planRepoCacheDecorator) invalidate(ctx context.Context, id, slug string) {
	keys := []string{planKey(id)}
	if slug != "" {
		keys = append(keys, planSlugKey(slug))
	}
	_ = d.cache.Del(ctx, keys...)
}

// invalidateByID resolves the slug through the inner repo so both cache keys
// drop together; the slug entry going stale would otherwise outlive the write
// for a full TTL.
func (d *planRepoCacheDecorator) invalidateByID(ctx context.Context, qx repository.Tx, id string) {
	slug := ""
	if plan, err := d.inner.FindByID(ctx, qx, id); err == nil {
		slug = plan.Slug
	}
	d.invalidate(ctx, id, slug)
}

func (d *planRepoCacheDecorator) Save(ctx context.Context, qx repository.Tx, plan *model.Plan) error {
	d.invalidate(ctx, plan.ID, plan.Slug)
	return d.inner.Save(ctx, qx, plan)
}

func (d *planRepoCacheDecorator) Delete(ctx context.Context, qx repository.Tx, id string) error {
	d.invalidateByID(ctx, qx, id)
	return d.inner.Delete(ctx, qx, id)
}

func (d *planRepoCacheDecorator) FindActiveByCourse(ctx context.Context, qx repository.Tx, courseID string) (*model.Plan, error) {
	return d.inner.FindActiveByCourse(ctx, qx, courseID)
}

func (d *planRepoCacheDecorator) List(ctx context.Context, qx repository.Tx, f repository.PlanFilter) ([]*model.Plan, error) {
	return d.inner.List(ctx, qx, f)
}

func (d *planRepoCacheDecorator) IncrementCounters(ctx context.Context, qx repository.Tx, planID string, purchases, revenue, subscriptions int64) error {
	d.invalidateByID(ctx, qx, planID)
	return d.inner.IncrementCounters(ctx, qx, planID, purchases, revenue, subscriptions)
}

func (d *planRepoCacheDecorator) WriteStats(ctx context.Context, qx repository.Tx, planID string, stats repository.PlanStats) error {
	d.invalidateByID(ctx, qx, planID)
	return d.inner.WriteStats(ctx, qx, planID, stats)
}
