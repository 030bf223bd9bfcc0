package repository

import (
	"context"

	"edu-subscription-platform/internal/domain/model"
)

// PlanFilter narrows List results. Zero values mean "no constraint".
type PlanFilter struct {
	Kind          model.PlanKind
	ActiveOnly    bool
	AvailableOnly bool
	CourseID      string
	PriceMin      int64
	PriceMax      int64
	Search        string // free-text match on name/description
	Limit         int
	Offset        int
}

// PlanStats is the full-recompute payload written back to a plan row.
type PlanStats struct {
	Purchases           int64
	Revenue             int64
	ActiveSubscriptions int64
}

// PlanRepository is the port for plan persistence.
//
// Counter mutations are atomic in-database increments, never read-modify-write,
// so concurrent purchases of the same plan cannot lose updates.
type PlanRepository interface {
	Save(ctx context.Context, qx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Plan, error)
	FindBySlug(ctx context.Context, qx Tx, slug string) (*model.Plan, error)
	// FindActiveByCourse returns the single active course plan bound to a
	// course, or ErrNotFound.
	FindActiveByCourse(ctx context.Context, qx Tx, courseID string) (*model.Plan, error)
	List(ctx context.Context, qx Tx, f PlanFilter) ([]*model.Plan, error)
	// Delete removes a plan only while it has no current subscriptions;
	// otherwise it returns ErrPlanHasSubscribers.
	Delete(ctx context.Context, qx Tx, id string) error

	// IncrementCounters atomically applies deltas to the purchase, revenue and
	// current-subscription counters.
	IncrementCounters(ctx context.Context, qx Tx, planID string, purchases, revenue, subscriptions int64) error
	// WriteStats overwrites the counters from recomputed source truth.
	WriteStats(ctx context.Context, qx Tx, planID string, stats PlanStats) error
}
