package repository

import (
	"context"
	"time"

	"edu-subscription-platform/internal/domain/model"
)

// SubscriptionRepository is the port for user subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, qx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Subscription, error)
	// FindOpenByUserAndCourse returns a pending or active subscription for
	// (userID, courseID), or ErrNotFound.
	FindOpenByUserAndCourse(ctx context.Context, qx Tx, userID, courseID string) (*model.Subscription, error)
	ListByUser(ctx context.Context, qx Tx, userID string) ([]*model.Subscription, error)

	// Activate flips a pending subscription to active+paid. The update is
	// guarded by the pending status; it reports whether a row was changed.
	Activate(ctx context.Context, qx Tx, id string) (bool, error)

	// ExpireDue transitions up to limit subscriptions with status=active and
	// end_date < now. Cancellation metadata decides whether a row lands in
	// cancelled or expired. The status filter sits in the UPDATE itself, so
	// concurrent sweeps are harmless. Returns the transitioned rows.
	ExpireDue(ctx context.Context, qx Tx, now time.Time, limit int) ([]*model.Subscription, error)

	// CountStatsByPlan recomputes active-subscription counts from source truth.
	CountStatsByPlan(ctx context.Context, qx Tx, planID string) (active int64, err error)
}
