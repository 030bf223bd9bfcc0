package repository

import (
	"context"
	"time"

	"edu-subscription-platform/internal/domain/model"
)

// PaymentMutation carries the optional column writes that accompany a status
// transition. Nil fields are left untouched (COALESCE semantics).
type PaymentMutation struct {
	TransactionID *string
	FailureReason *string
	PaidAt        *time.Time
}

// PaymentRepository is the port for payment persistence.
type PaymentRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Payment) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Payment, error)
	// FindByInvoiceID is the O(1) webhook lookup path (unique index on the
	// external invoice id).
	FindByInvoiceID(ctx context.Context, qx Tx, invoiceID string) (*model.Payment, error)
	CountBySubscription(ctx context.Context, qx Tx, subscriptionID string) (int, error)
	HasSuccessful(ctx context.Context, qx Tx, subscriptionID string) (bool, error)

	// TransitionStatus applies a compare-and-set status update:
	// SET status=target ... WHERE id=$1 AND status = ANY(sources).
	// It reports whether the transition was applied; false means the payment
	// was already past the allowed source set (duplicate or out-of-order
	// delivery) and nothing was changed.
	TransitionStatus(ctx context.Context, qx Tx, id string, target model.PaymentStatus, sources []model.PaymentStatus, mut PaymentMutation) (bool, error)

	// AddRefund atomically adds to refunded_amount, guarded so the total can
	// never exceed final_amount, and moves the payment to status when the
	// refund covers the full amount. Reports whether the update was applied.
	AddRefund(ctx context.Context, qx Tx, id string, amount int64) (bool, error)

	// SumStatsByPlan recomputes purchase count and recognized revenue
	// (successful + refunded payments, net of refunded amounts) from source truth.
	SumStatsByPlan(ctx context.Context, qx Tx, planID string) (purchases, revenue int64, err error)
	// SumRevenueSince returns recognized revenue for paid_at >= since.
	SumRevenueSince(ctx context.Context, qx Tx, since time.Time) (int64, error)
}
