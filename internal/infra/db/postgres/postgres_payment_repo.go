package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

const paymentColumns = `id, subscription_id, plan_id, user_id, amount, discount_amount, final_amount, currency, status, invoice_id, transaction_id, payment_url, payment_link_expires_at, attempt_number, failure_reason, paid_at, refunded_amount, created_at, updated_at`

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(
		&p.ID, &p.SubscriptionID, &p.PlanID, &p.UserID, &p.Amount, &p.DiscountAmount, &p.FinalAmount, &p.Currency,
		&p.Status, &p.InvoiceID, &p.TransactionID, &p.PaymentURL, &p.PaymentLinkExpiresAt, &p.AttemptNumber,
		&p.FailureReason, &p.PaidAt, &p.RefundedAmount, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, qx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (id) DO UPDATE SET
  status=$9, invoice_id=$10, transaction_id=$11, payment_url=$12, payment_link_expires_at=$13,
  failure_reason=$15, paid_at=$16, refunded_amount=$17, updated_at=$19;`

	_, err := execSQL(ctx, r.pool, qx, q,
		p.ID, p.SubscriptionID, p.PlanID, p.UserID, p.Amount, p.DiscountAmount, p.FinalAmount, p.Currency,
		p.Status, p.InvoiceID, p.TransactionID, p.PaymentURL, p.PaymentLinkExpiresAt, p.AttemptNumber,
		p.FailureReason, p.PaidAt, p.RefundedAmount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByInvoiceID(ctx context.Context, qx repository.Tx, invoiceID string) (*model.Payment, error) {
	// payments(invoice_id) carries a unique index; this is the O(1) webhook path.
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, invoiceID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) CountBySubscription(ctx context.Context, qx repository.Tx, subscriptionID string) (int, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT COUNT(*) FROM payments WHERE subscription_id=$1;`, subscriptionID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *paymentRepo) HasSuccessful(ctx context.Context, qx repository.Tx, subscriptionID string) (bool, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT EXISTS(SELECT 1 FROM payments WHERE subscription_id=$1 AND status='success');`, subscriptionID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *paymentRepo) TransitionStatus(ctx context.Context, qx repository.Tx, id string, target model.PaymentStatus, sources []model.PaymentStatus, mut repository.PaymentMutation) (bool, error) {
	src := make([]string, len(sources))
	for i, s := range sources {
		src[i] = string(s)
	}
	// Compare-and-set on the current status; duplicate or out-of-order
	// deliveries fall out of the source set and affect zero rows.
	const q = `
UPDATE payments SET
  status = $2,
  transaction_id = COALESCE($4, transaction_id),
  failure_reason = COALESCE($5, failure_reason),
  paid_at = COALESCE($6, paid_at),
  updated_at = NOW()
WHERE id = $1 AND status = ANY($3);`
	tag, err := execSQL(ctx, r.pool, qx, q, id, target, src, mut.TransactionID, mut.FailureReason, mut.PaidAt)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *paymentRepo) AddRefund(ctx context.Context, qx repository.Tx, id string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, domain.ErrInvalidArgument
	}
	// Atomic and bounded: the WHERE clause keeps refunded_amount from ever
	// exceeding final_amount, and a full refund flips the status in the same
	// statement.
	const q = `
UPDATE payments SET
  refunded_amount = refunded_amount + $2,
  status = CASE WHEN refunded_amount + $2 >= final_amount THEN 'refunded' ELSE status END,
  updated_at = NOW()
WHERE id = $1 AND status IN ('success','refunded') AND refunded_amount + $2 <= final_amount;`
	tag, err := execSQL(ctx, r.pool, qx, q, id, amount)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *paymentRepo) SumStatsByPlan(ctx context.Context, qx repository.Tx, planID string) (int64, int64, error) {
	const q = `
SELECT COUNT(*), COALESCE(SUM(final_amount - refunded_amount), 0)
FROM payments
WHERE plan_id=$1 AND status IN ('success','refunded');`
	row, err := pickRow(ctx, r.pool, qx, q, planID)
	if err != nil {
		return 0, 0, err
	}
	var purchases, revenue int64
	if err := row.Scan(&purchases, &revenue); err != nil {
		return 0, 0, domain.ErrReadDatabaseRow
	}
	return purchases, revenue, nil
}

func (r *paymentRepo) SumRevenueSince(ctx context.Context, qx repository.Tx, since time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(final_amount - refunded_amount), 0) FROM payments WHERE status IN ('success','refunded') AND paid_at >= $1;`
	row, err := pickRow(ctx, r.pool, qx, q, since)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
