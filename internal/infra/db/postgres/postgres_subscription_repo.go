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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `id, user_id, plan_id, kind, course_id, start_date, end_date, status, price, currency, paid, auto_renewal, completed_lessons, total_lessons, progress_percent, cancel_reason, cancelled_by, cancelled_at, created_at, updated_at`

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Kind, &s.CourseID, &s.StartDate, &s.EndDate, &s.Status,
		&s.Price, &s.Currency, &s.Paid, &s.AutoRenewal, &s.CompletedLessons, &s.TotalLessons, &s.ProgressPercent,
		&s.CancelReason, &s.CancelledBy, &s.CancelledAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, qx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  end_date=$7, status=$8, paid=$11, auto_renewal=$12, completed_lessons=$13, total_lessons=$14,
  progress_percent=$15, cancel_reason=$16, cancelled_by=$17, cancelled_at=$18, updated_at=$20;`

	_, err := execSQL(ctx, r.pool, qx, q,
		s.ID, s.UserID, s.PlanID, s.Kind, s.CourseID, s.StartDate, s.EndDate, s.Status,
		s.Price, s.Currency, s.Paid, s.AutoRenewal, s.CompletedLessons, s.TotalLessons, s.ProgressPercent,
		s.CancelReason, s.CancelledBy, s.CancelledAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		// The partial unique index on open (user_id, course_id) pairs turns a
		// concurrent duplicate purchase into a conflict, not a second grant.
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindOpenByUserAndCourse(ctx context.Context, qx repository.Tx, userID, courseID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 AND course_id=$2 AND status IN ('pending','active') LIMIT 1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, qx, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subscriptionRepo) Activate(ctx context.Context, qx repository.Tx, id string) (bool, error) {
	// Guarded by the pending status: a second activation attempt is a no-op.
	const q = `UPDATE subscriptions SET status='active', paid=TRUE, updated_at=NOW() WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, qx, q, id)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() > 0, nil
}

func (r *subscriptionRepo) ExpireDue(ctx context.Context, qx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	// The status filter lives inside the UPDATE, so concurrent sweeps cannot
	// transition the same row twice. SKIP LOCKED keeps overlapping sweeps
	// from serializing on each other's batches. Cancellation metadata routes
	// the row to cancelled instead of expired.
	const q = `
UPDATE subscriptions SET
  status = CASE WHEN cancelled_at IS NOT NULL THEN 'cancelled' ELSE 'expired' END,
  updated_at = NOW()
WHERE id IN (
  SELECT id FROM subscriptions
  WHERE status='active' AND end_date < $1
  ORDER BY end_date
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + subscriptionColumns + `;`

	rows, err := queryRows(ctx, r.pool, qx, q, now, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subscriptionRepo) CountStatsByPlan(ctx context.Context, qx repository.Tx, planID string) (int64, error) {
	const q = `SELECT COUNT(*) FROM subscriptions WHERE plan_id=$1 AND status='active';`
	row, err := pickRow(ctx, r.pool, qx, q, planID)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
