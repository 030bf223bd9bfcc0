package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-subscription-platform/internal/domain"
	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/repository"
)

var _ repository.PlanRepository = (*planRepo)(nil)

const planColumns = `id, slug, name, description, kind, course_id, includes_all_courses, excluded_course_ids, price, currency, discount_percent, duration_months, available_from, available_until, max_subscriptions, current_subscriptions, total_purchases, total_revenue, active, created_at, updated_at`

type planRepo struct{ pool *pgxpool.Pool }

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	p := &model.Plan{}
	if err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.Kind, &p.CourseID, &p.IncludesAllCourses, &p.ExcludedCourseIDs,
		&p.Price, &p.Currency, &p.DiscountPercent, &p.DurationMonths, &p.AvailableFrom, &p.AvailableUntil,
		&p.MaxSubscriptions, &p.CurrentSubscriptions, &p.TotalPurchases, &p.TotalRevenue, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *planRepo) Save(ctx context.Context, qx repository.Tx, p *model.Plan) error {
	const q = `
INSERT INTO plans (` + planColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
ON CONFLICT (id) DO UPDATE SET
  slug=$2, name=$3, description=$4, kind=$5, course_id=$6, includes_all_courses=$7, excluded_course_ids=$8,
  price=$9, currency=$10, discount_percent=$11, duration_months=$12, available_from=$13, available_until=$14,
  max_subscriptions=$15, active=$19, updated_at=$21;`

	_, err := execSQL(ctx, r.pool, qx, q,
		p.ID, p.Slug, p.Name, p.Description, p.Kind, p.CourseID, p.IncludesAllCourses, p.ExcludedCourseIDs,
		p.Price, p.Currency, p.DiscountPercent, p.DurationMonths, p.AvailableFrom, p.AvailableUntil,
		p.MaxSubscriptions, p.CurrentSubscriptions, p.TotalPurchases, p.TotalRevenue, p.Active, p.CreatedAt, p.UpdatedAt)
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

func (r *planRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT `+planColumns+` FROM plans WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) FindBySlug(ctx context.Context, qx repository.Tx, slug string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT `+planColumns+` FROM plans WHERE slug=$1;`, slug)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) FindActiveByCourse(ctx context.Context, qx repository.Tx, courseID string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, qx, `SELECT `+planColumns+` FROM plans WHERE kind='course' AND course_id=$1 AND active LIMIT 1;`, courseID)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) List(ctx context.Context, qx repository.Tx, f repository.PlanFilter) ([]*model.Plan, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Kind != "" {
		where = append(where, "kind="+arg(f.Kind))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}
	if f.AvailableOnly {
		where = append(where, "active",
			"(available_from IS NULL OR available_from <= NOW())",
			"(available_until IS NULL OR available_until >= NOW())",
			"(max_subscriptions = 0 OR current_subscriptions < max_subscriptions)")
	}
	if f.CourseID != "" {
		where = append(where, "course_id="+arg(f.CourseID))
	}
	if f.PriceMin > 0 {
		where = append(where, "price >= "+arg(f.PriceMin))
	}
	if f.PriceMax > 0 {
		where = append(where, "price <= "+arg(f.PriceMax))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, "(name ILIKE "+p+" OR description ILIKE "+p+")")
	}

	q := `SELECT ` + planColumns + ` FROM plans`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}
	q += ";"

	rows, err := queryRows(ctx, r.pool, qx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *planRepo) Delete(ctx context.Context, qx repository.Tx, id string) error {
	// Deletion is guarded in the same statement so a concurrent purchase
	// cannot slip between the check and the delete.
	const q = `DELETE FROM plans WHERE id=$1 AND current_subscriptions=0;`
	tag, err := execSQL(ctx, r.pool, qx, q, id)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, qx, id); err != nil {
			return err
		}
		return domain.ErrPlanHasSubscribers
	}
	return nil
}

func (r *planRepo) IncrementCounters(ctx context.Context, qx repository.Tx, planID string, purchases, revenue, subscriptions int64) error {
	const q = `
UPDATE plans SET
  total_purchases = total_purchases + $2,
  total_revenue = total_revenue + $3,
  current_subscriptions = GREATEST(current_subscriptions + $4, 0),
  updated_at = NOW()
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, qx, q, planID, purchases, revenue, subscriptions)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *planRepo) WriteStats(ctx context.Context, qx repository.Tx, planID string, stats repository.PlanStats) error {
	const q = `
UPDATE plans SET
  total_purchases = $2,
  total_revenue = $3,
  current_subscriptions = $4,
  updated_at = NOW()
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, qx, q, planID, stats.Purchases, stats.Revenue, stats.ActiveSubscriptions)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
