package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.SubscriptionPlanRepository = (*planRepo)(nil)

// planRepo stores the three optional price points as nullable column pairs
// and the plan's course set in a join table.
type planRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	const q = `
INSERT INTO subscription_plans (
  id, name, price_1m, plan_ref_1m, price_6m, plan_ref_6m, price_12m, plan_ref_12m, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name,
  price_1m=EXCLUDED.price_1m, plan_ref_1m=EXCLUDED.plan_ref_1m,
  price_6m=EXCLUDED.price_6m, plan_ref_6m=EXCLUDED.plan_ref_6m,
  price_12m=EXCLUDED.price_12m, plan_ref_12m=EXCLUDED.plan_ref_12m;`

	p1, r1 := priceCols(plan, model.Duration1Month)
	p6, r6 := priceCols(plan, model.Duration6Months)
	p12, r12 := priceCols(plan, model.Duration12Months)
	if _, err := execSQL(ctx, r.pool, tx, q, plan.ID, plan.Name, p1, r1, p6, r6, p12, r12, plan.CreatedAt); err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}

	// Replace the course set wholesale; plans are small.
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM plan_courses WHERE plan_id=$1;`, plan.ID); err != nil {
		return domain.ErrOperationFailed
	}
	const qc = `INSERT INTO plan_courses (plan_id, course_id) VALUES ($1,$2) ON CONFLICT DO NOTHING;`
	for _, cid := range plan.CourseIDs {
		if _, err := execSQL(ctx, r.pool, tx, qc, plan.ID, cid); err != nil {
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *planRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	const countQ = `SELECT COUNT(1) FROM subscriptions WHERE plan_id=$1 AND status='active';`
	row, err := pickRow(ctx, r.pool, tx, countQ, id)
	if err != nil {
		return err
	}
	var cnt int
	if err := row.Scan(&cnt); err != nil {
		return domain.ErrReadDatabaseRow
	}
	if cnt > 0 {
		return domain.ErrActiveSubscription
	}

	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM plan_courses WHERE plan_id=$1;`, id); err != nil {
		return domain.ErrOperationFailed
	}
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM subscription_plans WHERE id=$1;`, id)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	const q = planColumns + ` WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadCourses(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *planRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	const q = planColumns + ` ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	for _, p := range out {
		if err := r.loadCourses(ctx, tx, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const planColumns = `
SELECT id, name, price_1m, plan_ref_1m, price_6m, plan_ref_6m, price_12m, plan_ref_12m, created_at
  FROM subscription_plans`

func (r *planRepo) loadCourses(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	const q = `SELECT course_id FROM plan_courses WHERE plan_id=$1 ORDER BY course_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, p.ID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	defer rows.Close()
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return domain.ErrReadDatabaseRow
		}
		p.CourseIDs = append(p.CourseIDs, cid)
	}
	if err := rows.Err(); err != nil {
		return domain.ErrReadDatabaseRow
	}
	return nil
}

func priceCols(p *model.SubscriptionPlan, d model.PlanDuration) (*int64, *string) {
	pp, ok := p.Prices[d]
	if !ok {
		return nil, nil
	}
	return &pp.Price, &pp.ExternalPlanID
}

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	p := &model.SubscriptionPlan{Prices: make(map[model.PlanDuration]model.PlanPrice)}
	var p1, p6, p12 *int64
	var r1, r6, r12 *string
	if err := row.Scan(&p.ID, &p.Name, &p1, &r1, &p6, &r6, &p12, &r12, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	setPrice := func(d model.PlanDuration, price *int64, ref *string) {
		if price == nil {
			return
		}
		pp := model.PlanPrice{Price: *price}
		if ref != nil {
			pp.ExternalPlanID = *ref
		}
		p.Prices[d] = pp
	}
	setPrice(model.Duration1Month, p1, r1)
	setPrice(model.Duration6Months, p6, r6)
	setPrice(model.Duration12Months, p12, r12)
	return p, nil
}
