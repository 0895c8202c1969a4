package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  user_id, status, plan_id, duration_months, period_start, period_end,
  external_ref, cancel_at_period_end, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (user_id) DO UPDATE SET
  status=$2, plan_id=$3, duration_months=$4, period_start=$5, period_end=$6,
  external_ref=$7, cancel_at_period_end=$8, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.UserID, string(s.Status), s.PlanID, int(s.DurationMonths),
		s.PeriodStart, s.PeriodEnd, s.ExternalRef, s.CancelAtPeriodEnd, s.CreatedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = subscriptionColumns + ` WHERE user_id=$1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindByExternalRef(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error) {
	const q = subscriptionColumns + ` WHERE external_ref=$1;`
	return r.queryOne(ctx, tx, q, ref)
}

func (r *subscriptionRepo) FindOverdue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	const q = subscriptionColumns + `
 WHERE status='active' AND period_end IS NOT NULL AND period_end <= $1
 ORDER BY period_end ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, now, limit)
}

func (r *subscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, within time.Duration) ([]*model.Subscription, error) {
	const q = subscriptionColumns + `
 WHERE status='active'
   AND period_end > NOW()
   AND period_end <= NOW() + ($1::bigint * INTERVAL '1 second')
 ORDER BY period_end ASC;`
	return r.queryMany(ctx, tx, q, int64(within.Seconds()))
}

func (r *subscriptionRepo) CountActiveByPlan(ctx context.Context, tx repository.Tx) (map[string]int, error) {
	const q = `
SELECT plan_id, COUNT(*)
  FROM subscriptions
 WHERE status='active'
 GROUP BY plan_id;`
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
	m := make(map[string]int)
	for rows.Next() {
		var planID string
		var c int
		if err := rows.Scan(&planID, &c); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		m[planID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return m, nil
}

const subscriptionColumns = `
SELECT user_id, status, plan_id, duration_months, period_start, period_end,
       COALESCE(external_ref,''), cancel_at_period_end, created_at, updated_at
  FROM subscriptions`

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
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
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status string
	var months int
	if err := row.Scan(&s.UserID, &status, &s.PlanID, &months, &s.PeriodStart, &s.PeriodEnd,
		&s.ExternalRef, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	s.DurationMonths = model.PlanDuration(months)
	return s, nil
}
