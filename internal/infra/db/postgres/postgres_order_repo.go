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

// Ensure orderRepo implements repository.OrderRepository
var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (id, user_id, total, status, provider, external_ref, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  total=$3, status=$4, provider=$5, external_ref=$6, expires_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.UserID, o.Total, string(o.Status), o.Provider, o.ExternalRef, o.CreatedAt, o.ExpiresAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return domain.ErrOperationFailed
		}
	}

	const qi = `
INSERT INTO order_items (order_id, course_id, price)
VALUES ($1,$2,$3)
ON CONFLICT (order_id, course_id) DO NOTHING;`
	for _, it := range o.Items {
		if _, err := execSQL(ctx, r.pool, tx, qi, o.ID, it.CourseID, it.Price); err != nil {
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	const q = `
SELECT id, user_id, total, status, provider, COALESCE(external_ref,''), created_at, expires_at
  FROM orders
 WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *orderRepo) FindPendingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Order, error) {
	const q = `
SELECT id, user_id, total, status, provider, COALESCE(external_ref,''), created_at, expires_at
  FROM orders
 WHERE user_id=$1 AND status='pending' AND expires_at > NOW()
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) error {
	const q = `UPDATE orders SET status=$2 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) SetExternalRef(ctx context.Context, tx repository.Tx, id, externalRef string) error {
	const q = `UPDATE orders SET external_ref=$2 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, externalRef)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepo) HasCompletedForCourse(ctx context.Context, tx repository.Tx, userID, courseID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1
    FROM orders o
    JOIN order_items oi ON oi.order_id = o.id
   WHERE o.user_id=$1 AND oi.course_id=$2 AND o.status='completed'
);`
	row, err := pickRow(ctx, r.pool, tx, q, userID, courseID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Order, error) {
	const q = `
SELECT id, user_id, total, status, provider, COALESCE(external_ref,''), created_at, expires_at
  FROM orders
 WHERE user_id=$1
 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	for _, o := range out {
		if err := r.loadItems(ctx, tx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *orderRepo) SumCompletedSince(ctx context.Context, tx repository.Tx, since time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(total),0) FROM orders WHERE status='completed' AND created_at >= $1;`
	row, err := pickRow(ctx, r.pool, tx, q, since)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *orderRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Order, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) loadItems(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `SELECT order_id, course_id, price FROM order_items WHERE order_id=$1;`
	rows, err := queryRows(ctx, r.pool, tx, q, o.ID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	defer rows.Close()
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.OrderID, &it.CourseID, &it.Price); err != nil {
			return domain.ErrReadDatabaseRow
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return domain.ErrReadDatabaseRow
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	var status string
	if err := row.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.Provider, &o.ExternalRef, &o.CreatedAt, &o.ExpiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	o.Status = model.OrderStatus(status)
	return o, nil
}
