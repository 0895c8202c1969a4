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

// Ensure enrollmentRepo implements repository.EnrollmentRepository
var _ repository.EnrollmentRepository = (*enrollmentRepo)(nil)

type enrollmentRepo struct {
	pool *pgxpool.Pool
}

func NewEnrollmentRepo(pool *pgxpool.Pool) *enrollmentRepo {
	return &enrollmentRepo{pool: pool}
}

// Upsert is a single atomic statement keyed on (user_id, course_id); two
// concurrent grants for the same pair converge on one row.
func (r *enrollmentRepo) Upsert(ctx context.Context, tx repository.Tx, userID, courseID string, expiresAt *time.Time) error {
	const q = `
INSERT INTO enrollments (user_id, course_id, expires_at, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW())
ON CONFLICT (user_id, course_id) DO UPDATE SET
  expires_at=EXCLUDED.expires_at, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q, userID, courseID, expiresAt)
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

func (r *enrollmentRepo) Find(ctx context.Context, tx repository.Tx, userID, courseID string) (*model.Enrollment, error) {
	const q = `
SELECT user_id, course_id, expires_at, created_at, updated_at
  FROM enrollments
 WHERE user_id=$1 AND course_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	e := &model.Enrollment{}
	if err := row.Scan(&e.UserID, &e.CourseID, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}

// Delete of an absent row is a no-op.
func (r *enrollmentRepo) Delete(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	const q = `DELETE FROM enrollments WHERE user_id=$1 AND course_id=$2;`
	if _, err := execSQL(ctx, r.pool, tx, q, userID, courseID); err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *enrollmentRepo) ListGranting(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Enrollment, error) {
	const q = `
SELECT user_id, course_id, expires_at, created_at, updated_at
  FROM enrollments
 WHERE user_id=$1 AND (expires_at IS NULL OR expires_at > $2)
 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, now)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Enrollment
	for rows.Next() {
		e := &model.Enrollment{}
		if err := rows.Scan(&e.UserID, &e.CourseID, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *enrollmentRepo) CountGranting(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM enrollments WHERE expires_at IS NULL OR expires_at > $1;`
	row, err := pickRow(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
