package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/repository"
)

// Ensure courseRepo implements repository.CourseRepository
var _ repository.CourseRepository = (*courseRepo)(nil)

type courseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *courseRepo {
	return &courseRepo{pool: pool}
}

func (r *courseRepo) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	const q = `
INSERT INTO courses (id, title, price, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, price=EXCLUDED.price;`
	if _, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Title, c.Price, c.CreatedAt); err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *courseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Course, error) {
	const q = `SELECT id, title, price, created_at FROM courses WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanCourse(row)
}

func (r *courseRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Course, error) {
	const q = `SELECT id, title, price, created_at FROM courses WHERE id = ANY($1);`
	return r.queryMany(ctx, tx, q, ids)
}

func (r *courseRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	const q = `SELECT id, title, price, created_at FROM courses ORDER BY created_at ASC;`
	return r.queryMany(ctx, tx, q)
}

func (r *courseRepo) FindLesson(ctx context.Context, tx repository.Tx, lessonID string) (*model.Lesson, error) {
	const q = `SELECT id, course_id, title, free_preview FROM lessons WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, lessonID)
	if err != nil {
		return nil, err
	}
	l := &model.Lesson{}
	if err := row.Scan(&l.ID, &l.CourseID, &l.Title, &l.FreePreview); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return l, nil
}

func (r *courseRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Course, error) {
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
	var out []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanCourse(row pgx.Row) (*model.Course, error) {
	c := &model.Course{}
	if err := row.Scan(&c.ID, &c.Title, &c.Price, &c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return c, nil
}
