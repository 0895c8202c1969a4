package repository

import (
	"context"

	"course-platform/internal/domain/model"
)

// CourseRepository reads the course catalog. Authoring lives elsewhere; this
// service only needs prices for checkout and lessons for the free-preview
// access check.
type CourseRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Course) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Course, error)
	ListByIDs(ctx context.Context, tx Tx, ids []string) ([]*model.Course, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Course, error)
	FindLesson(ctx context.Context, tx Tx, lessonID string) (*model.Lesson, error)
}
