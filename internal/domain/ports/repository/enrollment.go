package repository

import (
	"context"
	"time"

	"course-platform/internal/domain/model"
)

// EnrollmentRepository persists access grants. Upsert must be a single atomic
// statement keyed on (user_id, course_id) so two concurrent grants for the
// same pair cannot create duplicate rows, and Delete of an absent row is a
// no-op rather than an error.
type EnrollmentRepository interface {
	Upsert(ctx context.Context, tx Tx, userID, courseID string, expiresAt *time.Time) error
	Find(ctx context.Context, tx Tx, userID, courseID string) (*model.Enrollment, error)
	Delete(ctx context.Context, tx Tx, userID, courseID string) error
	// ListGranting returns the user's enrollments whose expiry is null or in
	// the future at the given instant.
	ListGranting(ctx context.Context, tx Tx, userID string, now time.Time) ([]*model.Enrollment, error)
	CountGranting(ctx context.Context, tx Tx, now time.Time) (int, error)
}
