package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"course-platform/internal/domain"
	"course-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// EntitlementUseCase is the read path content pages trust completely. It
// never consults the gateways; it reads reconciled enrollment state, with one
// correction: an active subscription row whose period already lapsed triggers
// the same revocation-or-demotion logic before the answer is served.
type EntitlementUseCase interface {
	HasAccess(ctx context.Context, userID, courseID string) (bool, error)
	ListAccessibleCourses(ctx context.Context, userID string) ([]string, error)
	// CanWatchLesson additionally honors free-preview lessons, which need no
	// enrollment at all.
	CanWatchLesson(ctx context.Context, userID, lessonID string) (bool, error)
}

type entitlementUC struct {
	enrollments repository.EnrollmentRepository
	courses     repository.CourseRepository
	reconciler  ReconcileUseCase
	log         *zerolog.Logger
}

func NewEntitlementUseCase(
	enrollments repository.EnrollmentRepository,
	courses repository.CourseRepository,
	reconciler ReconcileUseCase,
	logger *zerolog.Logger,
) *entitlementUC {
	l := logger.With().Str("component", "EntitlementUC").Logger()
	return &entitlementUC{enrollments: enrollments, courses: courses, reconciler: reconciler, log: &l}
}

func (uc *entitlementUC) HasAccess(ctx context.Context, userID, courseID string) (bool, error) {
	if err := uc.lazyExpire(ctx, userID); err != nil {
		return false, err
	}
	e, err := uc.enrollments.Find(ctx, repository.NoTX, userID, courseID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Grants(time.Now()), nil
}

func (uc *entitlementUC) ListAccessibleCourses(ctx context.Context, userID string) ([]string, error) {
	if err := uc.lazyExpire(ctx, userID); err != nil {
		return nil, err
	}
	es, err := uc.enrollments.ListGranting(ctx, repository.NoTX, userID, time.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.CourseID)
	}
	return out, nil
}

func (uc *entitlementUC) CanWatchLesson(ctx context.Context, userID, lessonID string) (bool, error) {
	lesson, err := uc.courses.FindLesson(ctx, repository.NoTX, lessonID)
	if err != nil {
		return false, err
	}
	if lesson.FreePreview {
		return true, nil
	}
	return uc.HasAccess(ctx, userID, lesson.CourseID)
}

// lazyExpire catches a lapsed subscription before any webhook formally
// expires it, so the read path cannot serve access that should have lapsed.
func (uc *entitlementUC) lazyExpire(ctx context.Context, userID string) error {
	expired, err := uc.reconciler.ExpireIfLapsed(ctx, userID)
	if err != nil {
		return err
	}
	if expired {
		uc.log.Info().Str("user_id", userID).Msg("lapsed subscription expired on read")
	}
	return nil
}
