package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Totals(ctx context.Context) (activeByPlan map[string]int, activeEnrollments int, err error)
	Revenue(ctx context.Context) (week int64, month int64, year int64, err error)
}

type statsUC struct {
	subs        repository.SubscriptionRepository
	enrollments repository.EnrollmentRepository
	orders      repository.OrderRepository

	log *zerolog.Logger
}

func NewStatsUseCase(subs repository.SubscriptionRepository, enrollments repository.EnrollmentRepository, orders repository.OrderRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{subs: subs, enrollments: enrollments, orders: orders, log: logger}
}

func (s *statsUC) Totals(ctx context.Context) (map[string]int, int, error) {
	active, err := s.subs.CountActiveByPlan(ctx, repository.NoTX)
	if err != nil {
		return nil, 0, err
	}
	enrolled, err := s.enrollments.CountGranting(ctx, repository.NoTX, time.Now())
	if err != nil {
		return nil, 0, err
	}
	return active, enrolled, nil
}

func (s *statsUC) Revenue(ctx context.Context) (int64, int64, int64, error) {
	now := time.Now()
	w, err := s.orders.SumCompletedSince(ctx, repository.NoTX, now.AddDate(0, 0, -7))
	if err != nil {
		return 0, 0, 0, err
	}
	m, err := s.orders.SumCompletedSince(ctx, repository.NoTX, now.AddDate(0, -1, 0))
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := s.orders.SumCompletedSince(ctx, repository.NoTX, now.AddDate(-1, 0, 0))
	if err != nil {
		return 0, 0, 0, err
	}
	return w, m, y, nil
}
