package repository

import (
	"context"
	"time"

	"course-platform/internal/domain/model"
)

// OrderRepository persists the order ledger. Save writes the order together
// with its items; items are immutable after creation.
type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	FindPendingByUser(ctx context.Context, tx Tx, userID string) (*model.Order, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.OrderStatus) error
	SetExternalRef(ctx context.Context, tx Tx, id, externalRef string) error
	// HasCompletedForCourse reports whether any completed order of the user
	// covers the course. This is the purchase-provenance check and must run
	// inside the same transaction as the enrollment decision it backs.
	HasCompletedForCourse(ctx context.Context, tx Tx, userID, courseID string) (bool, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Order, error)
	SumCompletedSince(ctx context.Context, tx Tx, since time.Time) (int64, error)
}
