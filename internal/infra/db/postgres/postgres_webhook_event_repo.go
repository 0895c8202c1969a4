package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/repository"
)

// Ensure webhookEventRepo implements repository.WebhookEventRepository
var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

// webhookEventRepo records delivered notifications. The unique index on
// (provider, external_id, raw_status) is the replay-suppression mechanism;
// a duplicate insert surfaces as domain.ErrDuplicateEvent and the caller
// skips the event inside the same transaction.
type webhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

func (r *webhookEventRepo) Insert(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (provider, external_id, raw_status, event_type, received_at)
VALUES ($1,$2,$3,$4,NOW());`
	if _, err := execSQL(ctx, r.pool, tx, q, ev.Provider, ev.ExternalID, ev.RawStatus, ev.EventType); err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			if isUniqueViolation(err) {
				return domain.ErrDuplicateEvent
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}
