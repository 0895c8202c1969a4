package repository

import (
	"context"

	"course-platform/internal/domain/model"
)

// WebhookEventRepository records delivered gateway notifications for
// replay suppression. Insert returns domain.ErrDuplicateEvent when the
// (provider, external id, raw status) triple has already been recorded.
type WebhookEventRepository interface {
	Insert(ctx context.Context, tx Tx, ev *model.WebhookEvent) error
}
