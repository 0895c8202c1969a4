package adapter

import (
	"context"
	"time"
)

// Notifier delivers transactional messages (email + in-app). Delivery is
// fire-and-forget: a failed send is logged and never rolls back the
// entitlement change that triggered it.
type Notifier interface {
	PurchaseCompleted(ctx context.Context, userID, orderID string, courseIDs []string) error
	SubscriptionActivated(ctx context.Context, userID, planID string, periodEnd time.Time) error
	SubscriptionExpiring(ctx context.Context, userID string, periodEnd time.Time) error
}
