package adapter

import (
	"context"
	"time"

	"course-platform/internal/domain/model"
)

// PaymentDetail is the authoritative payment resource fetched from the
// provider after a webhook names its id.
type PaymentDetail struct {
	ExternalID        string
	Status            string // provider-native: approved, rejected, cancelled, pending, in_process
	ExternalReference string // our order id
	Amount            int64
}

// PreapprovalDetail is the authoritative recurring-subscription resource.
type PreapprovalDetail struct {
	ExternalID        string
	Status            string // provider-native: authorized, paused, cancelled, pending
	ExternalReference string
	NextPaymentAt     *time.Time
}

// CheckoutGateway creates one-time checkouts and resolves payment webhooks.
type CheckoutGateway interface {
	Name() string
	// CreateCheckout registers the order with the provider and returns the
	// gateway reference plus the redirect URL for the buyer.
	CreateCheckout(ctx context.Context, o *model.Order) (externalRef, redirectURL string, err error)
	FetchPayment(ctx context.Context, externalID string) (*PaymentDetail, error)
}

// RecurringGateway creates preapprovals and resolves subscription webhooks.
type RecurringGateway interface {
	Name() string
	CreatePreapproval(ctx context.Context, userID string, plan *model.SubscriptionPlan, d model.PlanDuration) (externalRef, redirectURL string, err error)
	FetchPreapproval(ctx context.Context, externalID string) (*PreapprovalDetail, error)
	CancelPreapproval(ctx context.Context, externalRef string) error
}
