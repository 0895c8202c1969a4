package model

import "time"

const (
	ProviderMercadoPago = "mercadopago"
	ProviderStripe      = "stripe"
)

type EventKind string

const (
	EventKindPayment      EventKind = "payment"
	EventKindSubscription EventKind = "subscription"
)

// PaymentEvent is the normalized form of a gateway notification. Adapters
// resolve the webhook's bare id against the provider's API and fill in the
// authoritative status; handlers never trust fields carried on the webhook
// body itself.
type PaymentEvent struct {
	Provider    string
	ExternalRef string // our Order id or Subscription external reference
	Kind        EventKind
	RawStatus   string // provider-native status string
	ExternalID  string // provider-native resource id
	PeriodEnd   *time.Time // next period end for subscription renewals, if known
}

// WebhookEvent is the persisted dedup record for a delivered notification.
// The (provider, external id, raw status) triple is unique; replays of the
// same triple are no-ops.
type WebhookEvent struct {
	ID         int64
	Provider   string
	ExternalID string
	RawStatus  string
	EventType  string
	ReceivedAt time.Time
}

// OrderStatusFromProvider maps a one-time-payment provider status onto the
// order ledger. Unknown statuses map to pending so an unexpected value never
// triggers a grant or a revoke.
func OrderStatusFromProvider(raw string) OrderStatus {
	switch raw {
	case "approved":
		return OrderStatusCompleted
	case "rejected", "cancelled", "refunded", "charged_back":
		return OrderStatusFailed
	default: // "pending", "in_process", ...
		return OrderStatusPending
	}
}

// OrderStatusFromCheckoutSession maps a card-checkout-session event type and
// payment status onto the order ledger.
func OrderStatusFromCheckoutSession(eventType, paymentStatus string) OrderStatus {
	switch eventType {
	case "checkout.session.completed":
		if paymentStatus == "paid" {
			return OrderStatusCompleted
		}
		return OrderStatusPending // async payment still settling
	case "checkout.session.async_payment_succeeded":
		return OrderStatusCompleted
	case "checkout.session.async_payment_failed":
		return OrderStatusFailed
	default:
		return OrderStatusPending
	}
}

// SubscriptionStatusFromProvider maps a preapproval status onto the
// subscription lifecycle.
func SubscriptionStatusFromProvider(raw string) SubscriptionStatus {
	switch raw {
	case "authorized":
		return SubscriptionStatusActive
	case "paused":
		return SubscriptionStatusPaused
	case "cancelled":
		return SubscriptionStatusCanceled
	case "expired":
		return SubscriptionStatusExpired
	default: // "pending", ...
		return SubscriptionStatusPending
	}
}
