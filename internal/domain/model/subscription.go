package model

import (
	"time"

	"course-platform/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPaused   SubscriptionStatus = "paused"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// subscriptionTransitions is the explicit transition table for the single
// per-user subscription row. canceled/expired are terminal except that a new
// checkout cycle reuses the row back through pending/active.
var subscriptionTransitions = map[SubscriptionStatus]map[SubscriptionStatus]bool{
	SubscriptionStatusPending: {
		SubscriptionStatusActive:   true,
		SubscriptionStatusPaused:   true,
		SubscriptionStatusCanceled: true,
		SubscriptionStatusExpired:  true,
	},
	SubscriptionStatusActive: {
		SubscriptionStatusPaused:   true,
		SubscriptionStatusCanceled: true,
		SubscriptionStatusExpired:  true,
	},
	SubscriptionStatusPaused: {
		SubscriptionStatusActive:   true,
		SubscriptionStatusCanceled: true,
		SubscriptionStatusExpired:  true,
	},
	SubscriptionStatusCanceled: {
		SubscriptionStatusPending: true,
		SubscriptionStatusActive:  true,
	},
	SubscriptionStatusExpired: {
		SubscriptionStatusPending: true,
		SubscriptionStatusActive:  true,
	},
}

// CanTransitionTo reports whether moving from s to next is a legal subscription transition.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	return subscriptionTransitions[s][next]
}

// Subscription is a user's recurring-plan membership. At most one row per
// user (unique on UserID); the row is reused across cycles, never deleted.
type Subscription struct {
	UserID            string // UUID, unique
	Status            SubscriptionStatus
	PlanID            string
	DurationMonths    PlanDuration
	PeriodStart       *time.Time // nil until first activation
	PeriodEnd         *time.Time
	ExternalRef       string // gateway preapproval id
	CancelAtPeriodEnd bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewSubscription constructs a pending subscription for a checkout cycle.
func NewSubscription(userID, planID string, duration PlanDuration) (*Subscription, error) {
	if userID == "" || planID == "" || !duration.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		UserID:         userID,
		Status:         SubscriptionStatusPending,
		PlanID:         planID,
		DurationMonths: duration,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CurrentlyGrants reports whether the subscription grants access at the given
// instant. A row that still reads "active" past its period end does not grant;
// callers detecting that staleness must run the lapse reconciliation.
func (s *Subscription) CurrentlyGrants(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.PeriodEnd != nil && s.PeriodEnd.After(now)
}

// StalePastPeriodEnd reports an active row whose period has already lapsed.
func (s *Subscription) StalePastPeriodEnd(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.PeriodEnd != nil && !s.PeriodEnd.After(now)
}
