package model

import (
	"time"

	"course-platform/internal/domain"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// orderTransitions is the explicit transition table for the order ledger.
// completed -> failed covers refunds and chargebacks; failed is terminal.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending: {
		OrderStatusCompleted: true,
		OrderStatusFailed:    true,
	},
	OrderStatusCompleted: {
		OrderStatusFailed: true,
	},
}

// CanTransitionTo reports whether moving from s to next is a legal order transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return orderTransitions[s][next]
}

// Order is one checkout attempt for a set of courses.
type Order struct {
	ID          string // ULID, sortable ledger id
	UserID      string // UUID
	Total       int64  // minor currency units
	Status      OrderStatus
	Provider    string // gateway that took (or will take) the payment
	ExternalRef string // gateway-assigned reference (preference / session id)
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Items       []OrderItem
}

// OrderItem pins the course price at time of purchase.
type OrderItem struct {
	OrderID  string
	CourseID string
	Price    int64
}

// NewOrder validates and constructs a pending order.
func NewOrder(id, userID string, items []OrderItem, ttl time.Duration) (*Order, error) {
	if id == "" || userID == "" || len(items) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	var total int64
	for i := range items {
		if items[i].CourseID == "" || items[i].Price < 0 {
			return nil, domain.ErrInvalidArgument
		}
		items[i].OrderID = id
		total += items[i].Price
	}
	now := time.Now()
	return &Order{
		ID:        id,
		UserID:    userID,
		Total:     total,
		Status:    OrderStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Items:     items,
	}, nil
}

// CourseIDs returns the course ids covered by this order's items.
func (o *Order) CourseIDs() []string {
	out := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, it.CourseID)
	}
	return out
}
