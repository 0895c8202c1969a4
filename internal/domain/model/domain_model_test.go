package model

import (
	"testing"
	"time"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusCompleted, OrderStatusFailed, true},
		{OrderStatusCompleted, OrderStatusPending, false},
		{OrderStatusCompleted, OrderStatusCompleted, false},
		{OrderStatusFailed, OrderStatusPending, false},
		{OrderStatusFailed, OrderStatusCompleted, false},
		{OrderStatusFailed, OrderStatusFailed, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestSubscriptionStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SubscriptionStatus
		want     bool
	}{
		{SubscriptionStatusPending, SubscriptionStatusActive, true},
		{SubscriptionStatusActive, SubscriptionStatusCanceled, true},
		{SubscriptionStatusActive, SubscriptionStatusExpired, true},
		{SubscriptionStatusActive, SubscriptionStatusPaused, true},
		{SubscriptionStatusPaused, SubscriptionStatusCanceled, true},
		{SubscriptionStatusPaused, SubscriptionStatusActive, true},
		// terminal states reopen only via a new checkout cycle
		{SubscriptionStatusCanceled, SubscriptionStatusPending, true},
		{SubscriptionStatusExpired, SubscriptionStatusActive, true},
		{SubscriptionStatusCanceled, SubscriptionStatusPaused, false},
		{SubscriptionStatusExpired, SubscriptionStatusPaused, false},
		{SubscriptionStatusActive, SubscriptionStatusPending, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestNewOrderComputesTotal(t *testing.T) {
	items := []OrderItem{
		{CourseID: "course-a", Price: 1500},
		{CourseID: "course-b", Price: 2500},
	}
	o, err := NewOrder("order-1", "user-1", items, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Total != 4000 {
		t.Errorf("total: got %d, want 4000", o.Total)
	}
	if o.Status != OrderStatusPending {
		t.Errorf("status: got %s, want pending", o.Status)
	}
	for _, it := range o.Items {
		if it.OrderID != "order-1" {
			t.Errorf("item order id not backfilled: %+v", it)
		}
	}
}

func TestNewOrderRejectsEmpty(t *testing.T) {
	if _, err := NewOrder("order-1", "user-1", nil, time.Hour); err == nil {
		t.Error("expected error for empty items")
	}
	if _, err := NewOrder("", "user-1", []OrderItem{{CourseID: "c", Price: 1}}, time.Hour); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestSubscriptionCurrentlyGrants(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(30 * 24 * time.Hour)

	s := &Subscription{Status: SubscriptionStatusActive, PeriodEnd: &future}
	if !s.CurrentlyGrants(now) {
		t.Error("active subscription with future period end should grant")
	}

	s = &Subscription{Status: SubscriptionStatusActive, PeriodEnd: &past}
	if s.CurrentlyGrants(now) {
		t.Error("active subscription past period end must not grant")
	}
	if !s.StalePastPeriodEnd(now) {
		t.Error("expected stale detection for lapsed active subscription")
	}

	s = &Subscription{Status: SubscriptionStatusCanceled, PeriodEnd: &future}
	if s.CurrentlyGrants(now) {
		t.Error("canceled subscription must not grant")
	}
}

func TestEnrollmentGrants(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	if e := (&Enrollment{ExpiresAt: nil}); !e.Grants(now) || !e.Permanent() {
		t.Error("nil expiry must grant permanently")
	}
	if e := (&Enrollment{ExpiresAt: &future}); !e.Grants(now) {
		t.Error("future expiry must grant")
	}
	if e := (&Enrollment{ExpiresAt: &past}); e.Grants(now) {
		t.Error("past expiry must not grant")
	}
}

func TestOrderStatusFromProvider(t *testing.T) {
	cases := map[string]OrderStatus{
		"approved":     OrderStatusCompleted,
		"rejected":     OrderStatusFailed,
		"cancelled":    OrderStatusFailed,
		"charged_back": OrderStatusFailed,
		"pending":      OrderStatusPending,
		"in_process":   OrderStatusPending,
		"garbage":      OrderStatusPending,
	}
	for raw, want := range cases {
		if got := OrderStatusFromProvider(raw); got != want {
			t.Errorf("%q: got %s, want %s", raw, got, want)
		}
	}
}

func TestOrderStatusFromCheckoutSession(t *testing.T) {
	cases := []struct {
		eventType, payStatus string
		want                 OrderStatus
	}{
		{"checkout.session.completed", "paid", OrderStatusCompleted},
		{"checkout.session.completed", "unpaid", OrderStatusPending},
		{"checkout.session.async_payment_succeeded", "", OrderStatusCompleted},
		{"checkout.session.async_payment_failed", "", OrderStatusFailed},
		{"invoice.paid", "", OrderStatusPending},
	}
	for _, c := range cases {
		if got := OrderStatusFromCheckoutSession(c.eventType, c.payStatus); got != c.want {
			t.Errorf("%s/%s: got %s, want %s", c.eventType, c.payStatus, got, c.want)
		}
	}
}

func TestSubscriptionStatusFromProvider(t *testing.T) {
	cases := map[string]SubscriptionStatus{
		"authorized": SubscriptionStatusActive,
		"paused":     SubscriptionStatusPaused,
		"cancelled":  SubscriptionStatusCanceled,
		"expired":    SubscriptionStatusExpired,
		"pending":    SubscriptionStatusPending,
		"whatever":   SubscriptionStatusPending,
	}
	for raw, want := range cases {
		if got := SubscriptionStatusFromProvider(raw); got != want {
			t.Errorf("%q: got %s, want %s", raw, got, want)
		}
	}
}

func TestPlanPriceForAndCovers(t *testing.T) {
	plan, err := NewSubscriptionPlan("plan-1", "All Access", map[PlanDuration]PlanPrice{
		Duration1Month:   {Price: 999, ExternalPlanID: "ext-1m"},
		Duration12Months: {Price: 7999, ExternalPlanID: "ext-12m"},
	}, []string{"course-a", "course-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pp, ok := plan.PriceFor(Duration1Month); !ok || pp.Price != 999 {
		t.Errorf("PriceFor(1): got %+v ok=%v", pp, ok)
	}
	if _, ok := plan.PriceFor(Duration6Months); ok {
		t.Error("plan does not offer 6 months")
	}
	if !plan.Covers("course-a") || plan.Covers("course-z") {
		t.Error("Covers mismatch")
	}
}

func TestNewSubscriptionPlanValidation(t *testing.T) {
	if _, err := NewSubscriptionPlan("p", "n", map[PlanDuration]PlanPrice{PlanDuration(3): {Price: 1}}, nil); err == nil {
		t.Error("expected error for invalid duration")
	}
	if _, err := NewSubscriptionPlan("p", "n", map[PlanDuration]PlanPrice{Duration1Month: {Price: 0}}, nil); err == nil {
		t.Error("expected error for zero price")
	}
}
