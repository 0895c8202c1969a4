//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/usecase"
)

type checkoutFixture struct {
	*reconcileFixture
	courses *MockCourseRepo
	gateway *MockCheckoutGateway
	uc      usecase.CheckoutUseCase
}

func newCheckoutFixture(minTotal int64) *checkoutFixture {
	rf := newReconcileFixture()
	courses := NewMockCourseRepo()
	gw := &MockCheckoutGateway{}
	return &checkoutFixture{
		reconcileFixture: rf,
		courses:          courses,
		gateway:          gw,
		uc: usecase.NewCheckoutUseCase(
			rf.orders, courses, rf.enrollments,
			map[string]adapter.CheckoutGateway{model.ProviderMercadoPago: gw},
			rf.uc, minTotal, time.Hour, newTestLogger(),
		),
	}
}

func (f *checkoutFixture) addCourse(t *testing.T, id string, price int64) {
	t.Helper()
	if err := f.courses.Save(context.Background(), nil, &model.Course{ID: id, Title: id, Price: price}); err != nil {
		t.Fatalf("save course: %v", err)
	}
}

func TestCheckout_CreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(500)
	f.addCourse(t, "course-a", 1000)
	f.addCourse(t, "course-b", 2000)

	o, url, err := f.uc.CreateOrder(ctx, "user-1", model.ProviderMercadoPago, []string{"course-a", "course-b", "course-a"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if url == "" {
		t.Error("expected a redirect URL")
	}
	if o.Total != 3000 {
		t.Errorf("total: got %d, want 3000 (duplicates collapsed)", o.Total)
	}
	if o.Status != model.OrderStatusPending {
		t.Errorf("status: got %s, want pending", o.Status)
	}
	if o.ExternalRef == "" {
		t.Error("expected gateway reference recorded")
	}
	if f.enrollments.Len() != 0 {
		t.Error("checkout creation must not grant anything")
	}
}

func TestCheckout_RejectsBelowMinimum(t *testing.T) {
	f := newCheckoutFixture(5000)
	f.addCourse(t, "course-a", 1000)

	_, _, err := f.uc.CreateOrder(context.Background(), "user-1", model.ProviderMercadoPago, []string{"course-a"})
	if !errors.Is(err, domain.ErrAmountTooSmall) {
		t.Errorf("expected ErrAmountTooSmall, got %v", err)
	}
}

func TestCheckout_UnknownProviderRejected(t *testing.T) {
	f := newCheckoutFixture(0)
	f.addCourse(t, "course-a", 1000)

	_, _, err := f.uc.CreateOrder(context.Background(), "user-1", "paypal", []string{"course-a"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCheckout_RejectsSecondPendingOrder(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(0)
	f.addCourse(t, "course-a", 1000)

	if _, _, err := f.uc.CreateOrder(ctx, "user-1", model.ProviderMercadoPago, []string{"course-a"}); err != nil {
		t.Fatalf("first order: %v", err)
	}
	_, _, err := f.uc.CreateOrder(ctx, "user-1", model.ProviderMercadoPago, []string{"course-a"})
	if !errors.Is(err, domain.ErrPendingOrderExists) {
		t.Errorf("expected ErrPendingOrderExists, got %v", err)
	}
}

func TestCheckout_SkipsOwnedCourses(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(0)
	f.addCourse(t, "course-a", 1000)
	f.addCourse(t, "course-b", 2000)
	_ = f.enrollments.Upsert(ctx, nil, "user-1", "course-a", nil)

	o, _, err := f.uc.CreateOrder(ctx, "user-1", model.ProviderMercadoPago, []string{"course-a", "course-b"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(o.Items) != 1 || o.Items[0].CourseID != "course-b" {
		t.Errorf("owned course must be skipped, items: %+v", o.Items)
	}
}

func TestCheckout_AllOwnedIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(0)
	f.addCourse(t, "course-a", 1000)
	_ = f.enrollments.Upsert(ctx, nil, "user-1", "course-a", nil)

	_, _, err := f.uc.CreateOrder(ctx, "user-1", model.ProviderMercadoPago, []string{"course-a"})
	if !errors.Is(err, domain.ErrAlreadyOwned) {
		t.Errorf("expected ErrAlreadyOwned, got %v", err)
	}
}

func TestCheckout_SubscriptionBoundCourseCanStillBePurchased(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(0)
	f.addCourse(t, "course-a", 1000)
	end := time.Now().AddDate(0, 1, 0)
	_ = f.enrollments.Upsert(ctx, nil, "user-1", "course-a", &end)

	o, _, err := f.uc.CreateOrder(ctx, "user-1", model.ProviderMercadoPago, []string{"course-a"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(o.Items) != 1 {
		t.Errorf("period-bound enrollment must not block purchase, items: %+v", o.Items)
	}
}

func TestCheckout_CancelOrder(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(0)
	f.addCourse(t, "course-a", 1000)

	o, _, err := f.uc.CreateOrder(ctx, "user-1", model.ProviderMercadoPago, []string{"course-a"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := f.uc.CancelOrder(ctx, "user-2", o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign cancel must look like not found, got %v", err)
	}
	if err := f.uc.CancelOrder(ctx, "user-1", o.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	got, _ := f.orders.FindByID(ctx, nil, o.ID)
	if got.Status != model.OrderStatusFailed {
		t.Errorf("status after cancel: got %s, want failed", got.Status)
	}

	if err := f.uc.CancelOrder(ctx, "user-1", o.ID); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("cancel of non-pending order must fail, got %v", err)
	}
}
