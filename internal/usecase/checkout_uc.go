package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/domain/ports/repository"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutUseCase creates and cancels one-time purchase orders. All
// validation that keeps invalid states out of the reconciliation engine
// happens synchronously here, before any webhook is involved.
type CheckoutUseCase interface {
	// CreateOrder validates the cart, persists a pending order and registers
	// it with the chosen gateway. Returns the order and the buyer redirect URL.
	CreateOrder(ctx context.Context, userID, provider string, courseIDs []string) (*model.Order, string, error)
	// CancelOrder moves a user's own pending order to failed.
	CancelOrder(ctx context.Context, userID, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]*model.Order, error)
}

type checkoutUC struct {
	orders      repository.OrderRepository
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	gateways    map[string]adapter.CheckoutGateway
	reconciler  ReconcileUseCase
	minTotal    int64
	orderTTL    time.Duration
	log         *zerolog.Logger
}

func NewCheckoutUseCase(
	orders repository.OrderRepository,
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	gateways map[string]adapter.CheckoutGateway,
	reconciler ReconcileUseCase,
	minTotal int64,
	orderTTL time.Duration,
	logger *zerolog.Logger,
) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{
		orders:      orders,
		courses:     courses,
		enrollments: enrollments,
		gateways:    gateways,
		reconciler:  reconciler,
		minTotal:    minTotal,
		orderTTL:    orderTTL,
		log:         &l,
	}
}

func (uc *checkoutUC) CreateOrder(ctx context.Context, userID, provider string, courseIDs []string) (*model.Order, string, error) {
	if userID == "" || len(courseIDs) == 0 {
		return nil, "", domain.ErrInvalidArgument
	}
	if provider == "" {
		provider = model.ProviderMercadoPago
	}
	gateway, ok := uc.gateways[provider]
	if !ok {
		return nil, "", domain.ErrInvalidArgument
	}

	if pending, err := uc.orders.FindPendingByUser(ctx, repository.NoTX, userID); err == nil && pending != nil {
		return nil, "", domain.ErrPendingOrderExists
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, "", err
	}

	// Skip courses the user already owns outright; buying a course twice is
	// never valid, but a subscription-granted course may still be purchased.
	var items []model.OrderItem
	seen := map[string]bool{}
	for _, courseID := range courseIDs {
		if seen[courseID] {
			continue
		}
		seen[courseID] = true

		e, err := uc.enrollments.Find(ctx, repository.NoTX, userID, courseID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, "", err
		}
		if e != nil && e.Permanent() {
			continue
		}

		c, err := uc.courses.FindByID(ctx, repository.NoTX, courseID)
		if err != nil {
			return nil, "", err
		}
		items = append(items, model.OrderItem{CourseID: c.ID, Price: c.Price})
	}
	if len(items) == 0 {
		return nil, "", domain.ErrAlreadyOwned
	}

	o, err := model.NewOrder(ulid.Make().String(), userID, items, uc.orderTTL)
	if err != nil {
		return nil, "", err
	}
	o.Provider = provider
	if o.Total < uc.minTotal {
		return nil, "", domain.ErrAmountTooSmall
	}
	if err := uc.orders.Save(ctx, repository.NoTX, o); err != nil {
		return nil, "", err
	}

	ref, redirectURL, err := gateway.CreateCheckout(ctx, o)
	if err != nil {
		return nil, "", err
	}
	if err := uc.orders.SetExternalRef(ctx, repository.NoTX, o.ID, ref); err != nil {
		return nil, "", err
	}
	o.ExternalRef = ref

	uc.log.Info().Str("order_id", o.ID).Str("user_id", userID).Str("provider", provider).
		Int64("total", o.Total).Int("courses", len(items)).Msg("checkout created")
	return o, redirectURL, nil
}

func (uc *checkoutUC) CancelOrder(ctx context.Context, userID, orderID string) error {
	o, err := uc.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return domain.ErrNotFound
	}
	if o.Status != model.OrderStatusPending {
		return domain.ErrIllegalTransition
	}
	return uc.reconciler.SetOrderStatus(ctx, orderID, model.OrderStatusFailed)
}

func (uc *checkoutUC) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return uc.orders.FindByID(ctx, repository.NoTX, orderID)
}

func (uc *checkoutUC) ListOrders(ctx context.Context, userID string) ([]*model.Order, error) {
	return uc.orders.ListByUser(ctx, repository.NoTX, userID)
}
