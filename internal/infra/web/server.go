package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-platform/internal/domain/ports/adapter"
	"course-platform/internal/infra/logging"
	"course-platform/internal/usecase"
)

// Server wires the HTTP surface: gateway webhooks, the user-facing store
// API and the admin API. End-user identity arrives as an X-User-ID header
// set by the edge proxy; admin calls carry a JWT.
type Server struct {
	checkoutUC usecase.CheckoutUseCase
	subUC      usecase.SubscriptionUseCase
	entUC      usecase.EntitlementUseCase
	planUC     usecase.PlanUseCase
	statsUC    usecase.StatsUseCase
	reconciler usecase.ReconcileUseCase

	mercadopago  adapter.CheckoutGateway
	preapprovals adapter.RecurringGateway
	stripeSecret string

	auth *AuthManager
	log  *zerolog.Logger
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	subUC usecase.SubscriptionUseCase,
	entUC usecase.EntitlementUseCase,
	planUC usecase.PlanUseCase,
	statsUC usecase.StatsUseCase,
	reconciler usecase.ReconcileUseCase,
	mercadopago adapter.CheckoutGateway,
	preapprovals adapter.RecurringGateway,
	stripeSecret string,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		checkoutUC:   checkoutUC,
		subUC:        subUC,
		entUC:        entUC,
		planUC:       planUC,
		statsUC:      statsUC,
		reconciler:   reconciler,
		mercadopago:  mercadopago,
		preapprovals: preapprovals,
		stripeSecret: stripeSecret,
		auth:         auth,
		log:          &l,
	}
}

// Router builds the chi mux with all routes attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(s.log))
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))
	r.Use(Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhooks/mercadopago", s.handleMercadoPagoWebhook)
	r.Post("/webhooks/stripe", s.handleStripeWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Post("/orders", s.handleCreateOrder)
			r.Get("/orders", s.handleListOrders)
			r.Get("/orders/{orderID}", s.handleGetOrder)
			r.Delete("/orders/{orderID}", s.handleCancelOrder)

			r.Post("/subscription", s.handleSubscribe)
			r.Get("/subscription", s.handleGetSubscription)
			r.Delete("/subscription", s.handleCancelSubscription)

			r.Get("/access/courses", s.handleListAccessibleCourses)
			r.Get("/access/courses/{courseID}", s.handleCourseAccess)
			r.Get("/access/lessons/{lessonID}", s.handleLessonAccess)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.RequireAdmin)

			r.Get("/stats", s.handleStats)

			r.Get("/plans", s.handleListPlans)
			r.Post("/plans", s.handleCreatePlan)
			r.Get("/plans/{planID}", s.handleGetPlan)
			r.Put("/plans/{planID}", s.handleUpdatePlan)
			r.Delete("/plans/{planID}", s.handleDeletePlan)

			r.Post("/orders/{orderID}/status", s.handleSetOrderStatus)
			r.Post("/subscriptions/{userID}/status", s.handleSetSubscriptionStatus)
		})
	})

	return r
}

// requireUser trusts the identity header stamped by the edge proxy.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User-ID")
		if uid == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := logging.WithUserID(contextWithUserID(r.Context(), uid), uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
