package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"course-platform/internal/domain"
	"course-platform/internal/domain/model"
	"course-platform/internal/infra/metrics"
	"course-platform/internal/infra/payment"
)

type ctxUserKey struct{}

func contextWithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, uid)
}

func userIDFrom(ctx context.Context) string {
	uid, _ := ctx.Value(ctxUserKey{}).(string)
	return uid
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrAmountTooSmall),
		errors.Is(err, domain.ErrIllegalTransition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrPendingOrderExists),
		errors.Is(err, domain.ErrAlreadyOwned),
		errors.Is(err, domain.ErrActiveSubscription),
		errors.Is(err, domain.ErrAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNoActiveSubscription):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// ===== gateway webhooks =====

type mercadoPagoWebhook struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// handleMercadoPagoWebhook resolves the notified resource against the
// provider API and feeds the authoritative status into reconciliation.
// Lookup failures and unknown references are acknowledged with 200: the
// provider would otherwise retry a notification we can never use.
func (s *Server) handleMercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	var hook mercadoPagoWebhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		metrics.IncWebhook(model.ProviderMercadoPago, "malformed")
		s.log.Warn().Err(err).Msg("malformed webhook body")
		w.WriteHeader(http.StatusOK)
		return
	}
	// Older notification format carries topic/id as query params.
	if hook.Data.ID == "" {
		hook.Data.ID = r.URL.Query().Get("id")
		hook.Type = r.URL.Query().Get("topic")
	}
	if hook.Data.ID == "" {
		metrics.IncWebhook(model.ProviderMercadoPago, "malformed")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var ev model.PaymentEvent
	switch hook.Type {
	case "payment":
		detail, err := s.mercadopago.FetchPayment(ctx, hook.Data.ID)
		if err != nil {
			metrics.IncWebhook(model.ProviderMercadoPago, "fetch_failed")
			s.log.Warn().Err(err).Str("payment_id", hook.Data.ID).Msg("payment lookup failed, dropping webhook")
			w.WriteHeader(http.StatusOK)
			return
		}
		ev = model.PaymentEvent{
			Provider:    model.ProviderMercadoPago,
			ExternalRef: detail.ExternalReference,
			Kind:        model.EventKindPayment,
			RawStatus:   detail.Status,
			ExternalID:  detail.ExternalID,
		}
	case "subscription_preapproval", "preapproval":
		detail, err := s.preapprovals.FetchPreapproval(ctx, hook.Data.ID)
		if err != nil {
			metrics.IncWebhook(model.ProviderMercadoPago, "fetch_failed")
			s.log.Warn().Err(err).Str("preapproval_id", hook.Data.ID).Msg("preapproval lookup failed, dropping webhook")
			w.WriteHeader(http.StatusOK)
			return
		}
		ev = model.PaymentEvent{
			Provider:    model.ProviderMercadoPago,
			ExternalRef: detail.ExternalID, // subscriptions are keyed by preapproval id
			Kind:        model.EventKindSubscription,
			RawStatus:   detail.Status,
			ExternalID:  detail.ExternalID,
			PeriodEnd:   detail.NextPaymentAt,
		}
	default:
		metrics.IncWebhook(model.ProviderMercadoPago, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.reconciler.ApplyPaymentEvent(r.Context(), ev); err != nil {
		s.log.Error().Err(err).Str("external_id", ev.ExternalID).Msg("webhook reconciliation failed")
		http.Error(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	metrics.IncWebhook(model.ProviderMercadoPago, "accepted")
	w.WriteHeader(http.StatusOK)
}

// handleStripeWebhook verifies the signature before anything else; a payload
// we cannot authenticate is rejected with 400.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if err := payment.VerifyWebhookSignature(body, sig, s.stripeSecret, payment.DefaultSignatureTolerance, time.Now()); err != nil {
		metrics.IncWebhook(model.ProviderStripe, "invalid_signature")
		s.log.Warn().Msg("webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event payment.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.IncWebhook(model.ProviderStripe, "malformed")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	next := model.OrderStatusFromCheckoutSession(event.Type, event.PaymentStatus())
	if event.SessionID() == "" || event.OrderRef() == "" {
		metrics.IncWebhook(model.ProviderStripe, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Normalize the session event into the payment status vocabulary the
	// reconciler maps from.
	raw := "pending"
	switch next {
	case model.OrderStatusCompleted:
		raw = "approved"
	case model.OrderStatusFailed:
		raw = "rejected"
	}

	ev := model.PaymentEvent{
		Provider:    model.ProviderStripe,
		ExternalRef: event.OrderRef(),
		Kind:        model.EventKindPayment,
		RawStatus:   raw,
		ExternalID:  event.SessionID(),
	}
	if err := s.reconciler.ApplyPaymentEvent(r.Context(), ev); err != nil {
		s.log.Error().Err(err).Str("session_id", event.SessionID()).Msg("webhook reconciliation failed")
		http.Error(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	metrics.IncWebhook(model.ProviderStripe, "accepted")
	w.WriteHeader(http.StatusOK)
}

// ===== user-facing store API =====

type createOrderRequest struct {
	CourseIDs []string `json:"course_ids"`
	Provider  string   `json:"provider,omitempty"` // defaults to mercadopago
}

type orderResponse struct {
	Order       *model.Order `json:"order"`
	RedirectURL string       `json:"redirect_url,omitempty"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	o, redirect, err := s.checkoutUC.CreateOrder(r.Context(), userIDFrom(r.Context()), req.Provider, req.CourseIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{Order: o, RedirectURL: redirect})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.checkoutUC.ListOrders(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.Order `json:"data"`
	}{Data: orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.checkoutUC.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if o.UserID != userIDFrom(r.Context()) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Order: o})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	err := s.checkoutUC.CancelOrder(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subscribeRequest struct {
	PlanID         string `json:"plan_id"`
	DurationMonths int    `json:"duration_months"`
}

type subscriptionResponse struct {
	Subscription *model.Subscription `json:"subscription"`
	RedirectURL  string              `json:"redirect_url,omitempty"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sub, redirect, err := s.subUC.Subscribe(r.Context(), userIDFrom(r.Context()), req.PlanID, model.PlanDuration(req.DurationMonths))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionResponse{Subscription: sub, RedirectURL: redirect})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.Get(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	atPeriodEnd := r.URL.Query().Get("at_period_end") == "true"
	if err := s.subUC.Cancel(r.Context(), userIDFrom(r.Context()), atPeriodEnd); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAccessibleCourses(w http.ResponseWriter, r *http.Request) {
	ids, err := s.entUC.ListAccessibleCourses(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CourseIDs []string `json:"course_ids"`
	}{CourseIDs: ids})
}

func (s *Server) handleCourseAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := s.entUC.HasAccess(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "courseID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		HasAccess bool `json:"has_access"`
	}{HasAccess: ok})
}

func (s *Server) handleLessonAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := s.entUC.CanWatchLesson(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "lessonID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CanWatch bool `json:"can_watch"`
	}{CanWatch: ok})
}

// ===== admin API =====

type planPriceRequest struct {
	DurationMonths int    `json:"duration_months"`
	Price          int64  `json:"price"`
	ExternalPlanID string `json:"external_plan_id"`
}

type planRequest struct {
	Name      string             `json:"name"`
	Prices    []planPriceRequest `json:"prices"`
	CourseIDs []string           `json:"course_ids"`
}

func (req *planRequest) priceMap() map[model.PlanDuration]model.PlanPrice {
	prices := make(map[model.PlanDuration]model.PlanPrice, len(req.Prices))
	for _, p := range req.Prices {
		prices[model.PlanDuration(p.DurationMonths)] = model.PlanPrice{
			Price:          p.Price,
			ExternalPlanID: p.ExternalPlanID,
		}
	}
	return prices
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	plan, err := s.planUC.Create(r.Context(), req.Name, req.priceMap(), req.CourseIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	plan := &model.SubscriptionPlan{
		ID:        chi.URLParam(r, "planID"),
		Name:      req.Name,
		Prices:    req.priceMap(),
		CourseIDs: req.CourseIDs,
	}
	if err := s.planUC.Update(r.Context(), plan); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.planUC.Delete(r.Context(), chi.URLParam(r, "planID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.planUC.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.planUC.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.SubscriptionPlan `json:"data"`
	}{Data: plans})
}

type setStatusRequest struct {
	Status    string     `json:"status"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// handleSetOrderStatus is the admin override path; it drives the same state
// machine as a webhook delivery would.
func (s *Server) handleSetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := s.reconciler.SetOrderStatus(r.Context(), chi.URLParam(r, "orderID"), model.OrderStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := s.reconciler.SetSubscriptionStatus(r.Context(), chi.URLParam(r, "userID"), model.SubscriptionStatus(req.Status), req.PeriodEnd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	activeByPlan, activeEnrollments, err := s.statsUC.Totals(r.Context())
	if err != nil {
		http.Error(w, "failed to get totals", http.StatusInternalServerError)
		return
	}
	week, month, year, err := s.statsUC.Revenue(r.Context())
	if err != nil {
		http.Error(w, "failed to get revenue", http.StatusInternalServerError)
		return
	}

	response := struct {
		ActiveSubsByPlan  map[string]int `json:"active_subs_by_plan"`
		ActiveEnrollments int            `json:"active_enrollments"`
		Revenue           struct {
			Week  int64 `json:"week"`
			Month int64 `json:"month"`
			Year  int64 `json:"year"`
		} `json:"revenue"`
	}{
		ActiveSubsByPlan:  activeByPlan,
		ActiveEnrollments: activeEnrollments,
	}
	response.Revenue.Week = week
	response.Revenue.Month = month
	response.Revenue.Year = year

	writeJSON(w, http.StatusOK, response)
}
