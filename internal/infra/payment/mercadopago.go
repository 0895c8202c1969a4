package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
)

// Ensure compile-time conformance
var _ adapter.CheckoutGateway = (*MercadoPagoGateway)(nil)
var _ adapter.RecurringGateway = (*MercadoPagoGateway)(nil)

// MercadoPagoGateway implements both gateway ports using direct HTTP calls:
// checkout preferences for one-time orders and preapprovals for recurring
// subscriptions.
type MercadoPagoGateway struct {
	accessToken     string
	baseURL         string
	backURL         string
	notificationURL string
	client          *http.Client
}

func NewMercadoPagoGateway(accessToken, baseURL, backURL, notificationURL string) *MercadoPagoGateway {
	if baseURL == "" {
		baseURL = "https://api.mercadopago.com"
	}
	return &MercadoPagoGateway{
		accessToken:     accessToken,
		baseURL:         baseURL,
		backURL:         backURL,
		notificationURL: notificationURL,
		client:          &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *MercadoPagoGateway) Name() string { return model.ProviderMercadoPago }

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreateCheckout registers a checkout preference carrying our order id as
// external_reference; the webhook round-trips it back to us.
func (g *MercadoPagoGateway) CreateCheckout(ctx context.Context, o *model.Order) (string, string, error) {
	items := make([]preferenceItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, preferenceItem{
			ID:         it.CourseID,
			Title:      fmt.Sprintf("course %s", it.CourseID),
			Quantity:   1,
			UnitPrice:  float64(it.Price) / 100,
			CurrencyID: "BRL",
		})
	}
	body := map[string]any{
		"items":              items,
		"external_reference": o.ID,
		"notification_url":   g.notificationURL,
		"back_urls":          map[string]string{"success": g.backURL, "failure": g.backURL, "pending": g.backURL},
		"expires":            true,
		"expiration_date_to": o.ExpiresAt.Format(time.RFC3339),
	}

	var resp preferenceResponse
	if err := g.call(ctx, http.MethodPost, "/checkout/preferences", body, &resp); err != nil {
		return "", "", fmt.Errorf("create preference: %w", err)
	}
	return resp.ID, resp.InitPoint, nil
}

type paymentResponse struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
}

// FetchPayment resolves the webhook's bare payment id against the API. The
// returned status is the authoritative one; webhook bodies are never trusted.
func (g *MercadoPagoGateway) FetchPayment(ctx context.Context, externalID string) (*adapter.PaymentDetail, error) {
	var resp paymentResponse
	if err := g.call(ctx, http.MethodGet, "/v1/payments/"+externalID, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", externalID, err)
	}
	return &adapter.PaymentDetail{
		ExternalID:        fmt.Sprintf("%d", resp.ID),
		Status:            resp.Status,
		ExternalReference: resp.ExternalReference,
		Amount:            int64(resp.TransactionAmount * 100),
	}, nil
}

type preapprovalResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
	InitPoint         string `json:"init_point"`
	NextPaymentDate   string `json:"next_payment_date"`
}

// CreatePreapproval opens a recurring authorization for the plan's price
// point at the chosen duration.
func (g *MercadoPagoGateway) CreatePreapproval(ctx context.Context, userID string, plan *model.SubscriptionPlan, d model.PlanDuration) (string, string, error) {
	pp, ok := plan.PriceFor(d)
	if !ok {
		return "", "", fmt.Errorf("plan %s has no price for %d months", plan.ID, d)
	}
	body := map[string]any{
		"preapproval_plan_id": pp.ExternalPlanID,
		"external_reference":  userID,
		"back_url":            g.backURL,
		"auto_recurring": map[string]any{
			"frequency":          int(d),
			"frequency_type":     "months",
			"transaction_amount": float64(pp.Price) / 100,
			"currency_id":        "BRL",
		},
	}
	var resp preapprovalResponse
	if err := g.call(ctx, http.MethodPost, "/preapproval", body, &resp); err != nil {
		return "", "", fmt.Errorf("create preapproval: %w", err)
	}
	return resp.ID, resp.InitPoint, nil
}

func (g *MercadoPagoGateway) FetchPreapproval(ctx context.Context, externalID string) (*adapter.PreapprovalDetail, error) {
	var resp preapprovalResponse
	if err := g.call(ctx, http.MethodGet, "/preapproval/"+externalID, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch preapproval %s: %w", externalID, err)
	}
	detail := &adapter.PreapprovalDetail{
		ExternalID:        resp.ID,
		Status:            resp.Status,
		ExternalReference: resp.ExternalReference,
	}
	if resp.NextPaymentDate != "" {
		if t, err := time.Parse(time.RFC3339, resp.NextPaymentDate); err == nil {
			detail.NextPaymentAt = &t
		}
	}
	return detail, nil
}

func (g *MercadoPagoGateway) CancelPreapproval(ctx context.Context, externalRef string) error {
	body := map[string]any{"status": "cancelled"}
	var resp preapprovalResponse
	if err := g.call(ctx, http.MethodPut, "/preapproval/"+externalRef, body, &resp); err != nil {
		return fmt.Errorf("cancel preapproval %s: %w", externalRef, err)
	}
	return nil
}

func (g *MercadoPagoGateway) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mercadopago error: status %d, body: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
		}
	}
	return nil
}
