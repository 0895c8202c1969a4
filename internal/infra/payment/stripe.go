package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"course-platform/internal/domain/model"
	"course-platform/internal/domain/ports/adapter"
)

// Ensure compile-time conformance
var _ adapter.CheckoutGateway = (*StripeGateway)(nil)

// StripeGateway implements one-time checkout via hosted checkout sessions.
// Subscription billing runs on the other provider; this one only handles
// card checkouts and their signed webhook events.
type StripeGateway struct {
	secretKey  string
	baseURL    string
	successURL string
	cancelURL  string
	client     *http.Client
}

func NewStripeGateway(secretKey, baseURL, successURL, cancelURL string) *StripeGateway {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeGateway{
		secretKey:  secretKey,
		baseURL:    baseURL,
		successURL: successURL,
		cancelURL:  cancelURL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *StripeGateway) Name() string { return model.ProviderStripe }

type checkoutSession struct {
	ID                string `json:"id"`
	URL               string `json:"url"`
	PaymentStatus     string `json:"payment_status"`
	ClientReferenceID string `json:"client_reference_id"`
	AmountTotal       int64  `json:"amount_total"`
}

// CreateCheckout opens a hosted checkout session carrying our order id as
// client_reference_id.
func (g *StripeGateway) CreateCheckout(ctx context.Context, o *model.Order) (string, string, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", o.ID)
	form.Set("success_url", g.successURL)
	form.Set("cancel_url", g.cancelURL)
	form.Set("expires_at", strconv.FormatInt(o.ExpiresAt.Unix(), 10))
	for i, it := range o.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", "1")
		form.Set(prefix+"[price_data][currency]", "usd")
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(it.Price, 10))
		form.Set(prefix+"[price_data][product_data][name]", "course "+it.CourseID)
	}

	var sess checkoutSession
	if err := g.call(ctx, http.MethodPost, "/v1/checkout/sessions", form, &sess); err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// FetchPayment resolves a checkout session id to its authoritative state.
func (g *StripeGateway) FetchPayment(ctx context.Context, externalID string) (*adapter.PaymentDetail, error) {
	var sess checkoutSession
	if err := g.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+externalID, nil, &sess); err != nil {
		return nil, fmt.Errorf("fetch checkout session %s: %w", externalID, err)
	}
	return &adapter.PaymentDetail{
		ExternalID:        sess.ID,
		Status:            sess.PaymentStatus,
		ExternalReference: sess.ClientReferenceID,
		Amount:            sess.AmountTotal,
	}, nil
}

func (g *StripeGateway) call(ctx context.Context, method, path string, form url.Values, out any) error {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
		return fmt.Errorf("stripe error: status %d, body: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
		}
	}
	return nil
}

// WebhookEvent is the envelope of a signed webhook delivery.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object checkoutSessionObject `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	PaymentStatus     string `json:"payment_status"`
}

// SessionID returns the checkout session the event describes.
func (e *WebhookEvent) SessionID() string { return e.Data.Object.ID }

// OrderRef returns our order id carried on the session.
func (e *WebhookEvent) OrderRef() string { return e.Data.Object.ClientReferenceID }

// PaymentStatus returns the session's payment status at event time.
func (e *WebhookEvent) PaymentStatus() string { return e.Data.Object.PaymentStatus }

var ErrBadSignature = errors.New("webhook signature verification failed")

// DefaultSignatureTolerance bounds how old a signed payload may be.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the `t=...,v1=...` signature header against
// HMAC-SHA256(secret, "<t>.<payload>") and rejects stale timestamps.
func VerifyWebhookSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrBadSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrBadSignature
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrBadSignature
}

// SignWebhookPayload produces a signature header for the payload; test and
// local-replay helper.
func SignWebhookPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
