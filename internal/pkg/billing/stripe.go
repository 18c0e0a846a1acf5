package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glorifyai/glorify/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient talks to the Stripe REST API with form-encoded requests. Only
// the checkout-session surface is implemented; everything else arrives via
// webhooks.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// CheckoutSessionRequest describes one provider "create session" call.
// Metadata must survive the round trip unmodified; ledger recovery depends
// on reading userId/planName back out of webhook events.
type CheckoutSessionRequest struct {
	Mode              string // "subscription" or "payment"
	PriceRef          string
	Quantity          int
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string
	ClientReferenceID string
	TrialPeriodDays   int
	Metadata          map[string]string
}

// CheckoutSession is the redirect target returned by the provider.
type CheckoutSession struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

// CheckoutSessionStatus is the read-only view used by session verification.
type CheckoutSessionStatus struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	PaymentStatus  string            `json:"payment_status"`
	Mode           string            `json:"mode"`
	AmountTotal    int64             `json:"amount_total"`
	Currency       string            `json:"currency"`
	SubscriptionID string            `json:"subscription"`
	Metadata       map[string]string `json:"metadata"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCheckoutSession opens a purchase session. Network errors and 5xx
// responses map to ErrProviderUnavailable (retryable); 4xx responses map to
// ErrProviderRejected (permanent).
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY is not configured", ErrProviderRejected)
	}
	if req.PriceRef == "" {
		return nil, fmt.Errorf("%w: missing provider price reference", ErrProviderRejected)
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	form := url.Values{}
	form.Set("mode", req.Mode)
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price]", req.PriceRef)
	form.Set("line_items[0][quantity]", strconv.Itoa(req.Quantity))
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("allow_promotion_codes", "true")
	form.Set("billing_address_collection", "required")
	form.Set("automatic_tax[enabled]", "true")
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	if req.ClientReferenceID != "" {
		form.Set("client_reference_id", req.ClientReferenceID)
	}

	switch req.Mode {
	case "subscription":
		for k, v := range req.Metadata {
			form.Set(fmt.Sprintf("subscription_data[metadata][%s]", k), v)
		}
		if req.TrialPeriodDays > 0 {
			form.Set("subscription_data[trial_period_days]", strconv.Itoa(req.TrialPeriodDays))
		}
		form.Set("phone_number_collection[enabled]", "true")
	case "payment":
		for k, v := range req.Metadata {
			form.Set(fmt.Sprintf("payment_intent_data[metadata][%s]", k), v)
		}
		form.Set("payment_intent_data[setup_future_usage]", "off_session")
	default:
		return nil, fmt.Errorf("%w: unsupported checkout mode %q", ErrProviderRejected, req.Mode)
	}

	body, err := c.do(ctx, http.MethodPost, "/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	var out CheckoutSession
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed session response: %v", ErrProviderUnavailable, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, fmt.Errorf("%w: session response has no id", ErrProviderUnavailable)
	}
	return &out, nil
}

// RetrieveCheckoutSession fetches the current state of a checkout session.
func (c *StripeClient) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionStatus, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrProviderRejected)
	}

	body, err := c.do(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var out CheckoutSessionStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed session response: %v", ErrProviderUnavailable, err)
	}
	return &out, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	var stripeErr stripeErrorBody
	_ = json.Unmarshal(raw, &stripeErr)
	msg := stripeErr.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("status=%d", resp.StatusCode)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, msg)
	}
	if stripeErr.Error.Param != "" {
		return nil, fmt.Errorf("%w: %s (param=%s)", ErrProviderRejected, msg, stripeErr.Error.Param)
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderRejected, msg)
}

// CheckoutProvider is the injected payment-provider capability. Components
// never reach for a package-level client so tests can substitute fakes.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionStatus, error)
}

var _ CheckoutProvider = (*StripeClient)(nil)
