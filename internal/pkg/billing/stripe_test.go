package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStripeClient(serverURL string) *StripeClient {
	return &StripeClient{
		SecretKey:  "sk_test_123",
		APIBaseURL: serverURL,
		HTTPClient: http.DefaultClient,
	}
}

func TestCreateCheckoutSessionSubscription(t *testing.T) {
	var gotForm url.Values
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/checkout/sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/pay/cs_test_1","mode":"subscription"}`))
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Mode:            "subscription",
		PriceRef:        "price_starter_monthly",
		Quantity:        1,
		SuccessURL:      "https://app.example/success",
		CancelURL:       "https://app.example/cancel",
		TrialPeriodDays: 7,
		Metadata: map[string]string{
			"userId":      "user-1",
			"planName":    "Starter Monthly",
			"paymentType": "subscription",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", session.URL)

	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, "subscription", gotForm.Get("mode"))
	assert.Equal(t, "price_starter_monthly", gotForm.Get("line_items[0][price]"))
	assert.Equal(t, "1", gotForm.Get("line_items[0][quantity]"))
	assert.Equal(t, "7", gotForm.Get("subscription_data[trial_period_days]"))
	assert.Equal(t, "user-1", gotForm.Get("metadata[userId]"))
	assert.Equal(t, "Starter Monthly", gotForm.Get("subscription_data[metadata][planName]"))
	assert.Empty(t, gotForm.Get("payment_intent_data[metadata][userId]"))
}

func TestCreateCheckoutSessionOneTime(t *testing.T) {
	var gotForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		_, _ = w.Write([]byte(`{"id":"cs_test_2","url":"https://checkout.stripe.com/c/pay/cs_test_2","mode":"payment"}`))
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Mode:       "payment",
		PriceRef:   "price_pack_small",
		SuccessURL: "https://app.example/success",
		CancelURL:  "https://app.example/cancel",
		Metadata: map[string]string{
			"userId":      "user-1",
			"planName":    "Credit Pack: Small",
			"paymentType": "one_time_credits",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "payment", gotForm.Get("mode"))
	// quantity defaults to 1
	assert.Equal(t, "1", gotForm.Get("line_items[0][quantity]"))
	// metadata propagates onto the payment intent so its webhook carries it
	assert.Equal(t, "one_time_credits", gotForm.Get("payment_intent_data[metadata][paymentType]"))
	assert.Equal(t, "off_session", gotForm.Get("payment_intent_data[setup_future_usage]"))
	assert.Empty(t, gotForm.Get("subscription_data[trial_period_days]"))
}

func TestCreateCheckoutSessionErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    error
	}{
		{"server error", http.StatusInternalServerError, `{}`, ErrProviderUnavailable},
		{"bad gateway", http.StatusBadGateway, `{}`, ErrProviderUnavailable},
		{"invalid request", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"No such price","param":"line_items[0][price]"}}`, ErrProviderRejected},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Invalid API Key"}}`, ErrProviderRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestStripeClient(server.URL)
			_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
				Mode:       "payment",
				PriceRef:   "price_x",
				SuccessURL: "https://app.example/success",
				CancelURL:  "https://app.example/cancel",
			})
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestCreateCheckoutSessionNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse connections

	client := newTestStripeClient(server.URL)
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Mode:       "payment",
		PriceRef:   "price_x",
		SuccessURL: "https://app.example/success",
		CancelURL:  "https://app.example/cancel",
	})
	assert.True(t, errors.Is(err, ErrProviderUnavailable), "got %v", err)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	client := newTestStripeClient("http://unused.invalid")

	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Mode: "payment"})
	assert.True(t, errors.Is(err, ErrProviderRejected), "missing price ref: %v", err)

	_, err = client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Mode: "donation", PriceRef: "price_x"})
	assert.True(t, errors.Is(err, ErrProviderRejected), "unsupported mode: %v", err)

	client.SecretKey = ""
	_, err = client.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Mode: "payment", PriceRef: "price_x"})
	assert.True(t, errors.Is(err, ErrProviderRejected), "missing secret: %v", err)
}

func TestRetrieveCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/checkout/sessions/cs_test_1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "cs_test_1",
			"status": "complete",
			"payment_status": "paid",
			"mode": "payment",
			"amount_total": 500,
			"currency": "usd",
			"metadata": {"userId": "user-1", "planName": "Credit Pack: Small"}
		}`))
	}))
	defer server.Close()

	client := newTestStripeClient(server.URL)
	status, err := client.RetrieveCheckoutSession(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, "paid", status.PaymentStatus)
	assert.Equal(t, "user-1", status.Metadata["userId"])

	_, err = client.RetrieveCheckoutSession(context.Background(), "")
	assert.True(t, errors.Is(err, ErrProviderRejected))
}
