package billing

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStripeEventEnvelope(t *testing.T) {
	id, typ, err := ParseStripeEventEnvelope([]byte(`{"id":"evt_1","type":"invoice.payment_succeeded","data":{"object":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", id)
	assert.Equal(t, "invoice.payment_succeeded", typ)

	_, _, err = ParseStripeEventEnvelope([]byte(`{"type":"invoice.payment_succeeded"}`))
	assert.Error(t, err, "missing event id")

	_, _, err = ParseStripeEventEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestClassifyCheckoutSessionCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_checkout_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"mode": "payment",
			"payment_status": "paid",
			"amount_total": 500,
			"currency": "usd",
			"metadata": {"userId": "user-1", "planName": "Credit Pack: Small", "paymentType": "one_time_credits"}
		}}
	}`)

	ev, handled, err := ClassifyStripeEvent(payload)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, EventPurchaseCompleted, ev.Type)
	assert.Equal(t, "evt_checkout_1", ev.ID)
	assert.Equal(t, "stripe", ev.Provider)
	assert.Equal(t, "cs_test_123", ev.SessionID)
	assert.Equal(t, "payment", ev.Mode)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "Credit Pack: Small", ev.PlanID)
	assert.Equal(t, int64(500), ev.AmountTotal)
}

func TestClassifySubscriptionEvents(t *testing.T) {
	periodStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	tests := []struct {
		stripeType string
		want       EventType
	}{
		{"customer.subscription.created", EventSubscriptionCreated},
		{"customer.subscription.updated", EventSubscriptionUpdated},
		{"customer.subscription.deleted", EventSubscriptionCanceled},
	}

	for _, tt := range tests {
		payload := []byte(`{
			"id": "evt_sub_1",
			"type": "` + tt.stripeType + `",
			"data": {"object": {
				"id": "sub_123",
				"status": "active",
				"cancel_at_period_end": true,
				"current_period_start": ` + timeUnixString(periodStart) + `,
				"current_period_end": ` + timeUnixString(periodEnd) + `,
				"metadata": {"userId": "user-1", "planName": "Starter Monthly"}
			}}
		}`)

		ev, handled, err := ClassifyStripeEvent(payload)
		require.NoError(t, err, tt.stripeType)
		require.True(t, handled, tt.stripeType)
		assert.Equal(t, tt.want, ev.Type, tt.stripeType)
		assert.Equal(t, "sub_123", ev.SubscriptionID)
		assert.True(t, ev.CancelAtPeriodEnd)
		require.NotNil(t, ev.CurrentPeriodStart)
		assert.Equal(t, periodStart, ev.CurrentPeriodStart.UTC())
		require.NotNil(t, ev.CurrentPeriodEnd)
		assert.Equal(t, periodEnd, ev.CurrentPeriodEnd.UTC())
	}
}

func TestClassifyInvoiceEvents(t *testing.T) {
	paid := []byte(`{
		"id": "evt_inv_1",
		"type": "invoice.payment_succeeded",
		"data": {"object": {
			"id": "in_1",
			"subscription": "sub_123",
			"amount_paid": 999,
			"currency": "usd",
			"metadata": {}
		}}
	}`)
	ev, handled, err := ClassifyStripeEvent(paid)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, EventInvoicePaid, ev.Type)
	assert.Equal(t, "sub_123", ev.SubscriptionID)
	assert.Equal(t, int64(999), ev.AmountTotal)
	// no user metadata on the invoice
	assert.Equal(t, "anonymous", ev.UserID)

	failed := []byte(`{
		"id": "evt_inv_2",
		"type": "invoice.payment_failed",
		"data": {"object": {
			"id": "in_2",
			"subscription": "sub_123",
			"amount_due": 999,
			"currency": "usd",
			"metadata": {"userId": "user-1", "planName": "Pro Monthly"}
		}}
	}`)
	ev, handled, err = ClassifyStripeEvent(failed)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, EventInvoiceFailed, ev.Type)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "Pro Monthly", ev.PlanID)
	assert.Equal(t, int64(999), ev.AmountTotal)
}

func TestClassifyPaymentIntentSucceeded(t *testing.T) {
	tagged := []byte(`{
		"id": "evt_pi_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_1",
			"amount": 2900,
			"currency": "usd",
			"metadata": {"userId": "user-1", "planName": "Credit Pack: Small", "paymentType": "one_time_credits"}
		}}
	}`)
	ev, handled, err := ClassifyStripeEvent(tagged)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, EventOneTimePaymentConfirmed, ev.Type)
	assert.Equal(t, "Credit Pack: Small", ev.PlanID)

	// payment intents from other flows carry no marker and are ignored
	untagged := []byte(`{
		"id": "evt_pi_2",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_2", "amount": 2900, "metadata": {}}}
	}`)
	_, handled, err = ClassifyStripeEvent(untagged)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestClassifyUnhandledEventType(t *testing.T) {
	payload := []byte(`{"id":"evt_x","type":"charge.refunded","data":{"object":{}}}`)
	ev, handled, err := ClassifyStripeEvent(payload)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, "evt_x", ev.ID)
}

func timeUnixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
