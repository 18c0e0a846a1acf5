package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeWebhookSignature(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	header := signPayload(t, payload, testWebhookSecret, now)
	assert.True(t, VerifyStripeWebhookSignature(payload, header, testWebhookSecret, now))

	// tampered body
	assert.False(t, VerifyStripeWebhookSignature([]byte(`{"id":"evt_2"}`), header, testWebhookSecret, now))

	// wrong secret
	assert.False(t, VerifyStripeWebhookSignature(payload, header, "whsec_other", now))
}

func TestVerifyStripeWebhookSignatureTolerance(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)

	// just inside the window
	header := signPayload(t, payload, testWebhookSecret, now.Add(-4*time.Minute))
	assert.True(t, VerifyStripeWebhookSignature(payload, header, testWebhookSecret, now))

	// too old
	header = signPayload(t, payload, testWebhookSecret, now.Add(-6*time.Minute))
	assert.False(t, VerifyStripeWebhookSignature(payload, header, testWebhookSecret, now))

	// too far in the future
	header = signPayload(t, payload, testWebhookSecret, now.Add(6*time.Minute))
	assert.False(t, VerifyStripeWebhookSignature(payload, header, testWebhookSecret, now))
}

func TestVerifyStripeWebhookSignatureMalformedHeaders(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)

	assert.False(t, VerifyStripeWebhookSignature(payload, "", testWebhookSecret, now))
	assert.False(t, VerifyStripeWebhookSignature(payload, "v1=deadbeef", testWebhookSecret, now))
	assert.False(t, VerifyStripeWebhookSignature(payload, fmt.Sprintf("t=%d", now.Unix()), testWebhookSecret, now))
	assert.False(t, VerifyStripeWebhookSignature(payload, "t=notanumber,v1=deadbeef", testWebhookSecret, now))

	// empty secret always fails
	header := signPayload(t, payload, testWebhookSecret, now)
	assert.False(t, VerifyStripeWebhookSignature(payload, header, "", now))
}

func TestVerifyStripeWebhookSignatureKeyRotation(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1"}`)

	// a v1 entry from a rotated-out key is ignored as long as one matches
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.", now.Unix())
	mac.Write(payload)
	goodSig := hex.EncodeToString(mac.Sum(nil))
	staleSig := hex.EncodeToString(make([]byte, 32))

	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), staleSig, goodSig)
	assert.True(t, VerifyStripeWebhookSignature(payload, header, testWebhookSecret, now))
}
