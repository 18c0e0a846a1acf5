package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/glorifyai/glorify/internal/pkg/billing"
	"github.com/glorifyai/glorify/internal/pkg/env"
	"github.com/glorifyai/glorify/internal/pkg/metrics/counter"
)

type createCheckoutSessionRequest struct {
	PlanID   string `json:"plan_id" validate:"required"`
	UserID   string `json:"user_id"`
	Quantity int    `json:"quantity" validate:"omitempty,gte=1,lte=100"`
}

// HandleCreateCheckoutSession opens a provider purchase session and returns
// the redirect target. No credits are granted here.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var req createCheckoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	origin := requestOrigin(c)
	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	redirect, err := svc.InitiateCheckout(ctx, billing.InitiateCheckoutInput{
		PlanID:     req.PlanID,
		UserID:     req.UserID,
		Quantity:   req.Quantity,
		SuccessURL: origin + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  origin + "/?canceled=true",
	})
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidPlan):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_plan", "message": "Unknown plan"})
		case errors.Is(err, billing.ErrProviderUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "provider_unavailable", "message": "Payment service temporarily unavailable. Please try again."})
		case errors.Is(err, billing.ErrProviderRejected):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "provider_rejected", "message": err.Error()})
		default:
			log.Errorf("[Billing] checkout session failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Error creating checkout session"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session_id": redirect.SessionID,
		"url":        redirect.URL,
		"mode":       redirect.Mode,
		"success":    true,
	})
}

// HandleVerifySession reports a purchase outcome after redirect. Read-only:
// only the reconciler credits, so a replayed verification call grants nothing.
func HandleVerifySession(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Session ID is required"})
	}

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	verification, err := svc.VerifySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrProviderRejected) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_session", "message": "Invalid session ID"})
		}
		log.Errorf("[Billing] session verification failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_unavailable", "message": "Error retrieving session"})
	}

	return c.Status(fiber.StatusOK).JSON(verification)
}

// HandleStripeWebhook is the ingestion boundary for provider events. The
// signature check is a security boundary and runs before anything else; a
// duplicate delivery is acknowledged without reprocessing; a reconciler
// failure returns 500 so the provider redelivers.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if secret == "" {
		// Fail closed: without a secret nothing can be authenticated.
		log.Error("[Billing] STRIPE_WEBHOOK_SECRET is not configured; rejecting webhook")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook_not_configured"})
	}
	if !billing.VerifyStripeWebhookSignature(rawBody, signature, secret, time.Now()) {
		if err := counter.AddSignal(counter.SignalInvalidSignature); err != nil {
			log.Debugf("[Billing] signature counter: %v", err)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	eventID, eventType, err := billing.ParseStripeEventEnvelope(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        "stripe",
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	// A redelivery of an event that never applied cleanly falls through:
	// ApplyEvent is idempotent per event id, so re-driving it is safe, and
	// acknowledging it here would drop the grant forever.

	ev, handled, err := billing.ClassifyStripeEvent(rawBody)
	if err != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !handled {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	applyErr := svc.ApplyEvent(ctx, ev)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		log.Errorf("[Billing] event %s (%s) failed to apply: %v", eventID, eventType, applyErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_apply_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleGetBalance folds the ledger for a user.
func HandleGetBalance(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id is required"})
	}

	svc := newBillingService()
	balance, err := svc.Balance(context.Background(), userID)
	if err != nil {
		log.Errorf("[Billing] balance lookup for %s failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"user_id": userID, "credits": balance})
}

// HandleStats returns the observability counter snapshot.
func HandleStats(c *fiber.Ctx) error {
	snapshot, err := counter.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"signals": snapshot})
}

// HandleResetStats drops all observability counters.
func HandleResetStats(c *fiber.Ctx) error {
	if err := counter.Reset(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
