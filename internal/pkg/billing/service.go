package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/glorifyai/glorify/app/models"
	"github.com/glorifyai/glorify/internal/pkg/env"
	"github.com/glorifyai/glorify/internal/pkg/metrics/counter"
)

// Service owns checkout initiation, session verification and the payment
// event reconciler. It is the only writer of ledger state.
type Service struct {
	repo     Repository
	provider CheckoutProvider
	notifier Notifier
}

// NewService creates a billing service from injected capabilities.
func NewService(repo Repository, provider CheckoutProvider, notifier Notifier) *Service {
	return &Service{repo: repo, provider: provider, notifier: notifier}
}

// NewServiceFromDB wires the service with the Stripe client and SMTP
// notifier configured from the environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewStripeClientFromEnv(), NewSMTPNotifier())
}

// InitiateCheckout validates the plan, asks the provider for a purchase
// session and records a pending PurchaseIntent. No credits are granted here:
// the ledger is only touched once the reconciler confirms payment.
func (s *Service) InitiateCheckout(ctx context.Context, in InitiateCheckoutInput) (*CheckoutRedirect, error) {
	plan, err := LookupPlan(in.PlanID)
	if err != nil {
		return nil, err
	}

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = "anonymous"
	}
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	mode := "payment"
	paymentType := "one_time_credits"
	trialDays := 0
	if plan.IsRecurring() {
		mode = "subscription"
		paymentType = "subscription"
		if plan.TrialEligible() {
			trialDays = TrialPeriodDays
		}
	}

	req := CheckoutSessionRequest{
		Mode:              mode,
		PriceRef:          plan.PriceRef(),
		Quantity:          quantity,
		SuccessURL:        in.SuccessURL,
		CancelURL:         in.CancelURL,
		ClientReferenceID: uuid.NewString(),
		TrialPeriodDays:   trialDays,
		Metadata: map[string]string{
			"userId":      userID,
			"planName":    plan.ID,
			"paymentType": paymentType,
		},
	}

	session, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, err
	}

	billingMode := models.BillingModeOneTime
	if plan.IsRecurring() {
		billingMode = models.BillingModeRecurring
	}
	intent := &models.PurchaseIntent{
		ProviderSessionID: session.ID,
		UserID:            userID,
		PlanID:            plan.ID,
		BillingMode:       billingMode,
		CreditGrant:       plan.Credits,
		Status:            models.PurchaseIntentPending,
	}
	if err := s.repo.CreatePurchaseIntent(intent); err != nil {
		// The provider session exists either way; the webhook path recovers
		// the purchase from session metadata, so log and move on.
		log.Errorf("[Billing] failed to record purchase intent for session %s: %v", session.ID, err)
	}

	return &CheckoutRedirect{SessionID: session.ID, URL: session.URL, Mode: session.Mode}, nil
}

// VerifySession reports whether a checkout session was paid. Read-only by
// contract: a replayed or forged verification call must never grant credits.
func (s *Service) VerifySession(ctx context.Context, sessionID string) (*SessionVerification, error) {
	status, err := s.provider.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionVerification{
		SessionID:   status.ID,
		Paid:        status.PaymentStatus == "paid",
		Status:      status.Status,
		Mode:        status.Mode,
		PlanID:      status.Metadata["planName"],
		UserID:      status.Metadata["userId"],
		AmountTotal: status.AmountTotal,
		Currency:    status.Currency,
	}, nil
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false for a redelivery, in which case the caller acknowledges
// without reprocessing.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		return false, nil, errors.New("provider event id is required")
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// ApplyEvent is the reconciler state machine. Every branch runs inside one
// transaction so an event either applies completely or fails as a whole and
// is retried through the provider's redelivery. Credit branches append a
// ledger entry keyed by the provider event id; a duplicate insert is a
// successful no-op, never an error.
func (s *Service) ApplyEvent(ctx context.Context, ev *Event) error {
	_ = ctx
	if ev == nil || strings.TrimSpace(ev.ID) == "" {
		return errors.New("event with provider event id is required")
	}

	switch ev.Type {
	case EventPurchaseCompleted:
		return s.repo.Transaction(func(tx Repository) error {
			if ev.Mode == "subscription" {
				// Checkout completion and first invoice are distinct events.
				// Credits for subscriptions are granted on invoice_paid only;
				// granting here too would double-credit the first period.
				if err := s.syncSubscription(tx, ev, models.BillingStatusActive); err != nil {
					return err
				}
			} else {
				if err := s.appendGrant(tx, ev, models.LedgerReasonPurchase); err != nil {
					return err
				}
			}
			if ev.SessionID != "" {
				if err := tx.UpdatePurchaseIntentStatus(ev.SessionID, models.PurchaseIntentConfirmed); err != nil {
					return err
				}
			}
			return nil
		})

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.repo.Transaction(func(tx Repository) error {
			return s.syncSubscription(tx, ev, ev.Status)
		})

	case EventSubscriptionCanceled:
		// Status transition only; no ledger mutation.
		return s.repo.Transaction(func(tx Repository) error {
			return s.syncSubscription(tx, ev, models.BillingStatusCanceled)
		})

	case EventInvoicePaid:
		// This is what actually grants recurring credits each billing period.
		return s.repo.Transaction(func(tx Repository) error {
			if ev.PlanID == "" {
				ev.PlanID = s.planFromSubscription(tx, ev)
			}
			return s.appendGrant(tx, ev, models.LedgerReasonRenewal)
		})

	case EventInvoiceFailed:
		// No ledger mutation; hand the signal to the external collaborator.
		if err := counter.AddSignal(counter.SignalInvoiceFailed); err != nil {
			log.Warnf("[Billing] invoice_failed counter: %v", err)
		}
		if s.notifier != nil {
			s.notifier.PaymentFailed(ev.UserID, ev.PlanID, ev.SubscriptionID)
		}
		return nil

	case EventOneTimePaymentConfirmed:
		// The one-time analogue of invoice_paid. Its event id differs from
		// the checkout completion's, so both paths stay idempotent on their
		// own; the catalog's one-time/subscription split must guarantee only
		// one of them fires per purchase.
		return s.repo.Transaction(func(tx Repository) error {
			return s.appendGrant(tx, ev, models.LedgerReasonPurchase)
		})

	default:
		return fmt.Errorf("unhandled event type %q", ev.Type)
	}
}

// appendGrant writes the credit grant for an event. Unknown plans apply zero
// credits but are still recorded, which stops infinite redelivery loops while
// leaving an observability trail.
func (s *Service) appendGrant(tx Repository, ev *Event, reason string) error {
	grant := CreditsForPlan(ev.PlanID)
	if grant == 0 {
		log.Warnf("[Billing] event %s references unmapped plan %q; applying zero credits", ev.ID, ev.PlanID)
		if err := counter.AddSignal(counter.SignalUnmappedPlan); err != nil {
			log.Warnf("[Billing] unmapped_plan counter: %v", err)
		}
	}

	entry := &models.CreditLedgerEntry{
		UserID:          ev.UserID,
		Provider:        ev.Provider,
		ProviderEventID: ev.ID,
		DeltaCredits:    grant,
		Reason:          reason,
		PlanID:          ev.PlanID,
	}
	created, err := tx.AppendLedgerEntryIfNotExists(entry)
	if err != nil {
		return err
	}
	if !created {
		// Duplicate delivery lost the insert race; by design a no-op.
		log.Debugf("[Billing] ledger entry for event %s already applied", ev.ID)
	}
	return nil
}

// syncSubscription upserts the subscription row for an event. Events without
// plan metadata (Stripe's subscription.deleted often has none) keep whatever
// the row already knows instead of blanking it.
func (s *Service) syncSubscription(tx Repository, ev *Event, status string) error {
	if strings.TrimSpace(ev.SubscriptionID) == "" {
		return errors.New("subscription event without subscription id")
	}
	if status == "" {
		status = models.BillingStatusActive
	}

	planID := ev.PlanID
	interval := intervalForPlan(planID)
	if planID == "" {
		if existing, err := tx.GetSubscriptionByProviderID(ev.Provider, ev.SubscriptionID); err == nil {
			planID = existing.PlanID
			interval = existing.BillingInterval
		}
	}

	sub := &models.BillingSubscription{
		UserID:                 ev.UserID,
		Provider:               ev.Provider,
		ProviderSubscriptionID: strings.TrimSpace(ev.SubscriptionID),
		PlanID:                 planID,
		BillingInterval:        interval,
		Status:                 normalizeSubscriptionStatus(status),
		CurrentPeriodStart:     ev.CurrentPeriodStart,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
		RawPayloadJSON:         string(ev.RawJSON),
	}
	return tx.UpsertSubscription(sub)
}

// planFromSubscription recovers the plan for invoice events that carry no
// plan metadata of their own, using the locally synced subscription row.
func (s *Service) planFromSubscription(tx Repository, ev *Event) string {
	if strings.TrimSpace(ev.SubscriptionID) == "" {
		return ""
	}
	sub, err := tx.GetSubscriptionByProviderID(ev.Provider, ev.SubscriptionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] subscription lookup for invoice %s failed: %v", ev.ID, err)
		}
		return ""
	}
	if ev.UserID == "" || ev.UserID == "anonymous" {
		ev.UserID = sub.UserID
	}
	return sub.PlanID
}

// Balance folds the ledger for a user. Never stored independently.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	_ = ctx
	id := strings.TrimSpace(userID)
	if id == "" {
		return 0, errors.New("user_id is required")
	}
	return s.repo.SumLedgerDeltas(id)
}

// RequireSpendableCredit checks that the user can cover one generation,
// returning ErrInsufficientCredits when the ledger folds below 1.
func (s *Service) RequireSpendableCredit(ctx context.Context, userID string) error {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance < 1 {
		return ErrInsufficientCredits
	}
	return nil
}

// SpendGenerationCredit debits exactly one credit for a succeeded generation
// job. Keyed by the job id, so acting twice on the same result stays a
// single debit.
func (s *Service) SpendGenerationCredit(ctx context.Context, userID, providerJobID string) error {
	_ = ctx
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(providerJobID) == "" {
		return errors.New("user_id and job id are required")
	}
	entry := &models.CreditLedgerEntry{
		UserID:          userID,
		Provider:        "generation",
		ProviderEventID: "debit:" + providerJobID,
		DeltaCredits:    -1,
		Reason:          models.LedgerReasonAdjustment,
	}
	_, err := s.repo.AppendLedgerEntryIfNotExists(entry)
	return err
}

func normalizeSubscriptionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.BillingStatusTrialing:
		return models.BillingStatusTrialing
	case models.BillingStatusPastDue, "unpaid":
		return models.BillingStatusPastDue
	case models.BillingStatusCanceled, "cancelled", "incomplete_expired":
		return models.BillingStatusCanceled
	default:
		return models.BillingStatusActive
	}
}

func intervalForPlan(planID string) string {
	p, err := LookupPlan(planID)
	if err != nil {
		return models.BillingIntervalUnknown
	}
	return p.Interval
}

// NewSMTPNotifier returns the Notifier used in production wiring. It mails
// the configured billing alerts address; when unset it only logs.
func NewSMTPNotifier() Notifier {
	return &smtpNotifier{to: strings.TrimSpace(env.GetEnv("BILLING_ALERTS_EMAIL", ""))}
}
