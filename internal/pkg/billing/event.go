package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// EventType is the closed set of provider events the reconciler understands.
type EventType string

const (
	EventPurchaseCompleted       EventType = "purchase_completed"
	EventSubscriptionCreated     EventType = "subscription_created"
	EventSubscriptionUpdated     EventType = "subscription_updated"
	EventSubscriptionCanceled    EventType = "subscription_canceled"
	EventInvoicePaid             EventType = "invoice_paid"
	EventInvoiceFailed           EventType = "invoice_failed"
	EventOneTimePaymentConfirmed EventType = "one_time_payment_confirmed"
)

// Event is a classified webhook event. ID is the provider-assigned event id
// and is the idempotency key for every downstream mutation; a renewal reuses
// its subscription id across many events, so the subscription id must never
// be used as the key.
type Event struct {
	ID                 string
	Type               EventType
	Provider           string
	SessionID          string
	Mode               string
	UserID             string
	PlanID             string
	PaymentType        string
	SubscriptionID     string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	AmountTotal        int64
	Currency           string
	RawJSON            []byte
}

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeMetadata struct {
	UserID      string `json:"userId"`
	PlanName    string `json:"planName"`
	PaymentType string `json:"paymentType"`
}

type stripeCheckoutSession struct {
	ID            string         `json:"id"`
	Mode          string         `json:"mode"`
	PaymentStatus string         `json:"payment_status"`
	AmountTotal   int64          `json:"amount_total"`
	Currency      string         `json:"currency"`
	Subscription  string         `json:"subscription"`
	Metadata      stripeMetadata `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string         `json:"id"`
	Status             string         `json:"status"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	CurrentPeriodStart int64          `json:"current_period_start"`
	CurrentPeriodEnd   int64          `json:"current_period_end"`
	Metadata           stripeMetadata `json:"metadata"`
}

type stripeInvoice struct {
	ID           string         `json:"id"`
	Subscription string         `json:"subscription"`
	AmountPaid   int64          `json:"amount_paid"`
	AmountDue    int64          `json:"amount_due"`
	Currency     string         `json:"currency"`
	Metadata     stripeMetadata `json:"metadata"`
}

type stripePaymentIntent struct {
	ID       string         `json:"id"`
	Amount   int64          `json:"amount"`
	Currency string         `json:"currency"`
	Metadata stripeMetadata `json:"metadata"`
}

// ParseStripeEventEnvelope extracts the provider event id and raw type
// without classifying. The ingestor needs these for idempotent persistence
// before any further processing happens.
func ParseStripeEventEnvelope(payload []byte) (eventID, eventType string, err error) {
	var env stripeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", "", err
	}
	if strings.TrimSpace(env.ID) == "" {
		return "", "", errors.New("billing: webhook payload has no event id")
	}
	return env.ID, env.Type, nil
}

// ClassifyStripeEvent turns a raw webhook payload into a classified Event.
// The second return value is false when the provider event type is outside
// the closed set (or a payment_intent not tagged as a credit purchase); such
// events are recorded and acknowledged but never reach the reconciler.
func ClassifyStripeEvent(payload []byte) (*Event, bool, error) {
	var env stripeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, false, err
	}

	ev := &Event{
		ID:       env.ID,
		Provider: "stripe",
		RawJSON:  append([]byte(nil), payload...),
	}

	switch env.Type {
	case "checkout.session.completed":
		var s stripeCheckoutSession
		if err := json.Unmarshal(env.Data.Object, &s); err != nil {
			return nil, false, err
		}
		ev.Type = EventPurchaseCompleted
		ev.SessionID = s.ID
		ev.Mode = s.Mode
		ev.UserID = s.Metadata.UserID
		ev.PlanID = s.Metadata.PlanName
		ev.PaymentType = s.Metadata.PaymentType
		ev.SubscriptionID = s.Subscription
		ev.AmountTotal = s.AmountTotal
		ev.Currency = s.Currency

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var s stripeSubscription
		if err := json.Unmarshal(env.Data.Object, &s); err != nil {
			return nil, false, err
		}
		switch env.Type {
		case "customer.subscription.created":
			ev.Type = EventSubscriptionCreated
		case "customer.subscription.updated":
			ev.Type = EventSubscriptionUpdated
		default:
			ev.Type = EventSubscriptionCanceled
		}
		ev.SubscriptionID = s.ID
		ev.Status = s.Status
		ev.CancelAtPeriodEnd = s.CancelAtPeriodEnd
		ev.UserID = s.Metadata.UserID
		ev.PlanID = s.Metadata.PlanName
		ev.CurrentPeriodStart = unixTime(s.CurrentPeriodStart)
		ev.CurrentPeriodEnd = unixTime(s.CurrentPeriodEnd)

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(env.Data.Object, &inv); err != nil {
			return nil, false, err
		}
		if env.Type == "invoice.payment_succeeded" {
			ev.Type = EventInvoicePaid
			ev.AmountTotal = inv.AmountPaid
		} else {
			ev.Type = EventInvoiceFailed
			ev.AmountTotal = inv.AmountDue
		}
		ev.SubscriptionID = inv.Subscription
		ev.UserID = inv.Metadata.UserID
		ev.PlanID = inv.Metadata.PlanName
		ev.Currency = inv.Currency

	case "payment_intent.succeeded":
		var pi stripePaymentIntent
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil {
			return nil, false, err
		}
		// Only payment intents created by our own one-time checkout carry
		// this marker; everything else belongs to some other flow.
		if pi.Metadata.PaymentType != "one_time_credits" {
			return ev, false, nil
		}
		ev.Type = EventOneTimePaymentConfirmed
		ev.UserID = pi.Metadata.UserID
		ev.PlanID = pi.Metadata.PlanName
		ev.PaymentType = pi.Metadata.PaymentType
		ev.AmountTotal = pi.Amount
		ev.Currency = pi.Currency

	default:
		return ev, false, nil
	}

	if strings.TrimSpace(ev.UserID) == "" {
		ev.UserID = "anonymous"
	}
	return ev, true, nil
}

func unixTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
