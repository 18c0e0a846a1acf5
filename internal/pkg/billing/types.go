package billing

// InitiateCheckoutInput is the caller-facing request to open a purchase
// session. UserID is opaque; "anonymous" is permitted and substituted when
// empty.
type InitiateCheckoutInput struct {
	PlanID     string
	UserID     string
	Quantity   int
	SuccessURL string
	CancelURL  string
}

// CheckoutRedirect is returned to the caller for the browser redirect.
type CheckoutRedirect struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Mode      string `json:"mode"`
}

// SessionVerification reports a purchase outcome after redirect. It is a
// read-only reconciliation aid and never the source of truth for crediting.
type SessionVerification struct {
	SessionID   string `json:"session_id"`
	Paid        bool   `json:"paid"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	PlanID      string `json:"plan_id"`
	UserID      string `json:"user_id"`
	AmountTotal int64  `json:"amount_total"`
	Currency    string `json:"currency"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Notifier receives non-crediting billing signals destined for an external
// collaborator (ops mail, user notification pipeline).
type Notifier interface {
	PaymentFailed(userID, planID, subscriptionID string)
}
