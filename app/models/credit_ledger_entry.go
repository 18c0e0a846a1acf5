package models

import "time"

// Ledger entry reasons. Refunds are negative-delta entries, never deletions.
const (
	LedgerReasonPurchase   = "purchase"
	LedgerReasonRenewal    = "renewal"
	LedgerReasonRefund     = "refund"
	LedgerReasonAdjustment = "adjustment"
)

// CreditLedgerEntry is an immutable append-only credit mutation. The unique
// (provider, provider_event_id) index is the idempotency key: a given provider
// event can produce at most one entry, regardless of how often it is delivered.
// A user's balance is always the sum of their deltas, never stored directly.
type CreditLedgerEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"type:varchar(191);not null;index" json:"user_id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_credit_ledger_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_credit_ledger_provider_event,unique,priority:2" json:"provider_event_id"`
	DeltaCredits    int64     `gorm:"not null" json:"delta_credits"`
	Reason          string    `gorm:"type:varchar(32);not null;index" json:"reason"`
	PlanID          string    `gorm:"type:varchar(100);not null;default:''" json:"plan_id"`
	AppliedAt       time.Time `gorm:"autoCreateTime;index" json:"applied_at"`
}
