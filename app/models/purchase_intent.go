package models

import "time"

const (
	PurchaseIntentPending   = "pending"
	PurchaseIntentConfirmed = "confirmed"
	PurchaseIntentFailed    = "failed"
)

const (
	BillingModeRecurring = "recurring"
	BillingModeOneTime   = "one_time"
)

// PurchaseIntent is created when a checkout session is opened. It carries no
// credits: the ledger is only touched once the reconciler confirms payment
// through a webhook event. Owned by the checkout flow until confirmed.
type PurchaseIntent struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ProviderSessionID string    `gorm:"type:varchar(191);not null;index:ux_purchase_intents_session,unique" json:"provider_session_id"`
	UserID            string    `gorm:"type:varchar(191);not null;index" json:"user_id"`
	PlanID            string    `gorm:"type:varchar(100);not null" json:"plan_id"`
	BillingMode       string    `gorm:"type:varchar(16);not null" json:"billing_mode"`
	CreditGrant       int64     `gorm:"not null" json:"credit_grant"`
	Status            string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
