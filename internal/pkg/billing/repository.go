package billing

import (
	"time"

	"github.com/glorifyai/glorify/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service. The two
// *IfNotExists methods rely on unique indexes plus INSERT ... ON CONFLICT DO
// NOTHING, which is the atomic check-and-insert closing the race between
// concurrently delivered duplicates. Transaction hands out a repository bound
// to the transaction so an event either applies completely or not at all.
type Repository interface {
	Transaction(fn func(tx Repository) error) error

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error

	AppendLedgerEntryIfNotExists(entry *models.CreditLedgerEntry) (bool, error)
	SumLedgerDeltas(userID string) (int64, error)

	UpsertSubscription(sub *models.BillingSubscription) error
	GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.BillingSubscription, error)

	CreatePurchaseIntent(intent *models.PurchaseIntent) error
	UpdatePurchaseIntentStatus(providerSessionID, status string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(tx Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	updates := map[string]interface{}{
		"processing_error": processingError,
	}
	// processed_at stays NULL on failure so a redelivery can re-drive the
	// event instead of being acknowledged as a duplicate.
	if processingError == "" {
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) AppendLedgerEntryIfNotExists(entry *models.CreditLedgerEntry) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(entry)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) SumLedgerDeltas(userID string) (int64, error) {
	var total int64
	err := r.db.Model(&models.CreditLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta_credits), 0)").
		Scan(&total).Error
	return total, err
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"plan_id",
			"billing_interval",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreatePurchaseIntent(intent *models.PurchaseIntent) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_session_id"}},
		DoNothing: true,
	}).Create(intent).Error
}

func (r *gormRepository) UpdatePurchaseIntentStatus(providerSessionID, status string) error {
	return r.db.Model(&models.PurchaseIntent{}).
		Where("provider_session_id = ?", providerSessionID).
		Update("status", status).Error
}
