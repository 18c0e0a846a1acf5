package billing

import (
	"strings"

	"github.com/glorifyai/glorify/app/models"
	"github.com/glorifyai/glorify/internal/pkg/env"
)

// TrialPeriodDays is attached to trial-eligible subscription checkouts.
const TrialPeriodDays = 7

// Plan describes one purchasable credit package. The catalog is static; the
// provider price reference is resolved from the environment so staging and
// production can point at different Stripe prices.
type Plan struct {
	ID          string
	BillingMode string
	Interval    string
	Credits     int64
	priceEnvKey string
}

var catalog = map[string]Plan{
	"Starter Monthly": {ID: "Starter Monthly", BillingMode: models.BillingModeRecurring, Interval: models.BillingIntervalMonth, Credits: 50, priceEnvKey: "STRIPE_PRICE_STARTER_MONTHLY"},
	"Pro Monthly":     {ID: "Pro Monthly", BillingMode: models.BillingModeRecurring, Interval: models.BillingIntervalMonth, Credits: 500, priceEnvKey: "STRIPE_PRICE_PRO_MONTHLY"},
	"Starter Yearly":  {ID: "Starter Yearly", BillingMode: models.BillingModeRecurring, Interval: models.BillingIntervalYear, Credits: 650, priceEnvKey: "STRIPE_PRICE_STARTER_YEARLY"},
	"Pro Yearly":      {ID: "Pro Yearly", BillingMode: models.BillingModeRecurring, Interval: models.BillingIntervalYear, Credits: 6500, priceEnvKey: "STRIPE_PRICE_PRO_YEARLY"},

	"Single Image":       {ID: "Single Image", BillingMode: models.BillingModeOneTime, Interval: models.BillingIntervalUnknown, Credits: 1, priceEnvKey: "STRIPE_PRICE_SINGLE_IMAGE"},
	"Credit Pack: Small": {ID: "Credit Pack: Small", BillingMode: models.BillingModeOneTime, Interval: models.BillingIntervalUnknown, Credits: 30, priceEnvKey: "STRIPE_PRICE_PACK_SMALL"},
	"Credit Pack: Large": {ID: "Credit Pack: Large", BillingMode: models.BillingModeOneTime, Interval: models.BillingIntervalUnknown, Credits: 300, priceEnvKey: "STRIPE_PRICE_PACK_LARGE"},
}

// LookupPlan resolves a plan by its catalog ID.
func LookupPlan(planID string) (Plan, error) {
	p, ok := catalog[strings.TrimSpace(planID)]
	if !ok {
		return Plan{}, ErrInvalidPlan
	}
	return p, nil
}

// CreditsForPlan returns the credit grant for a plan, or 0 when the plan is
// unknown. Reconciliation uses this so an unmapped plan still results in a
// recorded zero-credit application instead of an endless redelivery loop.
func CreditsForPlan(planID string) int64 {
	p, err := LookupPlan(planID)
	if err != nil {
		return 0
	}
	return p.Credits
}

// IsRecurring reports whether the plan bills on a subscription.
func (p Plan) IsRecurring() bool {
	return p.BillingMode == models.BillingModeRecurring
}

// TrialEligible reports whether a checkout for this plan gets the fixed
// trial period. Only named monthly/yearly subscription plans qualify.
func (p Plan) TrialEligible() bool {
	if !p.IsRecurring() {
		return false
	}
	return strings.Contains(p.ID, "Monthly") || strings.Contains(p.ID, "Yearly")
}

// PriceRef returns the provider price reference configured for this plan.
func (p Plan) PriceRef() string {
	if p.priceEnvKey == "" {
		return ""
	}
	return strings.TrimSpace(env.GetEnv(p.priceEnvKey, ""))
}
