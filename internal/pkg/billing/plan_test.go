package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorifyai/glorify/app/models"
)

func TestLookupPlan(t *testing.T) {
	plan, err := LookupPlan("Starter Monthly")
	require.NoError(t, err)
	assert.Equal(t, "Starter Monthly", plan.ID)
	assert.Equal(t, int64(50), plan.Credits)
	assert.Equal(t, models.BillingModeRecurring, plan.BillingMode)
	assert.Equal(t, models.BillingIntervalMonth, plan.Interval)

	// IDs are trimmed before lookup
	plan, err = LookupPlan("  Pro Yearly  ")
	require.NoError(t, err)
	assert.Equal(t, int64(6500), plan.Credits)

	_, err = LookupPlan("Mega Plan")
	assert.True(t, errors.Is(err, ErrInvalidPlan))

	_, err = LookupPlan("")
	assert.True(t, errors.Is(err, ErrInvalidPlan))
}

func TestCreditsForPlan(t *testing.T) {
	tests := []struct {
		planID string
		want   int64
	}{
		{"Starter Monthly", 50},
		{"Pro Monthly", 500},
		{"Starter Yearly", 650},
		{"Pro Yearly", 6500},
		{"Single Image", 1},
		{"Credit Pack: Small", 30},
		{"Credit Pack: Large", 300},
		{"No Such Plan", 0},
		{"", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CreditsForPlan(tt.planID), "plan %q", tt.planID)
	}
}

func TestPlanTrialEligibility(t *testing.T) {
	for _, id := range []string{"Starter Monthly", "Pro Monthly", "Starter Yearly", "Pro Yearly"} {
		plan, err := LookupPlan(id)
		require.NoError(t, err)
		assert.True(t, plan.IsRecurring(), "plan %q", id)
		assert.True(t, plan.TrialEligible(), "plan %q", id)
	}

	for _, id := range []string{"Single Image", "Credit Pack: Small", "Credit Pack: Large"} {
		plan, err := LookupPlan(id)
		require.NoError(t, err)
		assert.False(t, plan.IsRecurring(), "plan %q", id)
		assert.False(t, plan.TrialEligible(), "plan %q", id)
	}
}
