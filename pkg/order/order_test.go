package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeMonotonic(t *testing.T) {
	existing := Fields{
		ClientName: "Dupont SARL",
		Amount:     1500,
		Quantity:   DefaultQuantity,
		TaxRatePct: DefaultTaxRatePct,
	}

	// Empty extraction never erases known values.
	merged := Merge(existing, NewFields())
	assert.Equal(t, "Dupont SARL", merged.ClientName)
	assert.Equal(t, 1500.0, merged.Amount)

	// Present values replace.
	merged = Merge(existing, Fields{Description: "Refonte du site web", Amount: 2000})
	assert.Equal(t, "Dupont SARL", merged.ClientName)
	assert.Equal(t, "Refonte du site web", merged.Description)
	assert.Equal(t, 2000.0, merged.Amount)

	// Zero amount is absent, not an override.
	merged = Merge(existing, Fields{Amount: 0})
	assert.Equal(t, 1500.0, merged.Amount)
}

func TestMergeRestoresDefaults(t *testing.T) {
	merged := Merge(Fields{}, Fields{ClientName: "X"})
	assert.Equal(t, DefaultQuantity, merged.Quantity)
	assert.Equal(t, DefaultTaxRatePct, merged.TaxRatePct)
}

func TestCompleteAndMissing(t *testing.T) {
	f := NewFields()
	assert.False(t, f.Complete())
	assert.Equal(t, []string{"client_name", "description", "amount"}, f.Missing())

	f.ClientName = "Dupont"
	f.Description = "Audit"
	assert.False(t, f.Complete())
	assert.Equal(t, []string{"amount"}, f.Missing())

	f.Amount = 100
	assert.True(t, f.Complete())
	assert.Empty(t, f.Missing())

	// Email is optional.
	assert.Empty(t, f.ClientEmail)
}

func TestTotals(t *testing.T) {
	f := Fields{Amount: 100, Quantity: 2, TaxRatePct: 20}
	assert.InDelta(t, 200.0, f.TotalHT(), 0.001)
	assert.InDelta(t, 240.0, f.TotalTTC(), 0.001)
}

func TestExpiredAt(t *testing.T) {
	o := New("33611111111", NewFields())
	now := o.UpdatedAt

	assert.False(t, o.ExpiredAt(now.Add(time.Hour), 6*time.Hour))
	assert.True(t, o.ExpiredAt(now.Add(7*time.Hour), 6*time.Hour))
	// Zero TTL disables expiry.
	assert.False(t, o.ExpiredAt(now.Add(1000*time.Hour), 0))
}
