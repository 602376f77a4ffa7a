package invoice

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbill/voxbill/pkg/order"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "invoices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestNextNumberSequential(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	n1, err := l.NextNumber(ctx, "FAC-")
	require.NoError(t, err)
	n2, err := l.NextNumber(ctx, "FAC-")
	require.NoError(t, err)
	n3, err := l.NextNumber(ctx, "FAC-")
	require.NoError(t, err)

	assert.Equal(t, "FAC-000001", n1)
	assert.Equal(t, "FAC-000002", n2)
	assert.Equal(t, "FAC-000003", n3)
}

func TestNextNumberPerPrefix(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	n1, err := l.NextNumber(ctx, "FAC-")
	require.NoError(t, err)
	n2, err := l.NextNumber(ctx, "DEV-")
	require.NoError(t, err)

	assert.Equal(t, "FAC-000001", n1)
	assert.Equal(t, "DEV-000001", n2)
}

func TestRecordAndListByBot(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	fields := order.Fields{
		ClientName:  "Dupont SARL",
		Description: "Audit",
		Amount:      1000,
		Quantity:    1,
		TaxRatePct:  20,
	}

	for i := 0; i < 3; i++ {
		inv := Build("bot-a", "Ma Société", fields)
		number, err := l.NextNumber(ctx, "FAC-")
		require.NoError(t, err)
		inv.Number = number
		require.NoError(t, l.Record(ctx, inv))
	}

	other := Build("bot-b", "Autre", fields)
	number, err := l.NextNumber(ctx, "FAC-")
	require.NoError(t, err)
	other.Number = number
	require.NoError(t, l.Record(ctx, other))

	got, err := l.ListByBot(ctx, "bot-a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first.
	assert.Equal(t, "FAC-000003", got[0].Number)
	assert.Equal(t, "Dupont SARL", got[0].ClientName)
}

func TestRecordRejectsDuplicateNumber(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	inv := Build("bot-a", "Ma Société", order.Fields{ClientName: "X", Description: "Y", Amount: 1, Quantity: 1, TaxRatePct: 20})
	inv.Number = "FAC-000099"
	require.NoError(t, l.Record(ctx, inv))
	assert.Error(t, l.Record(ctx, inv))
}

func TestBuildComputesTotals(t *testing.T) {
	inv := Build("bot-a", "Ma Société", order.Fields{
		ClientName:  "Dupont",
		Description: "Audit",
		Amount:      100,
		Quantity:    2,
		TaxRatePct:  20,
	})

	assert.Equal(t, 100.0, inv.UnitPrice)
	assert.InDelta(t, 200.0, inv.TotalHT, 0.001)
	assert.InDelta(t, 40.0, inv.TaxAmount, 0.001)
	assert.InDelta(t, 240.0, inv.TotalTTC, 0.001)
	assert.Equal(t, "Ma Société", inv.CompanyName)
}

func TestPDFRendererWritesFile(t *testing.T) {
	dir := t.TempDir()
	r := NewPDFRenderer(dir)

	inv := Build("bot-a", "Ma Société", order.Fields{
		ClientName:  "Dupont SARL",
		ClientEmail: "contact@dupont.fr",
		Description: "Refonte du site web",
		Amount:      1500,
		Quantity:    1,
		TaxRatePct:  20,
	})
	inv.Number = "FAC-000001"

	path, err := r.Render(inv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "FAC-000001.pdf"), path)
	assert.FileExists(t, path)
}
