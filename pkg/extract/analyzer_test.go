package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbill/voxbill/pkg/order"
)

type fakeExtractor struct {
	analysis Analysis
	err      error
	calls    int
}

func (f *fakeExtractor) Extract(ctx context.Context, utterance string, existing *order.Fields) (Analysis, error) {
	f.calls++
	if f.err != nil {
		return Analysis{}, f.err
	}
	return f.analysis, nil
}

func pendingOrder(fields order.Fields) *order.Order {
	return &order.Order{SenderKey: "33611111111", State: order.StatePendingConfirmation, Fields: fields}
}

func completeFields() order.Fields {
	f := order.NewFields()
	f.ClientName = "Dupont SARL"
	f.Description = "Audit"
	f.Amount = 1000
	return f
}

func TestAnalyzeConfirmShortCircuit(t *testing.T) {
	fake := &fakeExtractor{}
	a := NewAnalyzer(fake)

	for _, word := range []string{"oui", "OK", "  Parfait ", "c'est bon", "valider !", "oui je confirme merci", "Oui, c'est parfait"} {
		res := a.Analyze(context.Background(), word, pendingOrder(completeFields()))
		assert.Equal(t, StatusConfirmed, res.Status, word)
		require.NotNil(t, res.Fields)
		assert.Equal(t, "Dupont SARL", res.Fields.ClientName)
	}
	// The provider is never consulted for keyword confirmations.
	assert.Equal(t, 0, fake.calls)
}

func TestAnalyzeCancelShortCircuit(t *testing.T) {
	fake := &fakeExtractor{}
	a := NewAnalyzer(fake)

	for _, word := range []string{"non", "non merci, annule tout", "Stop !"} {
		res := a.Analyze(context.Background(), word, pendingOrder(completeFields()))
		assert.Equal(t, StatusCancelled, res.Status, word)
	}
	assert.Equal(t, 0, fake.calls)
}

func TestAnalyzeKeywordsOnlyBindWhilePending(t *testing.T) {
	// "ok" outside pending_confirmation goes through the provider like any
	// other utterance.
	fake := &fakeExtractor{analysis: Analysis{CoherenceScore: 80, IsInvoiceIntent: false, Fields: order.NewFields()}}
	a := NewAnalyzer(fake)

	res := a.Analyze(context.Background(), "ok", nil)
	assert.Equal(t, StatusNotInvoice, res.Status)
	assert.Equal(t, 1, fake.calls)

	incomplete := &order.Order{State: order.StateIncomplete, Fields: completeFields()}
	fake.analysis = Analysis{CoherenceScore: 80, IsInvoiceIntent: true, Fields: order.NewFields()}
	res = a.Analyze(context.Background(), "oui", incomplete)
	assert.NotEqual(t, StatusConfirmed, res.Status)
	assert.Equal(t, 2, fake.calls)
}

func TestAnalyzeLowCoherenceInvalid(t *testing.T) {
	tests := []struct {
		name     string
		analysis Analysis
	}{
		{"low score", Analysis{CoherenceScore: 39, IsInvoiceIntent: true}},
		{"gibberish", Analysis{CoherenceScore: 95, IsGibberish: true, IsInvoiceIntent: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(&fakeExtractor{analysis: tt.analysis})
			res := a.Analyze(context.Background(), "blabla", nil)
			assert.Equal(t, StatusInvalid, res.Status)
			assert.Nil(t, res.Fields)
			assert.NotEmpty(t, res.UserMessage)
		})
	}
}

func TestAnalyzeNotInvoiceOnlyWithoutOrder(t *testing.T) {
	analysis := Analysis{CoherenceScore: 80, IsInvoiceIntent: false, Fields: order.NewFields()}

	a := NewAnalyzer(&fakeExtractor{analysis: analysis})
	res := a.Analyze(context.Background(), "quel temps fait-il ?", nil)
	assert.Equal(t, StatusNotInvoice, res.Status)

	// With an order in flight the utterance still merges.
	existing := &order.Order{State: order.StateIncomplete, Fields: completeFields()}
	res = a.Analyze(context.Background(), "quel temps fait-il ?", existing)
	assert.Equal(t, StatusPendingConfirmation, res.Status)
}

func TestAnalyzeIncompleteAsksFollowup(t *testing.T) {
	fields := order.NewFields()
	fields.ClientName = "Dupont"
	analysis := Analysis{
		CoherenceScore:   90,
		IsInvoiceIntent:  true,
		Fields:           fields,
		FollowupQuestion: "Quel est le montant de la prestation ?",
	}

	a := NewAnalyzer(&fakeExtractor{analysis: analysis})
	res := a.Analyze(context.Background(), "une facture pour Dupont", nil)
	require.Equal(t, StatusIncomplete, res.Status)
	require.NotNil(t, res.Fields)
	assert.Equal(t, "Dupont", res.Fields.ClientName)
	assert.Equal(t, "Quel est le montant de la prestation ?", res.UserMessage)
}

func TestAnalyzeDefaultFollowupNamesMissingFields(t *testing.T) {
	analysis := Analysis{CoherenceScore: 90, IsInvoiceIntent: true, Fields: order.NewFields()}

	a := NewAnalyzer(&fakeExtractor{analysis: analysis})
	res := a.Analyze(context.Background(), "je veux une facture", nil)
	require.Equal(t, StatusIncomplete, res.Status)
	assert.Contains(t, res.UserMessage, "le nom du client")
	assert.Contains(t, res.UserMessage, "le montant")
}

func TestAnalyzeCompleteGoesPendingWithRecap(t *testing.T) {
	fields := order.NewFields()
	fields.ClientName = "Dupont SARL"
	fields.Description = "Refonte du site"
	fields.Amount = 1000
	analysis := Analysis{CoherenceScore: 95, IsInvoiceIntent: true, Fields: fields}

	a := NewAnalyzer(&fakeExtractor{analysis: analysis})
	res := a.Analyze(context.Background(), "facture Dupont refonte 1000 euros", nil)
	require.Equal(t, StatusPendingConfirmation, res.Status)

	// The recap shows TTC (1000 * 1.20), never the bare amount.
	assert.Contains(t, res.UserMessage, "Récapitulatif")
	assert.Contains(t, res.UserMessage, "200,00 €")
	assert.Contains(t, res.UserMessage, "oui / non")
}

func TestAnalyzeMergesOntoExisting(t *testing.T) {
	extracted := order.NewFields()
	extracted.Amount = 2500
	analysis := Analysis{CoherenceScore: 90, IsInvoiceIntent: true, Fields: extracted}

	existing := &order.Order{
		State: order.StateIncomplete,
		Fields: order.Fields{
			ClientName:  "Dupont",
			Description: "Audit",
			Quantity:    1,
			TaxRatePct:  20,
		},
	}

	a := NewAnalyzer(&fakeExtractor{analysis: analysis})
	res := a.Analyze(context.Background(), "le montant est 2500", existing)
	require.Equal(t, StatusPendingConfirmation, res.Status)
	assert.Equal(t, "Dupont", res.Fields.ClientName)
	assert.Equal(t, 2500.0, res.Fields.Amount)
}

func TestAnalyzeProviderFailure(t *testing.T) {
	a := NewAnalyzer(&fakeExtractor{err: errors.New("api down")})
	res := a.Analyze(context.Background(), "une facture", nil)
	assert.Equal(t, StatusError, res.Status)
	assert.Nil(t, res.Fields)
	assert.NotEmpty(t, res.UserMessage)
}
