package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbill/voxbill/pkg/bus"
	"github.com/voxbill/voxbill/pkg/extract"
	"github.com/voxbill/voxbill/pkg/invoice"
	"github.com/voxbill/voxbill/pkg/order"
)

type fakeAnalyzer struct {
	result extract.Result
	// lastExisting captures what the analyzer saw.
	lastExisting *order.Order
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, utterance string, existing *order.Order) extract.Result {
	f.lastExisting = existing
	return f.result
}

type fakeLedger struct {
	seq       int
	numberErr error
	recorded  []invoice.Invoice
}

func (f *fakeLedger) NextNumber(ctx context.Context, prefix string) (string, error) {
	if f.numberErr != nil {
		return "", f.numberErr
	}
	f.seq++
	return fmt.Sprintf("%s%06d", prefix, f.seq), nil
}

func (f *fakeLedger) Record(ctx context.Context, inv invoice.Invoice) error {
	f.recorded = append(f.recorded, inv)
	return nil
}

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(inv invoice.Invoice) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/" + inv.Number + ".pdf", nil
}

type fakeMailer struct {
	invoiceErr      error
	invoiceSent     bool
	confirmations   int
	confirmationErr error
	lastRecipients  []string
}

func (f *fakeMailer) SendInvoice(ctx context.Context, inv invoice.Invoice, recipients []string) (bool, error) {
	f.lastRecipients = recipients
	if f.invoiceErr != nil {
		return false, f.invoiceErr
	}
	return f.invoiceSent, nil
}

func (f *fakeMailer) SendConfirmation(ctx context.Context, inv invoice.Invoice, recipients []string) (bool, error) {
	f.confirmations++
	if f.confirmationErr != nil {
		return false, f.confirmationErr
	}
	return true, nil
}

func completeFields() order.Fields {
	f := order.NewFields()
	f.ClientName = "Dupont SARL"
	f.Description = "Audit"
	f.Amount = 1000
	return f
}

type fixture struct {
	controller *Controller
	store      *order.MemoryStore
	analyzer   *fakeAnalyzer
	ledger     *fakeLedger
	renderer   *fakeRenderer
	mailer     *fakeMailer
}

func newFixture(result extract.Result) *fixture {
	f := &fixture{
		store:    order.NewMemoryStore(0),
		analyzer: &fakeAnalyzer{result: result},
		ledger:   &fakeLedger{},
		renderer: &fakeRenderer{},
		mailer:   &fakeMailer{invoiceSent: true},
	}
	f.controller = NewController(
		Settings{
			BotID:                  "bot-test",
			CompanyName:            "Ma Société",
			InvoicePrefix:          "FAC-",
			EmailRecipients:        []string{"compta@masociete.fr"},
			ConfirmationRecipients: []string{"patron@masociete.fr"},
		},
		f.store, f.analyzer, f.ledger, f.renderer, f.mailer,
	)
	return f
}

func TestIncompletePersistsOrder(t *testing.T) {
	fields := order.NewFields()
	fields.ClientName = "Dupont"
	f := newFixture(extract.Result{
		Status:      extract.StatusIncomplete,
		Fields:      &fields,
		UserMessage: "Quel est le montant ?",
	})

	reply := f.controller.HandleUtterance(context.Background(), "33611111111", "facture pour Dupont")
	assert.Equal(t, "Quel est le montant ?", reply)

	stored, err := f.store.Get(context.Background(), "33611111111")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, order.StateIncomplete, stored.State)
	assert.Equal(t, "Dupont", stored.Fields.ClientName)
}

func TestPendingConfirmationPersists(t *testing.T) {
	fields := completeFields()
	f := newFixture(extract.Result{
		Status:      extract.StatusPendingConfirmation,
		Fields:      &fields,
		UserMessage: "Confirmez-vous ?",
	})

	f.controller.HandleUtterance(context.Background(), "33611111111", "facture complète")

	stored, err := f.store.Get(context.Background(), "33611111111")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, order.StatePendingConfirmation, stored.State)
}

func TestConfirmedIssuesInvoiceAndDeletes(t *testing.T) {
	fields := completeFields()
	f := newFixture(extract.Result{Status: extract.StatusConfirmed, Fields: &fields})

	require.NoError(t, f.store.Put(context.Background(),
		&order.Order{SenderKey: "33611111111", State: order.StatePendingConfirmation, Fields: fields}))

	reply := f.controller.HandleUtterance(context.Background(), "33611111111", "oui")

	assert.Contains(t, reply, "FAC-000001")
	assert.Contains(t, reply, "✅")

	stored, err := f.store.Get(context.Background(), "33611111111")
	require.NoError(t, err)
	assert.Nil(t, stored)

	require.Len(t, f.ledger.recorded, 1)
	assert.Equal(t, "FAC-000001", f.ledger.recorded[0].Number)
	assert.Equal(t, 1, f.renderer.calls)
	assert.Equal(t, 1, f.mailer.confirmations)
}

func TestConfirmedAddsClientEmailRecipient(t *testing.T) {
	fields := completeFields()
	fields.ClientEmail = "client@dupont.fr"
	f := newFixture(extract.Result{Status: extract.StatusConfirmed, Fields: &fields})

	f.controller.HandleUtterance(context.Background(), "33611111111", "oui")
	assert.Contains(t, f.mailer.lastRecipients, "client@dupont.fr")
	assert.Contains(t, f.mailer.lastRecipients, "compta@masociete.fr")
}

func TestInvoiceFailureNeverResurrectsOrder(t *testing.T) {
	fields := completeFields()
	f := newFixture(extract.Result{Status: extract.StatusConfirmed, Fields: &fields})
	f.renderer.err = errors.New("disk full")

	require.NoError(t, f.store.Put(context.Background(),
		&order.Order{SenderKey: "33611111111", State: order.StatePendingConfirmation, Fields: fields}))

	reply := f.controller.HandleUtterance(context.Background(), "33611111111", "oui")
	assert.Contains(t, reply, "❌")

	stored, err := f.store.Get(context.Background(), "33611111111")
	require.NoError(t, err)
	assert.Nil(t, stored, "a failed pipeline must not leave a confirmable order behind")
	assert.Empty(t, f.ledger.recorded)
}

func TestEmailFailureStillReportsInvoice(t *testing.T) {
	fields := completeFields()
	f := newFixture(extract.Result{Status: extract.StatusConfirmed, Fields: &fields})
	f.mailer.invoiceErr = errors.New("smtp refused")

	reply := f.controller.HandleUtterance(context.Background(), "33611111111", "oui")
	assert.Contains(t, reply, "FAC-000001")
	assert.Contains(t, reply, "⚠️")
	require.Len(t, f.ledger.recorded, 1)
}

func TestConfirmationEmailFailureIsBestEffort(t *testing.T) {
	fields := completeFields()
	f := newFixture(extract.Result{Status: extract.StatusConfirmed, Fields: &fields})
	f.mailer.confirmationErr = errors.New("smtp refused")

	reply := f.controller.HandleUtterance(context.Background(), "33611111111", "oui")
	assert.Contains(t, reply, "✅")
}

func TestCancelledDeletesOrder(t *testing.T) {
	f := newFixture(extract.Result{Status: extract.StatusCancelled, UserMessage: "Commande annulée."})

	require.NoError(t, f.store.Put(context.Background(),
		&order.Order{SenderKey: "33611111111", State: order.StatePendingConfirmation, Fields: completeFields()}))

	reply := f.controller.HandleUtterance(context.Background(), "33611111111", "non")
	assert.Equal(t, "Commande annulée.", reply)

	stored, err := f.store.Get(context.Background(), "33611111111")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestNonMutatingOutcomesLeaveStoreUntouched(t *testing.T) {
	for _, status := range []extract.Status{extract.StatusInvalid, extract.StatusNotInvoice, extract.StatusError} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(extract.Result{Status: status, UserMessage: "message"})

			existing := &order.Order{SenderKey: "33611111111", State: order.StateIncomplete, Fields: completeFields()}
			require.NoError(t, f.store.Put(context.Background(), existing))

			reply := f.controller.HandleUtterance(context.Background(), "33611111111", "...")
			assert.Equal(t, "message", reply)

			stored, err := f.store.Get(context.Background(), "33611111111")
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, order.StateIncomplete, stored.State)
			assert.Empty(t, f.ledger.recorded)
		})
	}
}

func TestHandleCancel(t *testing.T) {
	f := newFixture(extract.Result{})

	assert.Equal(t, "Aucune commande en cours.",
		f.controller.HandleCancel(context.Background(), "33611111111"))

	require.NoError(t, f.store.Put(context.Background(),
		&order.Order{SenderKey: "33611111111", State: order.StateIncomplete, Fields: completeFields()}))

	assert.Equal(t, "Commande annulée.",
		f.controller.HandleCancel(context.Background(), "33611111111"))

	stored, err := f.store.Get(context.Background(), "33611111111")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestOrderEventsPublished(t *testing.T) {
	fields := completeFields()
	f := newFixture(extract.Result{Status: extract.StatusConfirmed, Fields: &fields})

	mb := bus.NewMessageBus()
	defer mb.Close()
	sys := mb.SubscribeSystem("test")
	f.controller.WithEvents(mb)

	f.controller.HandleUtterance(context.Background(), "33611111111", "oui")

	var types []string
	for len(sys) > 0 {
		evt := (<-sys).(bus.SystemEvent)
		types = append(types, evt.Type)
		assert.Equal(t, "bot-test", evt.Source)
	}
	assert.Equal(t, []string{"order.confirmed", "invoice.issued"}, types)
}

func TestAnalyzerSeesExistingOrder(t *testing.T) {
	f := newFixture(extract.Result{Status: extract.StatusNotInvoice, UserMessage: "m"})

	existing := &order.Order{SenderKey: "33611111111", State: order.StateIncomplete, Fields: completeFields()}
	require.NoError(t, f.store.Put(context.Background(), existing))

	f.controller.HandleUtterance(context.Background(), "33611111111", "bonjour")
	require.NotNil(t, f.analyzer.lastExisting)
	assert.Equal(t, order.StateIncomplete, f.analyzer.lastExisting.State)
}
