// Package flow drives the per-sender conversation: it resolves each
// utterance through the analyzer, owns all order-store transitions, and on
// confirmation runs the invoice pipeline. The analyzer decides meaning; this
// package decides what persists.
package flow

import (
	"context"

	"github.com/voxbill/voxbill/pkg/bus"
	"github.com/voxbill/voxbill/pkg/extract"
	"github.com/voxbill/voxbill/pkg/invoice"
	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/mailer"
	"github.com/voxbill/voxbill/pkg/money"
	"github.com/voxbill/voxbill/pkg/order"
)

const componentFlow = "flow"

const (
	msgStoreError    = "Une erreur est survenue lors du traitement de votre demande. Veuillez réessayer."
	msgNoOrder       = "Aucune commande en cours."
	msgCancelled     = "Commande annulée."
	msgInvoiceFailed = "❌ La création de la facture a échoué. Votre commande a été annulée, veuillez la reformuler."
)

// Analyzer resolves one utterance against the sender's existing order.
type Analyzer interface {
	Analyze(ctx context.Context, utterance string, existing *order.Order) extract.Result
}

// Ledger numbers and records issued invoices.
type Ledger interface {
	NextNumber(ctx context.Context, prefix string) (string, error)
	Record(ctx context.Context, inv invoice.Invoice) error
}

// Settings are the per-bot knobs the controller needs.
type Settings struct {
	BotID                  string
	CompanyName            string
	InvoicePrefix          string
	EmailRecipients        []string
	ConfirmationRecipients []string
}

// Controller is one bot's conversation engine. Safe for concurrent use as
// long as the caller serializes per sender, which the bot runtime does.
type Controller struct {
	settings Settings
	store    order.Store
	analyzer Analyzer
	ledger   Ledger
	renderer invoice.Renderer
	mailer   mailer.Mailer
	events   *bus.MessageBus
}

func NewController(settings Settings, store order.Store, analyzer Analyzer, ledger Ledger, renderer invoice.Renderer, m mailer.Mailer) *Controller {
	return &Controller{
		settings: settings,
		store:    store,
		analyzer: analyzer,
		ledger:   ledger,
		renderer: renderer,
		mailer:   m,
	}
}

// WithEvents attaches a bus for order lifecycle events. Nil-safe; without it
// the controller simply stays silent.
func (c *Controller) WithEvents(events *bus.MessageBus) *Controller {
	c.events = events
	return c
}

func (c *Controller) publishEvent(eventType string, data interface{}) {
	if c.events == nil {
		return
	}
	c.events.PublishSystem(bus.SystemEvent{
		Type:   eventType,
		Source: c.settings.BotID,
		Data:   data,
	})
}

// HandleUtterance processes one transcribed or typed utterance from sender
// and returns the reply to send. Stored state only changes on incomplete,
// pending_confirmation, confirmed and cancelled outcomes.
func (c *Controller) HandleUtterance(ctx context.Context, senderKey, utterance string) string {
	existing, err := c.store.Get(ctx, senderKey)
	if err != nil {
		logger.ErrorCF(componentFlow, "order lookup failed", map[string]interface{}{
			"sender": senderKey,
			"error":  err.Error(),
		})
		return msgStoreError
	}

	result := c.analyzer.Analyze(ctx, utterance, existing)

	switch result.Status {
	case extract.StatusIncomplete:
		return c.persist(ctx, senderKey, order.StateIncomplete, result)

	case extract.StatusPendingConfirmation:
		return c.persist(ctx, senderKey, order.StatePendingConfirmation, result)

	case extract.StatusConfirmed:
		// Delete before generating: a failed pipeline must not leave a
		// confirmable order behind.
		if err := c.store.Delete(ctx, senderKey); err != nil {
			logger.ErrorCF(componentFlow, "order delete failed", map[string]interface{}{
				"sender": senderKey,
				"error":  err.Error(),
			})
			return msgStoreError
		}
		c.publishEvent("order.confirmed", map[string]string{"sender": senderKey})
		return c.issueInvoice(ctx, *result.Fields)

	case extract.StatusCancelled:
		if err := c.store.Delete(ctx, senderKey); err != nil {
			logger.ErrorCF(componentFlow, "order delete failed", map[string]interface{}{
				"sender": senderKey,
				"error":  err.Error(),
			})
		}
		c.publishEvent("order.cancelled", map[string]string{"sender": senderKey})
		return result.UserMessage

	default:
		// invalid, not_invoice, error: stored state untouched.
		return result.UserMessage
	}
}

// HandleCancel handles the explicit "annuler" text command.
func (c *Controller) HandleCancel(ctx context.Context, senderKey string) string {
	existing, err := c.store.Get(ctx, senderKey)
	if err != nil {
		logger.ErrorCF(componentFlow, "order lookup failed", map[string]interface{}{
			"sender": senderKey,
			"error":  err.Error(),
		})
		return msgStoreError
	}
	if existing == nil {
		return msgNoOrder
	}
	if err := c.store.Delete(ctx, senderKey); err != nil {
		logger.ErrorCF(componentFlow, "order delete failed", map[string]interface{}{
			"sender": senderKey,
			"error":  err.Error(),
		})
		return msgStoreError
	}
	return msgCancelled
}

func (c *Controller) persist(ctx context.Context, senderKey string, state order.State, result extract.Result) string {
	o := &order.Order{
		SenderKey: senderKey,
		State:     state,
		Fields:    *result.Fields,
	}
	if err := c.store.Put(ctx, o); err != nil {
		logger.ErrorCF(componentFlow, "order save failed", map[string]interface{}{
			"sender": senderKey,
			"error":  err.Error(),
		})
		return msgStoreError
	}
	return result.UserMessage
}

// issueInvoice runs number → render → record → email for confirmed fields.
// The order is already deleted; any failure here reports to the user but
// never resurrects it.
func (c *Controller) issueInvoice(ctx context.Context, fields order.Fields) string {
	number, err := c.ledger.NextNumber(ctx, c.settings.InvoicePrefix)
	if err != nil {
		logger.ErrorCF(componentFlow, "invoice numbering failed", map[string]interface{}{
			"error": err.Error(),
		})
		return msgInvoiceFailed
	}

	inv := invoice.Build(c.settings.BotID, c.settings.CompanyName, fields)
	inv.Number = number

	path, err := c.renderer.Render(inv)
	if err != nil {
		logger.ErrorCF(componentFlow, "pdf render failed", map[string]interface{}{
			"invoice": number,
			"error":   err.Error(),
		})
		return msgInvoiceFailed
	}
	inv.PDFPath = path

	if err := c.ledger.Record(ctx, inv); err != nil {
		logger.ErrorCF(componentFlow, "ledger record failed", map[string]interface{}{
			"invoice": number,
			"error":   err.Error(),
		})
		return msgInvoiceFailed
	}

	reply := "✅ Facture " + number + " créée avec succès !\n" +
		"• Client : " + inv.ClientName + "\n" +
		"• Montant TTC : " + money.FormatEUR(inv.TotalTTC)

	recipients := c.settings.EmailRecipients
	if inv.ClientEmail != "" {
		recipients = append(append([]string{}, recipients...), inv.ClientEmail)
	}
	sent, err := c.mailer.SendInvoice(ctx, inv, recipients)
	switch {
	case err != nil:
		logger.WarnCF(componentFlow, "invoice email failed", map[string]interface{}{
			"invoice": number,
			"error":   err.Error(),
		})
		reply += "\n⚠️ La facture est créée mais l'envoi de l'email a échoué."
	case sent:
		reply += "\n📧 Facture envoyée par email."
	default:
		reply += "\n📄 PDF enregistré : " + path
	}

	// Confirmation copy is best effort; a failure is only logged.
	if _, err := c.mailer.SendConfirmation(ctx, inv, c.settings.ConfirmationRecipients); err != nil {
		logger.WarnCF(componentFlow, "confirmation email failed", map[string]interface{}{
			"invoice": number,
			"error":   err.Error(),
		})
	}

	logger.InfoCF(componentFlow, "invoice issued", map[string]interface{}{
		"invoice":   number,
		"client":    inv.ClientName,
		"total_ttc": inv.TotalTTC,
	})
	c.publishEvent("invoice.issued", map[string]interface{}{
		"number":    number,
		"total_ttc": inv.TotalTTC,
	})
	return reply
}
