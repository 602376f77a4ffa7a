package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbill/voxbill/pkg/invoice"
)

func TestUnconfiguredMailerIsNoOp(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{})

	sent, err := m.SendInvoice(context.Background(), invoice.Invoice{Number: "FAC-000001"}, []string{"a@b.fr"})
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = m.SendConfirmation(context.Background(), invoice.Invoice{Number: "FAC-000001"}, []string{"a@b.fr"})
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestNoRecipientsIsNoOp(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p"})

	sent, err := m.SendInvoice(context.Background(), invoice.Invoice{Number: "FAC-000001"}, nil)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestConfigured(t *testing.T) {
	assert.False(t, SMTPConfig{}.Configured())
	assert.False(t, SMTPConfig{Host: "smtp.example.com"}.Configured())
	assert.True(t, SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p"}.Configured())
}

func TestRenderTemplatePlaceholders(t *testing.T) {
	inv := invoice.Invoice{
		Number:      "FAC-000042",
		ClientName:  "Dupont SARL",
		Description: "Refonte du site",
		TotalTTC:    1200,
	}

	body := renderTemplate(invoiceBodyTemplate, inv, "Ma Société")
	assert.Contains(t, body, "FAC-000042")
	assert.Contains(t, body, "Dupont SARL")
	assert.Contains(t, body, "Refonte du site")
	assert.Contains(t, body, "200,00 €")
	assert.Contains(t, body, "Ma Société")
	assert.NotContains(t, body, "{invoiceNumber}")
	assert.NotContains(t, body, "{amount}")
}

func TestCustomTemplatesOverrideBuiltins(t *testing.T) {
	inv := invoice.Invoice{Number: "FAC-000007", ClientName: "Martin", TotalTTC: 360}

	m := NewSMTPMailer(SMTPConfig{
		Company:              "Ma Société",
		InvoiceTemplate:      "<p>Facture {invoiceNumber} de {companyName} pour {clientName}</p>",
		ConfirmationTemplate: "<p>{invoiceNumber} générée ({amount})</p>",
	})

	body := m.invoiceBody(inv)
	assert.Equal(t, "<p>Facture FAC-000007 de Ma Société pour Martin</p>", body)

	conf := m.confirmationBody(inv)
	assert.Contains(t, conf, "FAC-000007 générée")
	assert.NotContains(t, conf, "a été générée et envoyée")

	// Empty templates keep the built-in bodies.
	def := NewSMTPMailer(SMTPConfig{Company: "Ma Société"})
	assert.Contains(t, def.invoiceBody(inv), "Veuillez trouver ci-joint")
	assert.Contains(t, def.confirmationBody(inv), "a été générée et envoyée")
}
