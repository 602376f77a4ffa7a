// Package mailer sends invoice emails over SMTP. An unconfigured mailer is a
// no-op that reports "not sent" rather than an error, so bots without SMTP
// credentials still complete the invoice flow.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/voxbill/voxbill/pkg/invoice"
	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/money"
)

const componentMailer = "mailer"

// Mailer delivers the invoice PDF and the best-effort confirmation copy.
type Mailer interface {
	// SendInvoice mails the PDF to recipients. sent=false with nil error
	// means the mailer is unconfigured or no recipients are set.
	SendInvoice(ctx context.Context, inv invoice.Invoice, recipients []string) (sent bool, err error)
	// SendConfirmation mails a short notification without attachment.
	SendConfirmation(ctx context.Context, inv invoice.Invoice, recipients []string) (sent bool, err error)
}

// SMTPConfig carries one bot's outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Company  string

	// InvoiceTemplate and ConfirmationTemplate replace the built-in bodies
	// when non-empty. Same placeholders as the built-ins.
	InvoiceTemplate      string
	ConfirmationTemplate string
}

// Configured reports whether the settings are usable.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

var _ Mailer = (*SMTPMailer)(nil)

// SMTPMailer sends through a single SMTP account with mandatory TLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

const invoiceBodyTemplate = `<p>Bonjour,</p>
<p>Veuillez trouver ci-joint la facture <strong>{invoiceNumber}</strong> pour <strong>{clientName}</strong>.</p>
<ul>
  <li>Prestation : {description}</li>
  <li>Montant TTC : {amount}</li>
</ul>
<p>Cordialement,<br>{companyName}</p>`

const confirmationBodyTemplate = `<p>La facture <strong>{invoiceNumber}</strong> ({amount} TTC) pour {clientName} a été générée et envoyée.</p>`

func (m *SMTPMailer) SendInvoice(ctx context.Context, inv invoice.Invoice, recipients []string) (bool, error) {
	if !m.cfg.Configured() || len(recipients) == 0 {
		return false, nil
	}

	msg, err := m.newMessage(inv, recipients,
		"Facture "+inv.Number+" - "+inv.ClientName,
		m.invoiceBody(inv))
	if err != nil {
		return false, err
	}
	if inv.PDFPath != "" {
		msg.AttachFile(inv.PDFPath)
	}

	if err := m.deliver(ctx, msg); err != nil {
		return false, fmt.Errorf("send invoice email: %w", err)
	}
	return true, nil
}

func (m *SMTPMailer) SendConfirmation(ctx context.Context, inv invoice.Invoice, recipients []string) (bool, error) {
	if !m.cfg.Configured() || len(recipients) == 0 {
		return false, nil
	}

	msg, err := m.newMessage(inv, recipients,
		"Confirmation - facture "+inv.Number,
		m.confirmationBody(inv))
	if err != nil {
		return false, err
	}

	if err := m.deliver(ctx, msg); err != nil {
		return false, fmt.Errorf("send confirmation email: %w", err)
	}
	return true, nil
}

// invoiceBody renders the invoice email, preferring the bot's own template.
func (m *SMTPMailer) invoiceBody(inv invoice.Invoice) string {
	tmpl := m.cfg.InvoiceTemplate
	if tmpl == "" {
		tmpl = invoiceBodyTemplate
	}
	return renderTemplate(tmpl, inv, m.cfg.Company)
}

func (m *SMTPMailer) confirmationBody(inv invoice.Invoice) string {
	tmpl := m.cfg.ConfirmationTemplate
	if tmpl == "" {
		tmpl = confirmationBodyTemplate
	}
	return renderTemplate(tmpl, inv, m.cfg.Company)
}

func (m *SMTPMailer) newMessage(inv invoice.Invoice, recipients []string, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(recipients...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

func (m *SMTPMailer) deliver(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return err
	}
	logger.DebugCF(componentMailer, "email delivered", map[string]interface{}{
		"host": m.cfg.Host,
	})
	return nil
}

// renderTemplate substitutes the body placeholders from the invoice.
func renderTemplate(tmpl string, inv invoice.Invoice, company string) string {
	r := strings.NewReplacer(
		"{invoiceNumber}", inv.Number,
		"{clientName}", inv.ClientName,
		"{description}", inv.Description,
		"{amount}", money.FormatEUR(inv.TotalTTC),
		"{companyName}", company,
	)
	return r.Replace(tmpl)
}
