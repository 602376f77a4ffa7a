// Package invoice numbers, records and renders invoices. Numbering and the
// issued-invoice ledger live in SQLite; rendering produces an A4 PDF.
package invoice

import (
	"time"

	"github.com/voxbill/voxbill/pkg/order"
)

// Invoice is one issued invoice, fully computed and ready to render.
type Invoice struct {
	Number      string    `json:"number"`
	BotID       string    `json:"bot_id"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email,omitempty"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	TotalHT     float64   `json:"total_ht"`
	TaxRatePct  float64   `json:"tax_rate_pct"`
	TaxAmount   float64   `json:"tax_amount"`
	TotalTTC    float64   `json:"total_ttc"`
	CompanyName string    `json:"company_name"`
	IssuedAt    time.Time `json:"issued_at"`
	PDFPath     string    `json:"pdf_path,omitempty"`
}

// Build computes an invoice from confirmed order fields. The number is
// assigned separately by the ledger.
func Build(botID, companyName string, f order.Fields) Invoice {
	qty := f.Quantity
	if qty <= 0 {
		qty = order.DefaultQuantity
	}
	totalHT := f.TotalHT()
	tax := totalHT * f.TaxRatePct / 100
	return Invoice{
		BotID:       botID,
		ClientName:  f.ClientName,
		ClientEmail: f.ClientEmail,
		Description: f.Description,
		Quantity:    qty,
		UnitPrice:   f.Amount,
		TotalHT:     totalHT,
		TaxRatePct:  f.TaxRatePct,
		TaxAmount:   tax,
		TotalTTC:    totalHT + tax,
		CompanyName: companyName,
		IssuedAt:    time.Now().UTC(),
	}
}
