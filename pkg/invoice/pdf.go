package invoice

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/voxbill/voxbill/pkg/money"
)

// Renderer produces the invoice document and returns the path written.
type Renderer interface {
	Render(inv Invoice) (string, error)
}

var _ Renderer = (*PDFRenderer)(nil)

// PDFRenderer writes A4 invoice PDFs under outDir.
type PDFRenderer struct {
	outDir string
}

func NewPDFRenderer(outDir string) *PDFRenderer {
	return &PDFRenderer{outDir: outDir}
}

func (r *PDFRenderer) Render(inv Invoice) (string, error) {
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create invoice dir: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Header
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(inv.CompanyName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(40, 40, 40)
	pdf.CellFormat(0, 14, "FACTURE", "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 6, tr("Numéro : "+inv.Number), "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, tr("Date : "+inv.IssuedAt.Format("02/01/2006")), "", 1, "R", false, 0, "")
	pdf.Ln(8)

	// Client block
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, tr("Facturé à :"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, tr(inv.ClientName), "", 1, "L", false, 0, "")
	if inv.ClientEmail != "" {
		pdf.CellFormat(0, 6, tr(inv.ClientEmail), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	// Line-item table
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(95, 8, tr("Désignation"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, tr("Quantité"), "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 8, tr("Prix unitaire HT"), "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, tr("Total HT"), "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(95, 8, tr(inv.Description), "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, strconv.Itoa(inv.Quantity), "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 8, tr(money.FormatEUR(inv.UnitPrice)), "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, tr(money.FormatEUR(inv.TotalHT)), "1", 1, "R", false, 0, "")
	pdf.Ln(6)

	// Totals
	pdf.SetX(120)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(35, 7, tr("Total HT"), "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, tr(money.FormatEUR(inv.TotalHT)), "", 1, "R", false, 0, "")
	pdf.SetX(120)
	pdf.CellFormat(35, 7, tr("TVA "+money.FormatPct(inv.TaxRatePct)), "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, tr(money.FormatEUR(inv.TaxAmount)), "", 1, "R", false, 0, "")
	pdf.SetX(120)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(35, 8, tr("Total TTC"), "T", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, tr(money.FormatEUR(inv.TotalTTC)), "T", 1, "R", false, 0, "")

	// Footer
	pdf.SetY(-30)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, tr("Facture générée automatiquement par "+inv.CompanyName), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, tr("Merci de votre confiance."), "", 1, "C", false, 0, "")

	path := filepath.Join(r.outDir, inv.Number+".pdf")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf %s: %w", path, err)
	}
	return path, nil
}
