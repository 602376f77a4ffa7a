package invoice

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Ledger assigns invoice numbers and records issued invoices. Numbers are
// sequential per prefix and never reused, including across restarts.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB
}

func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS invoice_sequences (
	prefix TEXT PRIMARY KEY,
	next   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS invoices (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	number       TEXT NOT NULL UNIQUE,
	bot_id       TEXT NOT NULL,
	client_name  TEXT NOT NULL,
	client_email TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	unit_price   REAL NOT NULL,
	total_ht     REAL NOT NULL,
	tax_rate_pct REAL NOT NULL,
	tax_amount   REAL NOT NULL,
	total_ttc    REAL NOT NULL,
	company_name TEXT NOT NULL DEFAULT '',
	issued_at    TIMESTAMP NOT NULL,
	pdf_path     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_invoices_bot ON invoices(bot_id);
`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

// NextNumber reserves and returns the next invoice number for prefix, e.g.
// "FAC-000042". The reservation is durable before it is returned.
func (l *Ledger) NextNumber(ctx context.Context, prefix string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin sequence tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO invoice_sequences (prefix, next) VALUES (?, 1)
		 ON CONFLICT(prefix) DO NOTHING`, prefix); err != nil {
		return "", fmt.Errorf("seed sequence: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE invoice_sequences SET next = next + 1 WHERE prefix = ? RETURNING next - 1`,
		prefix).Scan(&seq); err != nil {
		return "", fmt.Errorf("advance sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit sequence: %w", err)
	}
	return fmt.Sprintf("%s%06d", prefix, seq), nil
}

// Record persists an issued invoice.
func (l *Ledger) Record(ctx context.Context, inv Invoice) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO invoices
		 (number, bot_id, client_name, client_email, description, quantity,
		  unit_price, total_ht, tax_rate_pct, tax_amount, total_ttc,
		  company_name, issued_at, pdf_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.Number, inv.BotID, inv.ClientName, inv.ClientEmail, inv.Description,
		inv.Quantity, inv.UnitPrice, inv.TotalHT, inv.TaxRatePct, inv.TaxAmount,
		inv.TotalTTC, inv.CompanyName, inv.IssuedAt, inv.PDFPath)
	if err != nil {
		return fmt.Errorf("record invoice %s: %w", inv.Number, err)
	}
	return nil
}

// ListByBot returns a bot's issued invoices, newest first.
func (l *Ledger) ListByBot(ctx context.Context, botID string, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT number, bot_id, client_name, client_email, description, quantity,
		        unit_price, total_ht, tax_rate_pct, tax_amount, total_ttc,
		        company_name, issued_at, pdf_path
		 FROM invoices WHERE bot_id = ? ORDER BY id DESC LIMIT ?`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.Number, &inv.BotID, &inv.ClientName, &inv.ClientEmail,
			&inv.Description, &inv.Quantity, &inv.UnitPrice, &inv.TotalHT,
			&inv.TaxRatePct, &inv.TaxAmount, &inv.TotalTTC, &inv.CompanyName,
			&inv.IssuedAt, &inv.PDFPath); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (l *Ledger) Close() error { return l.db.Close() }
