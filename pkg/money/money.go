// Package money formats euro amounts for user-facing French text and invoice
// documents.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var french = message.NewPrinter(language.French)

// FormatEUR renders v as a French-locale euro amount, e.g. "1 234,50 €".
func FormatEUR(v float64) string {
	return french.Sprintf("%.2f €", v)
}

// FormatPct renders a tax rate, e.g. "20 %".
func FormatPct(v float64) string {
	if v == float64(int(v)) {
		return french.Sprintf("%d %%", int(v))
	}
	return french.Sprintf("%.1f %%", v)
}
