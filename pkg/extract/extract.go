// Package extract turns one utterance (plus the sender's pending order, if
// any) into a structured result. Semantic understanding is delegated to a
// language-model provider behind the Extractor port; all merge, completeness
// and confirmation policy lives here.
package extract

import (
	"context"

	"github.com/voxbill/voxbill/pkg/order"
)

// Status is the outcome of analyzing one utterance.
type Status string

const (
	// StatusInvalid — the utterance is gibberish or too incoherent to use.
	StatusInvalid Status = "invalid"
	// StatusNotInvoice — coherent, but not an invoice request and no order exists.
	StatusNotInvoice Status = "not_invoice"
	// StatusIncomplete — an order exists or was created, required fields missing.
	StatusIncomplete Status = "incomplete"
	// StatusPendingConfirmation — all required fields present, awaiting oui/non.
	StatusPendingConfirmation Status = "pending_confirmation"
	// StatusConfirmed — the user confirmed the recap.
	StatusConfirmed Status = "confirmed"
	// StatusCancelled — the user cancelled.
	StatusCancelled Status = "cancelled"
	// StatusError — the provider failed; stored state must not change.
	StatusError Status = "error"
)

// Result is the analyzer's answer for one utterance.
type Result struct {
	Status Status
	// Fields is the merged snapshot. Nil for invalid, not_invoice, cancelled
	// and error outcomes.
	Fields *order.Fields
	// UserMessage is the reply to send back, empty when the caller composes
	// its own (confirmed).
	UserMessage string
}

// Analysis is the provider's structured verdict on one utterance.
type Analysis struct {
	CoherenceScore   int
	IsGibberish      bool
	IsInvoiceIntent  bool
	Fields           order.Fields
	FollowupQuestion string
}

// Extractor is the language-model collaborator port. Implementations must
// return a validated Analysis or an error — never a guessed partial result.
type Extractor interface {
	Extract(ctx context.Context, utterance string, existing *order.Fields) (Analysis, error)
}
