// Package order holds the per-sender pending invoice order: its fields, the
// monotonic merge rule, the completeness predicate, and the Store port with
// in-memory and Redis implementations. Stores are scoped per bot runtime —
// two bots never share pending state.
package order

import (
	"time"
)

// State is a stored order's sub-state. Confirmed, cancelled, invalid and
// not-invoice are transient outcomes, never stored.
type State string

const (
	StateIncomplete          State = "incomplete"
	StatePendingConfirmation State = "pending_confirmation"
)

const (
	DefaultQuantity   = 1
	DefaultTaxRatePct = 20.0
)

// Fields are the extracted invoice fields. ClientEmail is optional and never
// blocks completion.
type Fields struct {
	ClientName  string  `json:"client_name,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	ClientEmail string  `json:"client_email,omitempty"`
	Quantity    int     `json:"quantity"`
	TaxRatePct  float64 `json:"tax_rate_pct"`
}

// NewFields returns empty fields with the quantity and tax defaults applied.
func NewFields() Fields {
	return Fields{Quantity: DefaultQuantity, TaxRatePct: DefaultTaxRatePct}
}

// Merge applies extracted on top of existing under the monotonic-additive
// rule: an extracted value wins only when present (non-empty, amount > 0);
// otherwise the existing value survives. Quantity and tax rate keep their
// defaults once any extraction occurred.
func Merge(existing, extracted Fields) Fields {
	out := existing

	if extracted.ClientName != "" {
		out.ClientName = extracted.ClientName
	}
	if extracted.Description != "" {
		out.Description = extracted.Description
	}
	if extracted.Amount > 0 {
		out.Amount = extracted.Amount
	}
	if extracted.ClientEmail != "" {
		out.ClientEmail = extracted.ClientEmail
	}

	if out.Quantity <= 0 {
		out.Quantity = DefaultQuantity
	}
	if out.TaxRatePct <= 0 {
		out.TaxRatePct = DefaultTaxRatePct
	}
	return out
}

// Complete reports whether the three required fields are all present.
func (f Fields) Complete() bool {
	return f.ClientName != "" && f.Description != "" && f.Amount > 0
}

// Missing lists the required fields still absent, in presentation order.
func (f Fields) Missing() []string {
	var missing []string
	if f.ClientName == "" {
		missing = append(missing, "client_name")
	}
	if f.Description == "" {
		missing = append(missing, "description")
	}
	if f.Amount <= 0 {
		missing = append(missing, "amount")
	}
	return missing
}

// TotalHT is the pre-tax total.
func (f Fields) TotalHT() float64 {
	qty := f.Quantity
	if qty <= 0 {
		qty = DefaultQuantity
	}
	return f.Amount * float64(qty)
}

// TotalTTC is the tax-inclusive total. User-facing recaps always show this,
// never the bare unit amount.
func (f Fields) TotalTTC() float64 {
	return f.TotalHT() * (1 + f.TaxRatePct/100)
}

// Order is one sender's in-flight invoice order. At most one exists per
// sender key at any time.
type Order struct {
	SenderKey string    `json:"sender_key"` // normalized phone number
	State     State     `json:"state"`
	Fields    Fields    `json:"fields"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an order in the incomplete state.
func New(senderKey string, fields Fields) *Order {
	return &Order{
		SenderKey: senderKey,
		State:     StateIncomplete,
		Fields:    fields,
		UpdatedAt: time.Now().UTC(),
	}
}

// Touch refreshes the idle-expiry clock.
func (o *Order) Touch() { o.UpdatedAt = time.Now().UTC() }

// ExpiredAt reports whether the order has been idle longer than ttl as of
// now. A zero ttl disables expiry.
func (o *Order) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(o.UpdatedAt) > ttl
}
