package extract

import (
	"context"
	"strings"
	"time"

	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/money"
	"github.com/voxbill/voxbill/pkg/order"
)

const componentExtract = "extract"

// minCoherence is the score below which an utterance is treated as unusable.
const minCoherence = 40

const providerTimeout = 15 * time.Second

var confirmKeywords = []string{"oui", "ok", "yes", "confirmer", "valider", "c'est bon", "parfait"}
var cancelKeywords = []string{"non", "no", "annuler", "cancel", "stop"}

const (
	msgInvalid    = "Je n'ai pas bien compris votre message. Pouvez-vous reformuler votre demande de facture ?"
	msgNotInvoice = "Je suis un assistant de facturation. Envoyez-moi un message vocal décrivant la facture à créer : le client, la prestation et le montant."
	msgCancelled  = "Commande annulée."
	msgError      = "Une erreur est survenue lors du traitement de votre demande. Veuillez réessayer."
)

// fieldLabels maps missing-field keys to their French labels for follow-up
// questions.
var fieldLabels = map[string]string{
	"client_name": "le nom du client",
	"description": "la description de la prestation",
	"amount":      "le montant",
}

// Analyzer applies the conversation policy on top of a provider: keyword
// short-circuit, coherence gate, intent gate, monotonic merge, completeness.
type Analyzer struct {
	provider Extractor
	timeout  time.Duration
}

func NewAnalyzer(provider Extractor) *Analyzer {
	return &Analyzer{provider: provider, timeout: providerTimeout}
}

// Analyze resolves one utterance against the sender's existing order (nil
// when none). The returned Result never mutates stored state itself; the
// flow controller owns persistence.
func (a *Analyzer) Analyze(ctx context.Context, utterance string, existing *order.Order) Result {
	// Confirmation keywords are only binding while a recap is on the table.
	// Outside pending_confirmation, "ok" is just another utterance.
	if existing != nil && existing.State == order.StatePendingConfirmation {
		switch {
		case matchesKeyword(utterance, confirmKeywords):
			fields := existing.Fields
			return Result{Status: StatusConfirmed, Fields: &fields}
		case matchesKeyword(utterance, cancelKeywords):
			return Result{Status: StatusCancelled, UserMessage: msgCancelled}
		}
	}

	var existingFields *order.Fields
	if existing != nil {
		f := existing.Fields
		existingFields = &f
	}

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	analysis, err := a.provider.Extract(cctx, utterance, existingFields)
	if err != nil {
		logger.WarnCF(componentExtract, "provider call failed", map[string]interface{}{
			"error": err.Error(),
		})
		return Result{Status: StatusError, UserMessage: msgError}
	}

	if analysis.IsGibberish || analysis.CoherenceScore < minCoherence {
		return Result{Status: StatusInvalid, UserMessage: msgInvalid}
	}

	if !analysis.IsInvoiceIntent && existing == nil {
		return Result{Status: StatusNotInvoice, UserMessage: msgNotInvoice}
	}

	base := order.NewFields()
	if existing != nil {
		base = existing.Fields
	}
	merged := order.Merge(base, analysis.Fields)

	if merged.Complete() {
		fields := merged
		return Result{
			Status:      StatusPendingConfirmation,
			Fields:      &fields,
			UserMessage: Recap(merged),
		}
	}

	fields := merged
	return Result{
		Status:      StatusIncomplete,
		Fields:      &fields,
		UserMessage: followupMessage(analysis.FollowupQuestion, merged),
	}
}

// Recap renders the confirmation summary shown before generating an invoice.
// The amount shown is always tax inclusive.
func Recap(f order.Fields) string {
	var b strings.Builder
	b.WriteString("📋 Récapitulatif de la facture :\n")
	b.WriteString("• Client : " + f.ClientName + "\n")
	b.WriteString("• Prestation : " + f.Description + "\n")
	b.WriteString("• Montant TTC : " + money.FormatEUR(f.TotalTTC()) + "\n\n")
	b.WriteString("Confirmez-vous la création de cette facture ? (oui / non)")
	return b.String()
}

func followupMessage(question string, f order.Fields) string {
	if question != "" {
		return question
	}
	missing := f.Missing()
	labels := make([]string, 0, len(missing))
	for _, m := range missing {
		labels = append(labels, fieldLabels[m])
	}
	return "Il me manque encore " + joinFr(labels) + " pour créer la facture. Pouvez-vous préciser ?"
}

// joinFr joins French labels with commas and a final "et".
func joinFr(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " et " + items[len(items)-1]
}

// matchesKeyword reports whether the lowered utterance contains one of the
// keywords. Substring matching on purpose: "oui je confirme" confirms,
// "non merci" cancels.
func matchesKeyword(utterance string, keywords []string) bool {
	norm := strings.ToLower(utterance)
	for _, k := range keywords {
		if strings.Contains(norm, k) {
			return true
		}
	}
	return false
}
