package extract

import (
	"fmt"
	"strings"

	"github.com/voxbill/voxbill/pkg/order"
)

const defaultSystemInstruction = `Tu es un assistant de facturation. Analyse le message de l'utilisateur et réponds UNIQUEMENT avec un objet JSON, sans texte autour, au format exact :
{
  "coherenceScore": <entier de 0 à 100, cohérence du message>,
  "isGibberish": <true si le message est du charabia ou inintelligible>,
  "isInvoiceIntent": <true si le message demande de créer ou compléter une facture>,
  "missingFields": [<parmi "clientName", "description", "amount">],
  "data": {
    "clientName": "<nom du client, ou chaîne vide>",
    "description": "<description de la prestation, ou chaîne vide>",
    "amount": <montant unitaire hors taxes en euros, ou 0>,
    "clientEmail": "<email du client, ou chaîne vide>"
  },
  "aiQuestion": "<question en français pour obtenir les informations manquantes, ou chaîne vide>"
}
Ne devine jamais une valeur absente du message : laisse le champ vide ou à 0.`

// Prompt carries a bot's prompt customization. The zero value falls back to
// the built-in instruction with no extra knowledge.
type Prompt struct {
	// System replaces the built-in system instruction when non-empty.
	System string
	// Knowledge is free-form business context appended to the instruction
	// (rates, service catalogue, client aliases).
	Knowledge string
}

// build assembles the provider prompt for one utterance. When an order is
// already in flight its known fields are given as context so the model only
// extracts what the new utterance adds.
func (p Prompt) build(utterance string, existing *order.Fields) string {
	var b strings.Builder
	if p.System != "" {
		b.WriteString(p.System)
	} else {
		b.WriteString(defaultSystemInstruction)
	}
	if p.Knowledge != "" {
		b.WriteString("\n\nContexte métier :\n")
		b.WriteString(p.Knowledge)
	}
	if existing != nil {
		b.WriteString("\n\nInformations déjà connues pour la facture en cours :\n")
		if existing.ClientName != "" {
			fmt.Fprintf(&b, "- Client : %s\n", existing.ClientName)
		}
		if existing.Description != "" {
			fmt.Fprintf(&b, "- Prestation : %s\n", existing.Description)
		}
		if existing.Amount > 0 {
			fmt.Fprintf(&b, "- Montant HT : %.2f EUR\n", existing.Amount)
		}
		if existing.ClientEmail != "" {
			fmt.Fprintf(&b, "- Email : %s\n", existing.ClientEmail)
		}
		b.WriteString("N'extrais que les informations nouvelles ou corrigées du message.")
	}
	b.WriteString("\n\nMessage de l'utilisateur :\n")
	b.WriteString(utterance)
	return b.String()
}
