package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voxbill/voxbill/pkg/order"
)

func TestPromptDefaults(t *testing.T) {
	p := Prompt{}
	out := p.build("une facture pour Dupont", nil)
	assert.Contains(t, out, "assistant de facturation")
	assert.Contains(t, out, "coherenceScore")
	assert.Contains(t, out, "une facture pour Dupont")
	assert.NotContains(t, out, "Contexte métier")
}

func TestPromptCustomSystemAndKnowledge(t *testing.T) {
	p := Prompt{
		System:    "Tu factures uniquement des prestations de plomberie.",
		Knowledge: "Tarif horaire standard : 65 EUR HT.",
	}
	out := p.build("dépannage chez Martin", nil)
	assert.Contains(t, out, "plomberie")
	assert.Contains(t, out, "Tarif horaire standard")
	assert.NotContains(t, out, "assistant de facturation")
}

func TestPromptIncludesKnownFields(t *testing.T) {
	f := order.NewFields()
	f.ClientName = "Dupont SARL"
	f.Amount = 1500

	out := Prompt{}.build("ajoute une description", &f)
	assert.Contains(t, out, "Dupont SARL")
	assert.Contains(t, out, "1500.00 EUR")
	assert.Contains(t, out, "informations nouvelles")
}
