package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/voxbill/voxbill/pkg/order"
)

// rawAnalysis is the wire schema the providers are prompted to produce.
// Pointer fields make missing keys detectable so validation can reject a
// partial response instead of guessing.
type rawAnalysis struct {
	CoherenceScore  *int     `json:"coherenceScore"`
	IsGibberish     *bool    `json:"isGibberish"`
	IsInvoiceIntent *bool    `json:"isInvoiceIntent"`
	MissingFields   []string `json:"missingFields"`
	Data            *rawData `json:"data"`
	AIQuestion      string   `json:"aiQuestion"`
}

type rawData struct {
	ClientName  string  `json:"clientName"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	ClientEmail string  `json:"clientEmail"`
}

// locateObject extracts the JSON object embedded in a model response. Models
// wrap the object in prose or code fences often enough that taking the
// outermost brace pair is the reliable move.
func locateObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in model response")
	}
	candidate := response[start : end+1]
	if !gjson.Valid(candidate) {
		return "", fmt.Errorf("malformed JSON in model response")
	}
	if !gjson.Parse(candidate).IsObject() {
		return "", fmt.Errorf("model response is not a JSON object")
	}
	return candidate, nil
}

// decodeAnalysis locates and decodes a provider response under strict
// validation. Any failure is a decode error; callers map that to the error
// outcome rather than acting on a guessed structure.
func decodeAnalysis(response string) (Analysis, error) {
	body, err := locateObject(response)
	if err != nil {
		return Analysis{}, err
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}

	if raw.CoherenceScore == nil {
		return Analysis{}, fmt.Errorf("analysis missing coherenceScore")
	}
	if *raw.CoherenceScore < 0 || *raw.CoherenceScore > 100 {
		return Analysis{}, fmt.Errorf("coherenceScore out of range: %d", *raw.CoherenceScore)
	}
	if raw.IsInvoiceIntent == nil {
		return Analysis{}, fmt.Errorf("analysis missing isInvoiceIntent")
	}

	a := Analysis{
		CoherenceScore:   *raw.CoherenceScore,
		IsInvoiceIntent:  *raw.IsInvoiceIntent,
		FollowupQuestion: strings.TrimSpace(raw.AIQuestion),
		Fields:           order.NewFields(),
	}
	if raw.IsGibberish != nil {
		a.IsGibberish = *raw.IsGibberish
	}
	if raw.Data != nil {
		a.Fields.ClientName = strings.TrimSpace(raw.Data.ClientName)
		a.Fields.Description = strings.TrimSpace(raw.Data.Description)
		a.Fields.ClientEmail = strings.TrimSpace(raw.Data.ClientEmail)
		if raw.Data.Amount > 0 {
			a.Fields.Amount = raw.Data.Amount
		}
	}
	return a, nil
}
