package extract

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voxbill/voxbill/pkg/order"
)

var _ Extractor = (*AnthropicExtractor)(nil)

// AnthropicExtractor runs extraction against the Anthropic Messages API.
type AnthropicExtractor struct {
	client anthropic.Client
	model  anthropic.Model
	prompt Prompt
}

func NewAnthropicExtractor(apiKey, model string, prompt Prompt) *AnthropicExtractor {
	return &AnthropicExtractor{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		prompt: prompt,
	}
}

func (a *AnthropicExtractor) Extract(ctx context.Context, utterance string, existing *order.Fields) (Analysis, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 800,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(a.prompt.build(utterance, existing))),
		},
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("anthropic message: %w", err)
	}
	if len(resp.Content) == 0 {
		return Analysis{}, fmt.Errorf("anthropic returned no content")
	}
	return decodeAnalysis(resp.Content[0].Text)
}
