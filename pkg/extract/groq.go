package extract

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/voxbill/voxbill/pkg/order"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

var _ Extractor = (*GroqExtractor)(nil)

// GroqExtractor runs extraction against Groq's OpenAI-compatible chat API.
type GroqExtractor struct {
	client openai.Client
	model  string
	prompt Prompt
}

func NewGroqExtractor(apiKey, model string, prompt Prompt) *GroqExtractor {
	return &GroqExtractor{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(groqBaseURL),
		),
		model:  model,
		prompt: prompt,
	}
}

func (g *GroqExtractor) Extract(ctx context.Context, utterance string, existing *order.Fields) (Analysis, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(g.prompt.build(utterance, existing)),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(800),
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("groq chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, fmt.Errorf("groq returned no choices")
	}
	return decodeAnalysis(resp.Choices[0].Message.Content)
}
