package llms

import (
	"context"
	"os"
	"strings"

	"github.com/XiaoConstantine/anthropic-go/anthropic"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
)

// AnthropicLLM implements the core.LLM interface for Anthropic models.
type AnthropicLLM struct {
	client *anthropic.Client
	model  anthropic.ModelID
}

var _ core.LLM = (*AnthropicLLM)(nil)

// NewAnthropicLLM creates a new AnthropicLLM. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func NewAnthropicLLM(apiKey string, model anthropic.ModelID) (*AnthropicLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "Anthropic API key is required")
	}

	client, err := anthropic.NewClient(anthropic.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to create Anthropic client")
	}
	return &AnthropicLLM{client: client, model: model}, nil
}

func (a *AnthropicLLM) ModelID() string { return string(a.model) }

// Generate implements the core.LLM interface.
func (a *AnthropicLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	params := &anthropic.MessageParams{
		Model: string(a.model),
		Messages: []anthropic.MessageParam{
			{
				Role: "user",
				Content: []anthropic.ContentBlock{
					{Type: "text", Text: prompt},
				},
			},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	resp, err := a.client.Messages().Create(ctx, params)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to generate response"),
			errors.Fields{"model": a.model})
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		sb.WriteString(block.Text)
	}

	return &core.LLMResponse{
		Content: sb.String(),
		Usage: &core.TokenInfo{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
