package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
)

// OpenRouterLLM implements the core.LLM interface for OpenRouter-hosted models.
type OpenRouterLLM struct {
	*BaseLLM
	logger *slog.Logger
}

var _ core.LLM = (*OpenRouterLLM)(nil)

// The base URL for the OpenRouter API
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewOpenRouterLLM creates a new OpenRouterLLM instance.
func NewOpenRouterLLM(apiKey string, modelName string) (*OpenRouterLLM, error) {
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "OpenRouter API key is required")
	}
	if modelName == "" {
		return nil, errors.New(errors.InvalidInput, "OpenRouter model name is required")
	}

	endpointCfg := &EndpointConfig{
		BaseURL: openRouterBaseURL,
		Path:    "/chat/completions",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + strings.TrimSpace(apiKey),
		},
		TimeoutSec: 10 * 60,
	}

	return &OpenRouterLLM{
		BaseLLM: NewBaseLLM("openrouter", modelName, endpointCfg),
		logger:  slog.Default(),
	}, nil
}

// WithLogger sets the logger used for rate-limit diagnostics.
func (o *OpenRouterLLM) WithLogger(logger *slog.Logger) *OpenRouterLLM {
	if logger != nil {
		o.logger = logger
	}
	return o
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponse struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Choices []choice         `json:"choices"`
	Usage   usageInfo        `json:"usage"`
	Error   *openRouterError `json:"error,omitempty"`
}

type choice struct {
	Index        int               `json:"index"`
	Message      openRouterMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type usageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openRouterError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// formatResetTime renders a millisecond reset timestamp as hours from now.
func formatResetTime(resetTimeMs string) string {
	resetMs, err := strconv.ParseInt(resetTimeMs, 10, 64)
	if err != nil {
		return fmt.Sprintf("unknown (parse error: %v)", err)
	}
	resetTime := time.UnixMilli(resetMs)
	hours := time.Until(resetTime).Hours()
	if hours < 0 {
		return "already passed"
	}
	return fmt.Sprintf("%.2f hours (resets at %s)", hours, resetTime.Format("2006-01-02 15:04:05 MST"))
}

// Generate implements the core.LLM interface.
func (o *OpenRouterLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	jsonData, err := json.Marshal(openRouterRequest{
		Model:       o.ModelID(),
		Messages:    []openRouterMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
	})
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to marshal request body"),
			errors.Fields{"model": o.ModelID()})
	}

	endpoint := o.GetEndpointConfig()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.BaseURL+endpoint.Path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to create request"),
			errors.Fields{"model": o.ModelID()})
	}
	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}

	resp, err := o.GetHTTPClient().Do(req)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to send request to OpenRouter API"),
			errors.Fields{"model": o.ModelID()})
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to read response body"),
			errors.Fields{"model": o.ModelID()})
	}

	limit := resp.Header.Get("X-RateLimit-Limit")
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	reset := resp.Header.Get("X-RateLimit-Reset")
	if remaining != "" {
		o.logger.Debug("openrouter rate limit",
			"model", o.ModelID(), "limit", limit, "remaining", remaining, "reset", reset)
	}

	if resp.StatusCode != http.StatusOK {
		fields := errors.Fields{"model": o.ModelID(), "status_code": resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || remaining == "0" {
			fields["reset_in"] = formatResetTime(reset)
		}
		return nil, errors.WithFields(
			errors.New(errors.LLMGenerationFailed, fmt.Sprintf("OpenRouter API returned non-200 status code: %d, body: %s", resp.StatusCode, truncate(string(bodyBytes), 200))),
			fields)
	}

	var openRouterResp openRouterResponse
	if err := json.Unmarshal(bodyBytes, &openRouterResp); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to decode response from OpenRouter API"),
			errors.Fields{"model": o.ModelID()})
	}

	if openRouterResp.Error != nil {
		return nil, errors.WithFields(
			errors.New(errors.LLMGenerationFailed, fmt.Sprintf("OpenRouter API returned error: %s", openRouterResp.Error.Message)),
			errors.Fields{"model": o.ModelID(), "error_code": openRouterResp.Error.Code})
	}

	if len(openRouterResp.Choices) == 0 {
		fields := errors.Fields{"model": o.ModelID()}
		if remaining == "0" {
			fields["reset_in"] = formatResetTime(reset)
		}
		return nil, errors.WithFields(
			errors.New(errors.LLMGenerationFailed, "OpenRouter API returned no choices"),
			fields)
	}

	return &core.LLMResponse{
		Content: openRouterResp.Choices[0].Message.Content,
		Usage: &core.TokenInfo{
			PromptTokens:     openRouterResp.Usage.PromptTokens,
			CompletionTokens: openRouterResp.Usage.CompletionTokens,
			TotalTokens:      openRouterResp.Usage.TotalTokens,
		},
	}, nil
}
