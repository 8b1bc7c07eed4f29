package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
)

const defaultOllamaEndpoint = "http://localhost:11434"

// OllamaLLM implements core.LLM and core.Embedder for Ollama-hosted models.
type OllamaLLM struct {
	*BaseLLM
}

var (
	_ core.LLM      = (*OllamaLLM)(nil)
	_ core.Embedder = (*OllamaLLM)(nil)
)

// NewOllamaLLM creates a new OllamaLLM instance.
func NewOllamaLLM(endpoint, model string) (*OllamaLLM, error) {
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	if model == "" {
		return nil, errors.New(errors.InvalidInput, "Ollama model name is required")
	}
	endpointCfg := &EndpointConfig{
		BaseURL: strings.TrimSuffix(endpoint, "/"),
		Path:    "api/generate",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		TimeoutSec: 10 * 60,
	}

	return &OllamaLLM{
		BaseLLM: NewBaseLLM("ollama", model, endpointCfg),
	}, nil
}

func (o *OllamaLLM) post(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to marshal request body"),
			errors.Fields{"model": o.ModelID()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.GetEndpointConfig().BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to create request"),
			errors.Fields{"model": o.ModelID()})
	}
	for key, value := range o.GetEndpointConfig().Headers {
		req.Header.Set(key, value)
	}

	resp, err := o.GetHTTPClient().Do(req)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to send request"),
			errors.Fields{"model": o.ModelID()})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to read response body"),
			errors.Fields{"model": o.ModelID()})
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithFields(
			errors.New(errors.LLMGenerationFailed, fmt.Sprintf("API request failed with status code %d", resp.StatusCode)),
			errors.Fields{
				"model":         o.ModelID(),
				"status_code":   resp.StatusCode,
				"response_body": truncate(string(body), 200),
			})
	}
	return body, nil
}

// Generate implements the core.LLM interface.
func (o *OllamaLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	stream := false
	reqOptions := map[string]any{
		"num_predict": opts.MaxTokens,
		"temperature": opts.Temperature,
	}
	if len(opts.Stop) > 0 {
		reqOptions["stop"] = opts.Stop
	}

	body, err := o.post(ctx, "/api/generate", api.GenerateRequest{
		Model:   o.ModelID(),
		Prompt:  prompt,
		Stream:  &stream,
		Options: reqOptions,
	})
	if err != nil {
		return nil, err
	}

	var ollamaResp api.GenerateResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to unmarshal response"),
			errors.Fields{
				"resp":  truncate(string(body), 50),
				"model": o.ModelID(),
			})
	}

	return &core.LLMResponse{
		Content: ollamaResp.Response,
		Usage: &core.TokenInfo{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}, nil
}

// CreateEmbedding generates the embedding of a single input.
func (o *OllamaLLM) CreateEmbedding(ctx context.Context, input string, options ...core.EmbeddingOption) (*core.EmbeddingResult, error) {
	opts := core.NewEmbeddingOptions()
	for _, opt := range options {
		opt(opts)
	}
	model := o.ModelID()
	if opts.Model != "" {
		model = opts.Model
	}

	body, err := o.post(ctx, "/api/embeddings", api.EmbeddingRequest{
		Model:   model,
		Prompt:  input,
		Options: opts.Params,
	})
	if err != nil {
		return nil, err
	}

	var ollamaResp api.EmbeddingResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "failed to unmarshal embedding response"),
			errors.Fields{"model": model})
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.LLMGenerationFailed, "empty embedding"),
			errors.Fields{"model": model})
	}

	// Ollama returns float64 components.
	vector := make([]float32, len(ollamaResp.Embedding))
	for i, v := range ollamaResp.Embedding {
		vector[i] = float32(v)
	}

	return &core.EmbeddingResult{
		Vector: vector,
		Metadata: map[string]any{
			"model":          model,
			"embedding_size": len(vector),
		},
	}, nil
}

// CreateEmbeddings embeds inputs one request at a time; Ollama has no batch
// endpoint. It stops at the first failure.
func (o *OllamaLLM) CreateEmbeddings(ctx context.Context, inputs []string, options ...core.EmbeddingOption) (*core.BatchEmbeddingResult, error) {
	results := make([]core.EmbeddingResult, 0, len(inputs))
	for i, input := range inputs {
		result, err := o.CreateEmbedding(ctx, input, options...)
		if err != nil {
			return &core.BatchEmbeddingResult{
				Embeddings: results,
				Error:      errors.WithFields(err, errors.Fields{"batch_index": i}),
				ErrorIndex: i,
			}, nil
		}
		result.Metadata["batch_index"] = i
		results = append(results, *result)
	}

	return &core.BatchEmbeddingResult{
		Embeddings: results,
		ErrorIndex: -1,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
