package llms

import (
	"strings"

	"github.com/XiaoConstantine/anthropic-go/anthropic"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
)

// NewLLM creates a completion backend from a model ID.
//
// Supported formats:
//  1. ollama:<model_name> - default Ollama host (localhost:11434)
//  2. ollama:<host>:<model_name> or ollama:<host>:<port>:<model_name>
//  3. ollama:http(s)://<host>:<port>:<model_name>
//  4. openrouter:<model_name>
//  5. anthropic:<model_name> or a bare claude-* model name
func NewLLM(apiKey, modelID string) (core.LLM, error) {
	switch {
	case strings.HasPrefix(modelID, "ollama:"):
		host, model, err := parseOllamaID(modelID)
		if err != nil {
			return nil, err
		}
		return NewOllamaLLM(host, model)

	case strings.HasPrefix(modelID, "openrouter:"):
		model := strings.TrimPrefix(modelID, "openrouter:")
		if model == "" {
			return nil, errors.New(errors.InvalidInput, "invalid OpenRouter model ID format. Use 'openrouter:<model_name>'")
		}
		return NewOpenRouterLLM(apiKey, model)

	case strings.HasPrefix(modelID, "anthropic:"):
		model := strings.TrimPrefix(modelID, "anthropic:")
		if model == "" {
			return nil, errors.New(errors.InvalidInput, "invalid Anthropic model ID format. Use 'anthropic:<model_name>'")
		}
		return NewAnthropicLLM(apiKey, anthropic.ModelID(model))

	case strings.HasPrefix(modelID, "claude-"):
		return NewAnthropicLLM(apiKey, anthropic.ModelID(modelID))
	}

	return nil, errors.WithFields(
		errors.New(errors.InvalidInput, "unsupported model ID"),
		errors.Fields{"model_id": modelID})
}

// NewEmbedder creates an embedding backend from a model ID. Only Ollama
// serves embeddings.
func NewEmbedder(modelID string) (core.Embedder, error) {
	if !strings.HasPrefix(modelID, "ollama:") {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unsupported embedding model ID"),
			errors.Fields{"model_id": modelID})
	}
	host, model, err := parseOllamaID(modelID)
	if err != nil {
		return nil, err
	}
	return NewOllamaLLM(host, model)
}

func parseOllamaID(modelID string) (host, model string, err error) {
	input := strings.TrimPrefix(modelID, "ollama:")
	invalid := errors.WithFields(
		errors.New(errors.InvalidInput, "invalid Ollama model ID format. Use 'ollama:<model_name>' or 'ollama:<host>:<model_name>'"),
		errors.Fields{"model_id": modelID})

	if !strings.Contains(input, ":") {
		if input == "" {
			return "", "", invalid
		}
		return defaultOllamaEndpoint, input, nil
	}

	idx := strings.LastIndex(input, ":")
	if idx <= 0 || idx == len(input)-1 {
		return "", "", invalid
	}
	host, model = input[:idx], input[idx+1:]
	if host == "" || model == "" || host == "http" || host == "https" {
		return "", "", invalid
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return host, model, nil
}
