package core

import "context"

// LLM is the text-completion collaborator.
type LLM interface {
	// Generate returns the completion of prompt.
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*LLMResponse, error)

	// ModelID identifies the backing model.
	ModelID() string
}

// Embedder is the embedding collaborator.
type Embedder interface {
	// CreateEmbedding embeds a single input.
	CreateEmbedding(ctx context.Context, input string, options ...EmbeddingOption) (*EmbeddingResult, error)

	// CreateEmbeddings embeds inputs in order. A failure on any input is
	// reported through BatchEmbeddingResult.Error.
	CreateEmbeddings(ctx context.Context, inputs []string, options ...EmbeddingOption) (*BatchEmbeddingResult, error)
}

// LLMResponse is the result of a completion call.
type LLMResponse struct {
	Content string
	Usage   *TokenInfo
}

// TokenInfo reports token accounting when the backend provides it.
type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateOptions holds per-call completion settings.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// GenerateOption configures a completion call.
type GenerateOption func(*GenerateOptions)

// NewGenerateOptions returns the default completion settings.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxTokens:   2048,
		Temperature: 0.0,
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = t }
}

// WithStopSequences sets stop sequences.
func WithStopSequences(stop ...string) GenerateOption {
	return func(o *GenerateOptions) { o.Stop = stop }
}

// EmbeddingResult is one embedding vector.
type EmbeddingResult struct {
	Vector     []float32
	TokenCount int
	Metadata   map[string]any
}

// BatchEmbeddingResult holds the vectors of a batch, in input order.
type BatchEmbeddingResult struct {
	Embeddings []EmbeddingResult
	Error      error
	ErrorIndex int
}

// EmbeddingOptions holds per-call embedding settings.
type EmbeddingOptions struct {
	Model  string
	Params map[string]any
}

// EmbeddingOption configures an embedding call.
type EmbeddingOption func(*EmbeddingOptions)

// NewEmbeddingOptions returns empty embedding settings.
func NewEmbeddingOptions() *EmbeddingOptions {
	return &EmbeddingOptions{Params: map[string]any{}}
}

// WithEmbeddingModel overrides the embedding model for one call.
func WithEmbeddingModel(model string) EmbeddingOption {
	return func(o *EmbeddingOptions) { o.Model = model }
}

// WithEmbeddingParams passes backend-specific parameters.
func WithEmbeddingParams(params map[string]any) EmbeddingOption {
	return func(o *EmbeddingOptions) {
		for k, v := range params {
			o.Params[k] = v
		}
	}
}
