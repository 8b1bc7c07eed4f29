// Package testutil holds test doubles shared across packages.
package testutil

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/stretchr/testify/mock"
)

// MockLLM implements core.LLM for testing.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	args := m.Called(ctx, prompt)
	resp, _ := args.Get(0).(*core.LLMResponse)
	return resp, args.Error(1)
}

func (m *MockLLM) ModelID() string { return "mock-llm" }

// Reply builds a response carrying content.
func Reply(content string) *core.LLMResponse {
	return &core.LLMResponse{Content: content}
}

// Fenced wraps body in a ```json fence.
func Fenced(body string) string {
	return "```json\n" + body + "\n```"
}

// LLMFunc adapts a function to core.LLM and records every prompt.
type LLMFunc struct {
	Fn func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (f *LLMFunc) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	content, err := f.Fn(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &core.LLMResponse{Content: content}, nil
}

func (f *LLMFunc) ModelID() string { return "func-llm" }

// Prompts returns the prompts seen so far.
func (f *LLMFunc) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// KeywordEmbedder embeds text as counts of vocabulary terms plus one
// constant component, so related texts get high cosine similarity
// deterministically.
type KeywordEmbedder struct {
	Vocab []string
	// Fail, when set, makes any input containing it fail.
	Fail string

	calls atomic.Int64
	texts atomic.Int64
}

var _ core.Embedder = (*KeywordEmbedder)(nil)

// Calls returns how many backend calls were made.
func (k *KeywordEmbedder) Calls() int64 { return k.calls.Load() }

// Texts returns how many texts were embedded.
func (k *KeywordEmbedder) Texts() int64 { return k.texts.Load() }

// Vector returns the embedding of text.
func (k *KeywordEmbedder) Vector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(k.Vocab)+1)
	for i, term := range k.Vocab {
		vec[i] = float32(strings.Count(lower, strings.ToLower(term)))
	}
	vec[len(k.Vocab)] = 0.1
	return vec
}

func (k *KeywordEmbedder) embed(text string) (*core.EmbeddingResult, error) {
	k.texts.Add(1)
	if k.Fail != "" && strings.Contains(text, k.Fail) {
		return nil, &EmbedError{Text: text}
	}
	return &core.EmbeddingResult{Vector: k.Vector(text)}, nil
}

func (k *KeywordEmbedder) CreateEmbedding(ctx context.Context, input string, options ...core.EmbeddingOption) (*core.EmbeddingResult, error) {
	k.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return k.embed(input)
}

func (k *KeywordEmbedder) CreateEmbeddings(ctx context.Context, inputs []string, options ...core.EmbeddingOption) (*core.BatchEmbeddingResult, error) {
	k.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]core.EmbeddingResult, 0, len(inputs))
	for i, input := range inputs {
		r, err := k.embed(input)
		if err != nil {
			return &core.BatchEmbeddingResult{Embeddings: results, Error: err, ErrorIndex: i}, nil
		}
		results = append(results, *r)
	}
	return &core.BatchEmbeddingResult{Embeddings: results, ErrorIndex: -1}, nil
}

// EmbedError is returned for inputs matching KeywordEmbedder.Fail.
type EmbedError struct {
	Text string
}

func (e *EmbedError) Error() string { return "embedding failed for " + e.Text }

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
