package llms

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/memory"
	"github.com/zeebo/blake3"
)

// CachedEmbedder serves embeddings from a memory.Store and falls back to the
// wrapped Embedder on a miss. Keys are derived from the model and a BLAKE3
// digest of the text.
type CachedEmbedder struct {
	next   core.Embedder
	store  memory.Store
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

var _ core.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next. model namespaces the cache keys.
func NewCachedEmbedder(next core.Embedder, store memory.Store, model string) *CachedEmbedder {
	return &CachedEmbedder{
		next:   next,
		store:  store,
		model:  model,
		logger: slog.Default(),
	}
}

// WithTTL expires cached vectors after ttl; zero keeps them forever.
func (c *CachedEmbedder) WithTTL(ttl time.Duration) *CachedEmbedder {
	c.ttl = ttl
	return c
}

func (c *CachedEmbedder) WithLogger(logger *slog.Logger) *CachedEmbedder {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *CachedEmbedder) cacheKey(model, text string) string {
	sum := blake3.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) modelFor(options []core.EmbeddingOption) string {
	opts := core.NewEmbeddingOptions()
	for _, opt := range options {
		opt(opts)
	}
	if opts.Model != "" {
		return opts.Model
	}
	return c.model
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	var vec []float32
	if err := c.store.Retrieve(ctx, key, &vec); err != nil {
		if !memory.IsNotFound(err) {
			c.logger.Warn("embedding cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return vec, len(vec) > 0
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	var opts []memory.StoreOption
	if c.ttl > 0 {
		opts = append(opts, memory.WithTTL(c.ttl))
	}
	if err := c.store.Store(ctx, key, vec, opts...); err != nil {
		c.logger.Warn("embedding cache write failed", "key", key, "error", err)
	}
}

// CreateEmbedding returns the cached vector of input or computes and caches it.
func (c *CachedEmbedder) CreateEmbedding(ctx context.Context, input string, options ...core.EmbeddingOption) (*core.EmbeddingResult, error) {
	key := c.cacheKey(c.modelFor(options), input)
	if vec, ok := c.lookup(ctx, key); ok {
		return &core.EmbeddingResult{Vector: vec, Metadata: map[string]any{"cached": true}}, nil
	}

	result, err := c.next.CreateEmbedding(ctx, input, options...)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, result.Vector)
	return result, nil
}

// CreateEmbeddings serves hits from the cache and sends only the misses to
// the wrapped Embedder, in one batch. Results keep input order.
func (c *CachedEmbedder) CreateEmbeddings(ctx context.Context, inputs []string, options ...core.EmbeddingOption) (*core.BatchEmbeddingResult, error) {
	model := c.modelFor(options)
	results := make([]core.EmbeddingResult, len(inputs))
	keys := make([]string, len(inputs))

	var missIdx []int
	var missInputs []string
	for i, input := range inputs {
		keys[i] = c.cacheKey(model, input)
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			results[i] = core.EmbeddingResult{Vector: vec, Metadata: map[string]any{"cached": true}}
			continue
		}
		missIdx = append(missIdx, i)
		missInputs = append(missInputs, input)
	}

	c.logger.Debug("embedding cache",
		"model", model, "hits", len(inputs)-len(missIdx), "misses", len(missIdx))

	if len(missInputs) > 0 {
		batch, err := c.next.CreateEmbeddings(ctx, missInputs, options...)
		if err != nil {
			return nil, err
		}
		if batch.Error != nil {
			errIdx := -1
			if batch.ErrorIndex >= 0 && batch.ErrorIndex < len(missIdx) {
				errIdx = missIdx[batch.ErrorIndex]
			}
			return &core.BatchEmbeddingResult{Error: batch.Error, ErrorIndex: errIdx}, nil
		}
		if len(batch.Embeddings) != len(missInputs) {
			return nil, errors.WithFields(
				errors.New(errors.InvalidResponse, "embedding batch size mismatch"),
				errors.Fields{"want": len(missInputs), "got": len(batch.Embeddings)})
		}
		for j, i := range missIdx {
			results[i] = batch.Embeddings[j]
			c.save(ctx, keys[i], batch.Embeddings[j].Vector)
		}
	}

	return &core.BatchEmbeddingResult{Embeddings: results, ErrorIndex: -1}, nil
}
