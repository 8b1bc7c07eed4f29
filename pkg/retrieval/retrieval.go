// Package retrieval ranks catalog tools against rewritten queries using
// several textual representations of each tool and rank fusion.
package retrieval

import (
	"context"
	"math"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/rank"
	"github.com/sourcegraph/conc/pool"
)

// Signal is one textual representation of a tool.
type Signal int

const (
	SignalName Signal = iota
	SignalDocstring
	SignalDescription
)

// Signals lists every representation, each a superset of the previous one.
var Signals = []Signal{SignalName, SignalDocstring, SignalDescription}

func (s Signal) String() string {
	switch s {
	case SignalName:
		return "name"
	case SignalDocstring:
		return "docstring"
	case SignalDescription:
		return "description"
	}
	return "unknown"
}

// Text renders tool in this representation.
func (s Signal) Text(tool core.Tool) string {
	text := tool.FunctionName + "\n\n" + tool.Name
	if s >= SignalDocstring {
		text += "\n\n" + tool.Docstring
	}
	if s >= SignalDescription {
		text += "\n\n" + tool.Description
	}
	return text
}

// Retriever fuses per-query, per-signal similarity rankings into one Ranking.
type Retriever struct {
	embedder core.Embedder
	config   *core.Config
}

// NewRetriever creates a Retriever. A nil config uses the defaults.
func NewRetriever(embedder core.Embedder, config *core.Config) *Retriever {
	if config == nil {
		config = core.NewConfig()
	}
	return &Retriever{embedder: embedder, config: config}
}

// Retrieve ranks tools against queries. The result is the same in
// sequential and parallel mode.
func (r *Retriever) Retrieve(ctx context.Context, tools []core.Tool, queries []string) (rank.Ranking, error) {
	if len(tools) == 0 {
		return nil, errors.New(errors.RetrievalFailed, "no tools to rank")
	}
	if len(queries) == 0 {
		return nil, errors.New(errors.RetrievalFailed, "no queries to rank against")
	}
	logger := r.config.GetLogger()

	signalVectors, err := r.embedSignals(ctx, tools)
	if err != nil {
		return nil, err
	}

	perQuery := make([]rank.Ranking, len(queries))
	rankQuery := func(ctx context.Context, qi int) error {
		ranking, err := r.rankQuery(ctx, queries[qi], signalVectors)
		if err != nil {
			return errors.WithFields(err, errors.Fields{"query_index": qi})
		}
		perQuery[qi] = ranking
		return nil
	}

	if r.config.Parallel {
		p := pool.New().
			WithContext(ctx).
			WithMaxGoroutines(r.config.QueryConcurrency).
			WithCancelOnError().
			WithFirstError()
		for qi := range queries {
			p.Go(func(ctx context.Context) error { return rankQuery(ctx, qi) })
		}
		if err := p.Wait(); err != nil {
			return nil, asRetrievalError(err)
		}
	} else {
		for qi := range queries {
			if err := rankQuery(ctx, qi); err != nil {
				return nil, asRetrievalError(err)
			}
		}
	}

	fused, err := r.fuse(perQuery)
	if err != nil {
		return nil, err
	}
	logger.Debug("retrieval complete",
		"tools", len(tools), "queries", len(queries), "parallel", r.config.Parallel, "top", fused.Top(3))
	return fused, nil
}

// embedSignals embeds every tool once per signal, one batch per signal.
func (r *Retriever) embedSignals(ctx context.Context, tools []core.Tool) ([][][]float32, error) {
	vectors := make([][][]float32, len(Signals))
	embedSignal := func(ctx context.Context, si int) error {
		texts := make([]string, len(tools))
		for i, tool := range tools {
			texts[i] = Signals[si].Text(tool)
		}
		vecs, err := r.embedBatch(ctx, texts)
		if err != nil {
			return errors.WithFields(err, errors.Fields{"signal": Signals[si].String()})
		}
		vectors[si] = vecs
		return nil
	}

	if r.config.Parallel {
		p := pool.New().
			WithContext(ctx).
			WithMaxGoroutines(r.config.SignalConcurrency).
			WithCancelOnError().
			WithFirstError()
		for si := range Signals {
			p.Go(func(ctx context.Context) error { return embedSignal(ctx, si) })
		}
		if err := p.Wait(); err != nil {
			return nil, asRetrievalError(err)
		}
		return vectors, nil
	}

	for si := range Signals {
		if err := embedSignal(ctx, si); err != nil {
			return nil, asRetrievalError(err)
		}
	}
	return vectors, nil
}

func (r *Retriever) rankQuery(ctx context.Context, query string, signalVectors [][][]float32) (rank.Ranking, error) {
	q, err := r.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.RetrievalFailed, "failed to embed query")
	}

	perSignal := make([]rank.Ranking, len(signalVectors))
	for si, vecs := range signalVectors {
		scores := make([]float64, len(vecs))
		for i, v := range vecs {
			s, err := Cosine(q.Vector, v)
			if err != nil {
				return nil, errors.WithFields(err, errors.Fields{"signal": Signals[si].String(), "tool_index": i})
			}
			scores[i] = s
		}
		perSignal[si] = rank.FromScores(scores)
	}
	return r.fuse(perSignal)
}

func (r *Retriever) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch, err := r.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, errors.RetrievalFailed, "failed to embed tools")
	}
	if batch.Error != nil {
		return nil, errors.WithFields(
			errors.Wrap(batch.Error, errors.RetrievalFailed, "partial embedding batch failure"),
			errors.Fields{"error_index": batch.ErrorIndex})
	}
	if len(batch.Embeddings) != len(texts) {
		return nil, errors.WithFields(
			errors.New(errors.RetrievalFailed, "embedding batch size mismatch"),
			errors.Fields{"want": len(texts), "got": len(batch.Embeddings)})
	}
	vecs := make([][]float32, len(texts))
	for i, e := range batch.Embeddings {
		vecs[i] = e.Vector
	}
	return vecs, nil
}

func (r *Retriever) fuse(rankings []rank.Ranking) (rank.Ranking, error) {
	ks := make([]int, len(rankings))
	for i := range ks {
		ks[i] = r.config.RRFK
	}
	fused, err := rank.FuseWithK(rankings, ks)
	if err != nil {
		return nil, errors.Wrap(err, errors.RetrievalFailed, "failed to fuse rankings")
	}
	return fused, nil
}

// Cosine returns the cosine similarity of a and b. A zero-norm vector has
// similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.WithFields(
			errors.New(errors.RetrievalFailed, "embedding dimensions differ"),
			errors.Fields{"left": len(a), "right": len(b)})
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// asRetrievalError keeps RetrievalFailed errors and wraps anything else,
// such as context cancellation.
func asRetrievalError(err error) error {
	if errors.CodeOf(err) == errors.RetrievalFailed {
		return err
	}
	return errors.Wrap(err, errors.RetrievalFailed, "retrieval failed")
}
