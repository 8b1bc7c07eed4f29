// Package metatool resolves a natural-language demand to one catalog tool:
// classify, rewrite, retrieve, dispatch.
package metatool

import (
	"context"

	"github.com/google/uuid"
	"github.com/scottdavis/metatool/pkg/catalog"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/modules"
	"github.com/scottdavis/metatool/pkg/retrieval"
)

// Resolver runs the tool-resolution pipeline.
type Resolver struct {
	classifier *modules.Classifier
	rewriter   *modules.Rewriter
	retriever  *retrieval.Retriever
	dispatcher *modules.Dispatcher
	catalogs   catalog.Source
	config     *core.Config
}

// NewResolver wires the pipeline stages around llm and embedder.
func NewResolver(llm core.LLM, embedder core.Embedder, catalogs catalog.Source, config *core.Config) *Resolver {
	if config == nil {
		config = core.NewConfig()
	}
	return &Resolver{
		classifier: modules.NewClassifier(llm, config),
		rewriter:   modules.NewRewriter(llm, config),
		retriever:  retrieval.NewRetriever(embedder, config),
		dispatcher: modules.NewDispatcher(llm, config),
		catalogs:   catalogs,
		config:     config,
	}
}

// Resolve picks the tool best matching query. scenario, when non-empty,
// adds case context to rewriting and dispatch.
func (r *Resolver) Resolve(ctx context.Context, query, scenario string) (core.Resolution, error) {
	logger := r.config.GetLogger().With("resolution_id", uuid.NewString())
	logger.Debug("resolving", "query", query, "has_scenario", scenario != "")

	toolkit, err := r.classifier.Classify(ctx, query)
	if err != nil {
		return core.Resolution{}, err
	}

	tools, err := r.catalogs.Tools(ctx, toolkit)
	if err != nil {
		return core.Resolution{}, err
	}

	queries, err := r.rewriter.Rewrite(ctx, query, scenario)
	if err != nil {
		return core.Resolution{}, err
	}

	ranking, err := r.retriever.Retrieve(ctx, tools, queries)
	if err != nil {
		return core.Resolution{}, err
	}

	index, err := r.dispatcher.Dispatch(ctx, query, scenario, tools, ranking)
	if err != nil {
		return core.Resolution{}, err
	}

	res := core.Resolution{Toolkit: toolkit, Index: index, Name: tools[index].Name}
	logger.Info("resolved", "toolkit", res.Toolkit, "index", res.Index, "tool", res.Name)
	return res, nil
}

// Tool returns the catalog entry res points at.
func (r *Resolver) Tool(ctx context.Context, res core.Resolution) (core.Tool, error) {
	tools, err := r.catalogs.Tools(ctx, res.Toolkit)
	if err != nil {
		return core.Tool{}, err
	}
	if res.Index < 0 || res.Index >= len(tools) {
		return core.Tool{}, errors.WithFields(
			errors.New(errors.ResourceNotFound, "resolution index outside catalog"),
			errors.Fields{"toolkit": res.Toolkit, "index": res.Index, "size": len(tools)})
	}
	return tools[res.Index], nil
}
