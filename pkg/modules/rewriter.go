package modules

import (
	"context"
	"strings"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/prompts"
	"github.com/scottdavis/metatool/pkg/utils"
)

// RewriteCount is the number of paraphrases a rewrite produces.
const RewriteCount = 3

// Rewriter expands a query into RewriteCount paraphrases for retrieval.
type Rewriter struct {
	stage
}

func NewRewriter(llm core.LLM, config *core.Config) *Rewriter {
	return &Rewriter{stage: newStage(StageRewrite, errors.RewriteFailed, llm, config)}
}

// Rewrite returns exactly RewriteCount queries. A non-blank scenario selects
// the context-aware prompt.
func (r *Rewriter) Rewrite(ctx context.Context, query, scenario string) ([]string, error) {
	tmpl := prompts.RewriteWithoutContext
	if strings.TrimSpace(scenario) != "" {
		tmpl = prompts.RewriteWithContext
	}
	prompt, err := prompts.Render(tmpl, prompts.RewriteData{
		Query:    query,
		Scenario: scenario,
		Count:    RewriteCount,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to render rewrite prompt")
	}

	return generate(ctx, r.stage, prompt, func(content string) ([]string, error) {
		queries, err := utils.ParseFenced[[]string](content)
		if err != nil {
			return nil, err
		}
		if len(queries) != RewriteCount {
			return nil, parseFailure("wrong number of rewritten queries",
				errors.Fields{"want": RewriteCount, "got": len(queries)})
		}
		for i, q := range queries {
			if strings.TrimSpace(q) == "" {
				return nil, parseFailure("blank rewritten query", errors.Fields{"index": i})
			}
		}
		return queries, nil
	})
}
