package modules

import (
	"context"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/prompts"
	"github.com/scottdavis/metatool/pkg/utils"
)

// Classifier picks the toolkit a query belongs to.
type Classifier struct {
	stage
}

func NewClassifier(llm core.LLM, config *core.Config) *Classifier {
	return &Classifier{stage: newStage(StageClassify, errors.ClassifyFailed, llm, config)}
}

type classifyResponse struct {
	Toolkit string `json:"chosen_toolkit_name"`
}

// Classify returns the toolkit chosen for query.
func (c *Classifier) Classify(ctx context.Context, query string) (core.Toolkit, error) {
	prompt, err := prompts.Render(prompts.Classify, prompts.ClassifyData{Query: query})
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "failed to render classify prompt")
	}

	return generate(ctx, c.stage, prompt, func(content string) (core.Toolkit, error) {
		resp, err := utils.ParseFenced[classifyResponse](content)
		if err != nil {
			return "", err
		}
		toolkit, err := core.ParseToolkit(resp.Toolkit)
		if err != nil {
			return "", parseFailure("unknown toolkit", errors.Fields{"toolkit": resp.Toolkit})
		}
		return toolkit, nil
	})
}
