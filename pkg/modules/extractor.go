package modules

import (
	"context"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/prompts"
	"github.com/scottdavis/metatool/pkg/utils"
)

// Extractor reads a tool's call parameters out of free text.
type Extractor struct {
	stage
}

func NewExtractor(llm core.LLM, config *core.Config) *Extractor {
	return &Extractor{stage: newStage(StageExtract, errors.ExtractFailed, llm, config)}
}

// Extract returns the parameters of tool found in text. Units are reported
// as written; nothing is converted.
func (e *Extractor) Extract(ctx context.Context, tool core.Tool, text string) (core.Parameters, error) {
	prompt, err := prompts.Render(prompts.Extract, prompts.ExtractData{
		Docstring: tool.Docstring,
		Case:      text,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to render extract prompt")
	}

	return generate(ctx, e.stage, prompt, func(content string) (core.Parameters, error) {
		params, err := utils.ParseFenced[core.Parameters](content)
		if err != nil {
			return nil, err
		}
		if len(params) == 0 {
			return nil, parseFailure("no parameters extracted", errors.Fields{"tool": tool.FunctionName})
		}
		for name, entry := range params {
			if entry.Value == nil {
				return nil, parseFailure("parameter has no value",
					errors.Fields{"tool": tool.FunctionName, "parameter": name})
			}
		}
		return params, nil
	})
}
