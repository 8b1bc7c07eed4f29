package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/prompts"
	"github.com/scottdavis/metatool/pkg/rank"
	"github.com/scottdavis/metatool/pkg/utils"
)

// Dispatcher picks one tool among the top-ranked candidates.
type Dispatcher struct {
	stage
}

func NewDispatcher(llm core.LLM, config *core.Config) *Dispatcher {
	return &Dispatcher{stage: newStage(StageDispatch, errors.DispatchFailed, llm, config)}
}

type dispatchResponse struct {
	Tool string `json:"chosen_tool_name"`
}

// Dispatch returns the catalog index of the chosen tool. Only the first
// DispatchCutoff indices of ranking are candidates.
func (d *Dispatcher) Dispatch(ctx context.Context, query, scenario string, tools []core.Tool, ranking rank.Ranking) (int, error) {
	if len(tools) == 0 || len(ranking) != len(tools) {
		return -1, errors.WithFields(
			errors.New(errors.InvalidInput, "ranking does not cover the catalog"),
			errors.Fields{"tools": len(tools), "ranking": len(ranking)})
	}
	if err := ranking.Validate(); err != nil {
		return -1, err
	}

	window := ranking.Top(max(1, d.config.DispatchCutoff))
	names := make([]string, len(window))
	var details strings.Builder
	for i, idx := range window {
		names[i] = tools[idx].Name
		fmt.Fprintf(&details, "%s: %s\n", tools[idx].Name, tools[idx].Docstring)
	}

	prompt, err := prompts.Render(prompts.Dispatch, prompts.DispatchData{
		Query:      query,
		Scenario:   scenario,
		Candidates: names,
		Details:    details.String(),
	})
	if err != nil {
		return -1, errors.Wrap(err, errors.InvalidInput, "failed to render dispatch prompt")
	}

	return generate(ctx, d.stage, prompt, func(content string) (int, error) {
		resp, err := utils.ParseFenced[dispatchResponse](content)
		if err != nil {
			return -1, err
		}
		chosen := strings.TrimSpace(resp.Tool)
		for i, name := range names {
			if strings.EqualFold(name, chosen) {
				return window[i], nil
			}
		}
		return -1, parseFailure("chosen tool is not a candidate", errors.Fields{"tool": resp.Tool})
	})
}
