package modules

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/prompts"
	"github.com/scottdavis/metatool/pkg/utils"
)

// Reflector decides whether extracted parameters can be used as they are or
// need unit-conversion subtasks first.
type Reflector struct {
	stage
}

func NewReflector(llm core.LLM, config *core.Config) *Reflector {
	return &Reflector{stage: newStage(StageReflect, errors.ReflectFailed, llm, config)}
}

type reflectResponse struct {
	Decision string          `json:"chosen_decision_name"`
	Subtasks json.RawMessage `json:"supplementary_information"`
}

// Reflect checks params against tool's docstring. Unit-toolkit tools are
// leaves and always calculate, without consulting the backend.
func (r *Reflector) Reflect(ctx context.Context, toolkit core.Toolkit, tool core.Tool, params core.Parameters) (core.Decision, error) {
	if toolkit == core.ToolkitUnit {
		r.logger().Debug("unit toolkit, skipping reflection", "tool", tool.FunctionName)
		return core.Decision{Kind: core.DecisionCalculate}, nil
	}

	prompt, err := prompts.Render(prompts.Reflect, prompts.ReflectData{
		Docstring:  tool.Docstring,
		Parameters: params.String(),
	})
	if err != nil {
		return core.Decision{}, errors.Wrap(err, errors.InvalidInput, "failed to render reflect prompt")
	}

	return generate(ctx, r.stage, prompt, parseDecision)
}

func parseDecision(content string) (core.Decision, error) {
	resp, err := utils.ParseFenced[reflectResponse](content)
	if err != nil {
		return core.Decision{}, err
	}

	switch core.DecisionKind(strings.ToLower(strings.TrimSpace(resp.Decision))) {
	case core.DecisionCalculate:
		return core.Decision{Kind: core.DecisionCalculate}, nil
	case core.DecisionToolCall:
		subtasks, err := parseSubtasks(resp.Subtasks)
		if err != nil {
			return core.Decision{}, err
		}
		return core.Decision{Kind: core.DecisionToolCall, Subtasks: subtasks}, nil
	}
	return core.Decision{}, parseFailure("unknown decision", errors.Fields{"decision": resp.Decision})
}

// parseSubtasks accepts a list of strings or a single string.
func parseSubtasks(raw json.RawMessage) ([]string, error) {
	var subtasks []string
	if err := json.Unmarshal(raw, &subtasks); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, parseFailure("supplementary_information is not a list of strings", nil)
		}
		subtasks = []string{single}
	}

	out := subtasks[:0]
	for _, s := range subtasks {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, parseFailure("toolcall without subtasks", nil)
	}
	return out, nil
}
