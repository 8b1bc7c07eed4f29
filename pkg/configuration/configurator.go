// Package configuration resolves a tool's call parameters from free text and
// runs the tool. Parameters whose units do not match the tool's docstring
// are fixed by delegating conversion subtasks to nested tools, each one
// resolved and configured in turn.
package configuration

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/modules"
)

// Resolver finds the tool for a subtask.
type Resolver interface {
	Resolve(ctx context.Context, query, scenario string) (core.Resolution, error)
	Tool(ctx context.Context, res core.Resolution) (core.Tool, error)
}

// Result is the outcome of a configuration session.
type Result struct {
	Value any
	// Parameters are the root tool's final arguments.
	Parameters core.Parameters
	// Text is the root case text including appended sub-answers.
	Text string
}

// Configurator runs the extract, reflect, calculate or toolcall cycle.
type Configurator struct {
	resolver  Resolver
	extractor *modules.Extractor
	reflector *modules.Reflector
	sandbox   core.Sandbox
	config    *core.Config
}

// NewConfigurator creates a Configurator. resolver handles subtasks and
// sandbox executes the tools.
func NewConfigurator(resolver Resolver, llm core.LLM, sandbox core.Sandbox, config *core.Config) *Configurator {
	if config == nil {
		config = core.NewConfig()
	}
	return &Configurator{
		resolver:  resolver,
		extractor: modules.NewExtractor(llm, config),
		reflector: modules.NewReflector(llm, config),
		sandbox:   sandbox,
		config:    config,
	}
}

type state int

const (
	stateExtract state = iota
	stateReflect
	stateCalculate
	stateToolCall
)

func (s state) String() string {
	switch s {
	case stateExtract:
		return "extract"
	case stateReflect:
		return "reflect"
	case stateCalculate:
		return "calculate"
	case stateToolCall:
		return "toolcall"
	}
	return "unknown"
}

// frame is one tool being configured. Frames live on an explicit stack; a
// toolcall pushes one child per subtask.
type frame struct {
	id       string
	toolkit  core.Toolkit
	tool     core.Tool
	text     string
	depth    int
	state    state
	restarts int

	params   core.Parameters
	subtasks []string
	next     int
}

// Run configures and executes the tool res points at, reading parameters
// from text.
func (c *Configurator) Run(ctx context.Context, res core.Resolution, text string) (*Result, error) {
	tool, err := c.resolver.Tool(ctx, res)
	if err != nil {
		return nil, err
	}
	return c.RunTool(ctx, res.Toolkit, tool, text)
}

// RunTool is Run for a tool already in hand.
func (c *Configurator) RunTool(ctx context.Context, toolkit core.Toolkit, tool core.Tool, text string) (*Result, error) {
	logger := c.config.GetLogger().With("session_id", uuid.NewString())

	root := c.newFrame(toolkit, tool, text, 0)
	stack := []*frame{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f := stack[len(stack)-1]
		flog := logger.With("frame_id", f.id, "depth", f.depth, "tool", f.tool.FunctionName)
		flog.Debug("configuration step", "state", f.state.String(), "restarts", f.restarts)

		switch f.state {
		case stateExtract:
			params, err := c.extractor.Extract(ctx, f.tool, f.text)
			if err != nil {
				return nil, errors.WithFields(err, errors.Fields{"tool": f.tool.FunctionName, "depth": f.depth})
			}
			f.params = params
			f.state = stateReflect

		case stateReflect:
			decision, err := c.reflector.Reflect(ctx, f.toolkit, f.tool, f.params)
			if err != nil {
				return nil, errors.WithFields(err, errors.Fields{"tool": f.tool.FunctionName, "depth": f.depth})
			}
			if decision.Kind == core.DecisionCalculate {
				f.state = stateCalculate
				continue
			}
			flog.Info("delegating subtasks", "count", len(decision.Subtasks))
			f.subtasks = decision.Subtasks
			f.next = 0
			f.state = stateToolCall

		case stateCalculate:
			value, err := c.execute(ctx, f)
			if err != nil {
				return nil, err
			}
			flog.Debug("tool executed", "value", value)

			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return &Result{Value: value, Parameters: f.params, Text: f.text}, nil
			}
			parent := stack[len(stack)-1]
			parent.text += "\n\n" + FormatValue(value)
			parent.next++

		case stateToolCall:
			if f.next < len(f.subtasks) {
				child, err := c.delegate(ctx, f, f.subtasks[f.next])
				if err != nil {
					return nil, err
				}
				stack = append(stack, child)
				continue
			}

			// Every subtask of the batch is answered: extract again once.
			f.restarts++
			if f.restarts > c.config.MaxRestarts {
				return nil, errors.WithFields(
					errors.New(errors.RecursionLimitExceeded, "too many restarts"),
					errors.Fields{"tool": f.tool.FunctionName, "max_restarts": c.config.MaxRestarts})
			}
			f.subtasks = nil
			f.next = 0
			f.state = stateExtract
		}
	}

	// unreachable: the root frame returns from stateCalculate
	return nil, errors.New(errors.Unknown, "configuration stack drained without a result")
}

func (c *Configurator) newFrame(toolkit core.Toolkit, tool core.Tool, text string, depth int) *frame {
	return &frame{
		id:      uuid.NewString(),
		toolkit: toolkit,
		tool:    tool,
		text:    text,
		depth:   depth,
		state:   stateExtract,
	}
}

// delegate resolves subtask and returns the child frame configuring it.
// The child reads its parameters from the subtask text alone.
func (c *Configurator) delegate(ctx context.Context, parent *frame, subtask string) (*frame, error) {
	depth := parent.depth + 1
	if depth > c.config.MaxDepth {
		return nil, errors.WithFields(
			errors.New(errors.RecursionLimitExceeded, "delegation too deep"),
			errors.Fields{"tool": parent.tool.FunctionName, "max_depth": c.config.MaxDepth})
	}

	res, err := c.resolver.Resolve(ctx, subtask, "")
	if err != nil {
		return nil, errors.WithFields(err, errors.Fields{"subtask": subtask, "depth": depth})
	}
	tool, err := c.resolver.Tool(ctx, res)
	if err != nil {
		return nil, err
	}
	return c.newFrame(res.Toolkit, tool, subtask, depth), nil
}

func (c *Configurator) execute(ctx context.Context, f *frame) (any, error) {
	value, err := c.sandbox.Run(ctx, f.tool.Code, f.tool.FunctionName, f.params.Values())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ExecutionFailed, "tool execution failed"),
			errors.Fields{"tool": f.tool.FunctionName, "depth": f.depth})
	}
	return value, nil
}

// FormatValue renders a tool result as it is appended to case text.
func FormatValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}
