// Package agents ties the resolver and configurator into a single call that
// answers a question about a patient case.
package agents

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/scottdavis/metatool/pkg/configuration"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/prompts"
)

// Agent answers a question about a patient case with a calculated value.
type Agent interface {
	Run(ctx context.Context, query, patientCase string) (*Result, error)
}

// Configurator configures and executes a resolved tool.
type Configurator interface {
	Run(ctx context.Context, res core.Resolution, text string) (*configuration.Result, error)
}

// Result is the outcome of one agent run.
type Result struct {
	Diagnosis  string
	Resolution core.Resolution
	Value      any
	// Parameters are the arguments the tool was finally called with.
	Parameters core.Parameters
}

// MedCalcAgent runs a preliminary diagnosis, resolves a calculator with the
// diagnosis as scenario and configures it from the case text.
type MedCalcAgent struct {
	llm          core.LLM
	resolver     configuration.Resolver
	configurator Configurator
	config       *core.Config

	expectedTool string
}

var _ Agent = (*MedCalcAgent)(nil)

// NewMedCalcAgent creates an agent.
func NewMedCalcAgent(llm core.LLM, resolver configuration.Resolver, configurator Configurator, config *core.Config) *MedCalcAgent {
	if config == nil {
		config = core.NewConfig()
	}
	return &MedCalcAgent{
		llm:          llm,
		resolver:     resolver,
		configurator: configurator,
		config:       config,
	}
}

// WithExpectedTool makes Run fail with ToolMismatch when the resolved tool is
// not name (compared case-insensitively). An empty name disables the check.
func (a *MedCalcAgent) WithExpectedTool(name string) *MedCalcAgent {
	a.expectedTool = strings.TrimSpace(name)
	return a
}

// Diagnose asks for a short analysis of the abnormal findings in the case.
func (a *MedCalcAgent) Diagnose(ctx context.Context, patientCase string) (string, error) {
	prompt, err := prompts.Render(prompts.Diagnose, prompts.DiagnoseData{Case: patientCase})
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "failed to render diagnosis prompt")
	}
	resp, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return "", errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "diagnosis generation failed"),
			errors.Fields{"model": a.llm.ModelID()})
	}
	return strings.TrimSpace(resp.Content), nil
}

// Run answers query for patientCase.
func (a *MedCalcAgent) Run(ctx context.Context, query, patientCase string) (*Result, error) {
	logger := a.config.GetLogger().With("run_id", uuid.NewString())

	diagnosis, err := a.Diagnose(ctx, patientCase)
	if err != nil {
		return nil, err
	}
	logger.Debug("diagnosis complete", "length", len(diagnosis))

	res, err := a.resolver.Resolve(ctx, query, diagnosis)
	if err != nil {
		return nil, err
	}
	if a.expectedTool != "" && !strings.EqualFold(res.Name, a.expectedTool) {
		return nil, errors.WithFields(
			errors.New(errors.ToolMismatch, "resolved tool does not match expected tool"),
			errors.Fields{"expected": a.expectedTool, "resolved": res.Name})
	}
	logger.Info("tool resolved", "toolkit", res.Toolkit, "tool", res.Name)

	configured, err := a.configurator.Run(ctx, res, patientCase)
	if err != nil {
		return nil, err
	}

	return &Result{
		Diagnosis:  diagnosis,
		Resolution: res,
		Value:      configured.Value,
		Parameters: configured.Parameters,
	}, nil
}

// Consult explains a finished run to the user in plain language.
func (a *MedCalcAgent) Consult(ctx context.Context, query, patientCase string, result *Result) (string, error) {
	if result == nil {
		return "", errors.New(errors.InvalidInput, "no result to explain")
	}
	prompt, err := prompts.Render(prompts.Consult, prompts.ConsultData{
		Query:  query,
		Case:   patientCase,
		Tool:   result.Resolution.Name,
		Result: configuration.FormatValue(result.Value),
	})
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "failed to render consultation prompt")
	}
	resp, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return "", errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "consultation generation failed"),
			errors.Fields{"model": a.llm.ModelID()})
	}
	return strings.TrimSpace(resp.Content), nil
}
