package agents

import (
	"context"
	"fmt"
	"testing"

	"github.com/scottdavis/metatool/internal/testutil"
	"github.com/scottdavis/metatool/pkg/catalog"
	"github.com/scottdavis/metatool/pkg/configuration"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/metatool"
	"github.com/scottdavis/metatool/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(llm core.LLM) *MedCalcAgent {
	config := core.NewConfig()
	embedder := &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab}
	resolver := metatool.NewResolver(llm, embedder, catalog.NewStaticLibrary(testutil.MedCalcCatalogs()), config)
	configurator := configuration.NewConfigurator(resolver, llm, sandbox.Builtins(), config)
	return NewMedCalcAgent(llm, resolver, configurator, config)
}

func TestMedCalcAgentRun(t *testing.T) {
	llm := testutil.MedCalcLLM()
	agent := newAgent(llm)
	ctx := context.Background()

	result, err := agent.Run(ctx, "What is the patient's BMI?", testutil.MedCalcCase)
	require.NoError(t, err)
	assert.Equal(t, "Body Mass Index", result.Resolution.Name)
	assert.InDelta(t, 21.2245, result.Value.(float64), 1e-4)
	assert.Contains(t, result.Diagnosis, "normal body habitus")
	assert.Equal(t, "cm", *result.Parameters["height"].Unit)

	prompts := llm.Prompts()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], testutil.DiagnoseMarker)
	// The diagnosis is the scenario of the root resolution.
	assert.Contains(t, prompts[2], "Case analysis:\n"+result.Diagnosis)

	explanation, err := agent.Consult(ctx, "What is the patient's BMI?", testutil.MedCalcCase, result)
	require.NoError(t, err)
	assert.Equal(t, "The BMI of 21.2245 is in the normal range.", explanation)
}

func TestMedCalcAgentExpectedTool(t *testing.T) {
	llm := testutil.MedCalcLLM()
	agent := newAgent(llm).WithExpectedTool("creatinine clearance")

	_, err := agent.Run(context.Background(), "What is the patient's BMI?", testutil.MedCalcCase)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrToolMismatch)
	assert.Zero(t, testutil.PromptsMatching(llm.Prompts(), testutil.ExtractMarker), "configuration never starts")

	agent.WithExpectedTool("BODY MASS INDEX")
	_, err = agent.Run(context.Background(), "What is the patient's BMI?", testutil.MedCalcCase)
	assert.NoError(t, err)
}

func TestMedCalcAgentDiagnoseFailure(t *testing.T) {
	llm := &testutil.LLMFunc{Fn: func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("connection refused")
	}}
	agent := newAgent(llm)

	_, err := agent.Run(context.Background(), "bmi", testutil.MedCalcCase)
	require.Error(t, err)
	assert.Equal(t, errors.LLMGenerationFailed, errors.CodeOf(err))
	assert.Len(t, llm.Prompts(), 1)
}

func TestMedCalcAgentConsultRequiresResult(t *testing.T) {
	_, err := newAgent(testutil.MedCalcLLM()).Consult(context.Background(), "q", "case", nil)
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
}
