package metatool

import (
	"context"
	"testing"

	"github.com/scottdavis/metatool/internal/testutil"
	"github.com/scottdavis/metatool/pkg/catalog"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(llm core.LLM, embedder core.Embedder) *Resolver {
	return NewResolver(llm, embedder, catalog.NewStaticLibrary(testutil.MedCalcCatalogs()), nil)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("scale", func(t *testing.T) {
		llm := testutil.MedCalcLLM()
		r := newResolver(llm, &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab})

		res, err := r.Resolve(ctx, "What is the patient's BMI?", testutil.MedCalcCase)
		require.NoError(t, err)
		assert.Equal(t, core.Resolution{Toolkit: core.ToolkitScale, Index: 0, Name: "Body Mass Index"}, res)

		tool, err := r.Tool(ctx, res)
		require.NoError(t, err)
		assert.Equal(t, "calc_bmi", tool.FunctionName)

		prompts := llm.Prompts()
		require.Len(t, prompts, 3)
		assert.Contains(t, prompts[1], "Case analysis:\n"+testutil.MedCalcCase)
	})

	t.Run("unit without scenario", func(t *testing.T) {
		llm := testutil.MedCalcLLM()
		r := newResolver(llm, &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab})

		res, err := r.Resolve(ctx, testutil.HeightSubtask, "")
		require.NoError(t, err)
		assert.Equal(t, core.ToolkitUnit, res.Toolkit)
		assert.Equal(t, "Height Conversion", res.Name)
		assert.NotContains(t, llm.Prompts()[1], "Case analysis")
	})
}

func TestResolveFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("classify", func(t *testing.T) {
		llm := testutil.Router(testutil.Route{Match: testutil.ClassifyMarker, Reply: func(string) string {
			return testutil.Fenced(`{"chosen_toolkit_name": "physics"}`)
		}})
		r := newResolver(llm, &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab})

		_, err := r.Resolve(ctx, "bmi", "")
		assert.ErrorIs(t, err, errors.ErrClassify)
		assert.Len(t, llm.Prompts(), core.DefaultRetryBudget)
	})

	t.Run("retrieval", func(t *testing.T) {
		embedder := &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab, Fail: "bmi of the patient"}
		r := newResolver(testutil.MedCalcLLM(), embedder)

		_, err := r.Resolve(ctx, "What is the patient's BMI?", "")
		require.Error(t, err)
		assert.Equal(t, errors.RetrievalFailed, errors.CodeOf(err))
	})

	t.Run("dispatch", func(t *testing.T) {
		routes := append([]testutil.Route{{
			Match: testutil.DispatchMarker,
			Reply: func(string) string { return testutil.Fenced(`{"chosen_tool_name": "Ideal Body Weight"}`) },
		}}, testutil.MedCalcRoutes()...)
		r := newResolver(testutil.Router(routes...), &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab})

		_, err := r.Resolve(ctx, "What is the patient's BMI?", "")
		assert.ErrorIs(t, err, errors.ErrDispatch)
	})

	t.Run("unknown catalog", func(t *testing.T) {
		r := NewResolver(testutil.MedCalcLLM(), &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab},
			catalog.NewStaticLibrary(map[core.Toolkit][]core.Tool{}), nil)

		_, err := r.Resolve(ctx, "What is the patient's BMI?", "")
		require.Error(t, err)
		assert.Equal(t, errors.ResourceNotFound, errors.CodeOf(err))
	})
}

func TestToolOutOfRange(t *testing.T) {
	r := newResolver(testutil.MedCalcLLM(), &testutil.KeywordEmbedder{Vocab: testutil.MedCalcVocab})

	_, err := r.Tool(context.Background(), core.Resolution{Toolkit: core.ToolkitUnit, Index: 2})
	assert.Equal(t, errors.ResourceNotFound, errors.CodeOf(err))
}
