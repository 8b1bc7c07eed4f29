package retrieval

import (
	"context"
	"testing"

	"github.com/scottdavis/metatool/internal/testutil"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/rank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTools = []core.Tool{
	{
		Name:         "Body Mass Index",
		FunctionName: "calc_bmi",
		Docstring:    "weight (float): kg. height (float): cm.",
		Description:  "Body mass index from weight and height.",
	},
	{
		Name:         "CHA2DS2-VASc Score",
		FunctionName: "calc_cha2ds2_vasc",
		Docstring:    "age (int), sex (str), chf (bool), stroke (bool)",
		Description:  "Stroke risk in atrial fibrillation.",
	},
	{
		Name:         "Creatinine Clearance",
		FunctionName: "calc_crcl",
		Docstring:    "age (int), weight (float): kg, serum creatinine (float)",
		Description:  "Cockcroft-Gault creatinine clearance.",
	},
}

var testVocab = []string{"bmi", "mass", "weight", "height", "stroke", "atrial", "creatinine", "clearance", "age"}

var bmiQueries = []string{
	"calculate the bmi from weight and height",
	"body mass index bmi",
	"bmi of the patient",
}

func TestSignalText(t *testing.T) {
	tool := core.Tool{Name: "N", FunctionName: "f", Docstring: "D", Description: "X"}
	assert.Equal(t, "f\n\nN", SignalName.Text(tool))
	assert.Equal(t, "f\n\nN\n\nD", SignalDocstring.Text(tool))
	assert.Equal(t, "f\n\nN\n\nD\n\nX", SignalDescription.Text(tool))
	assert.Equal(t, "docstring", SignalDocstring.String())
}

func TestCosine(t *testing.T) {
	s, err := Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s, 1e-9)

	s, err = Cosine([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)

	_, err = Cosine([]float32{1}, []float32{1, 2})
	assert.Equal(t, errors.RetrievalFailed, errors.CodeOf(err))
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	embedder := &testutil.KeywordEmbedder{Vocab: testVocab}

	r := NewRetriever(embedder, core.NewConfig().WithParallel(false))
	ranking, err := r.Retrieve(ctx, testTools, bmiQueries)
	require.NoError(t, err)
	require.NoError(t, ranking.Validate())
	assert.Equal(t, 1, ranking[0])
	assert.Equal(t, 0, ranking.Order()[0])
}

func TestRetrieveParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	embedder := &testutil.KeywordEmbedder{Vocab: testVocab}
	queries := []string{"creatinine clearance", "kidney function age weight", "stroke risk"}

	sequential, err := NewRetriever(embedder, core.NewConfig().WithParallel(false)).Retrieve(ctx, testTools, queries)
	require.NoError(t, err)

	for _, width := range []int{1, 2, 3} {
		cfg := core.NewConfig().WithParallel(true).WithConcurrency(width, width)
		for run := 0; run < 5; run++ {
			parallel, err := NewRetriever(embedder, cfg).Retrieve(ctx, testTools, queries)
			require.NoError(t, err)
			assert.Equal(t, sequential, parallel, "width=%d run=%d", width, run)
		}
	}
}

func TestRetrieveSingleQueryIsFusedSignals(t *testing.T) {
	ctx := context.Background()
	embedder := &testutil.KeywordEmbedder{Vocab: testVocab}
	query := "atrial fibrillation stroke"

	got, err := NewRetriever(embedder, core.NewConfig().WithParallel(false)).Retrieve(ctx, testTools, []string{query})
	require.NoError(t, err)

	q := embedder.Vector(query)
	var perSignal []rank.Ranking
	for _, s := range Signals {
		scores := make([]float64, len(testTools))
		for i, tool := range testTools {
			scores[i], err = Cosine(q, embedder.Vector(s.Text(tool)))
			require.NoError(t, err)
		}
		perSignal = append(perSignal, rank.FromScores(scores))
	}
	want, err := rank.Fuse(perSignal...)
	require.NoError(t, err)
	want, err = rank.Fuse(want)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, 1, got[1])
}

func TestRetrieveErrors(t *testing.T) {
	ctx := context.Background()

	for _, parallel := range []bool{false, true} {
		cfg := core.NewConfig().WithParallel(parallel)

		failing := &testutil.KeywordEmbedder{Vocab: testVocab, Fail: "Cockcroft"}
		_, err := NewRetriever(failing, cfg).Retrieve(ctx, testTools, bmiQueries)
		require.Error(t, err)
		assert.Equal(t, errors.RetrievalFailed, errors.CodeOf(err), "parallel=%v", parallel)
		assert.ErrorIs(t, err, errors.ErrRetrieval)

		failingQuery := &testutil.KeywordEmbedder{Vocab: testVocab, Fail: "patient"}
		_, err = NewRetriever(failingQuery, cfg).Retrieve(ctx, testTools, bmiQueries)
		assert.Equal(t, errors.RetrievalFailed, errors.CodeOf(err), "parallel=%v", parallel)
	}

	embedder := &testutil.KeywordEmbedder{Vocab: testVocab}
	_, err := NewRetriever(embedder, nil).Retrieve(ctx, nil, bmiQueries)
	assert.Equal(t, errors.RetrievalFailed, errors.CodeOf(err))

	_, err = NewRetriever(embedder, nil).Retrieve(ctx, testTools, nil)
	assert.Equal(t, errors.RetrievalFailed, errors.CodeOf(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewRetriever(embedder, nil).Retrieve(cancelled, testTools, bmiQueries)
	assert.Equal(t, errors.RetrievalFailed, errors.CodeOf(err))
}
