package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Run("classify embeds query", func(t *testing.T) {
		out, err := Render(Classify, ClassifyData{Query: "what is the patient's BMI"})
		require.NoError(t, err)
		assert.Contains(t, out, "User query: what is the patient's BMI")
		assert.Contains(t, out, "chosen_toolkit_name")
	})

	t.Run("dispatch lists candidates", func(t *testing.T) {
		out, err := Render(Dispatch, DispatchData{
			Query:      "bmi",
			Candidates: []string{"BMI", "Creatinine Clearance"},
			Details:    "BMI: body mass index\n\n",
		})
		require.NoError(t, err)
		assert.Contains(t, out, `Candidates: ["BMI", "Creatinine Clearance"]`)
		assert.Contains(t, out, "BMI: body mass index")
	})

	t.Run("docstrings with braces are inserted verbatim", func(t *testing.T) {
		out, err := Render(Extract, ExtractData{Docstring: "{{not a template}}", Case: "65 kg"})
		require.NoError(t, err)
		assert.Contains(t, out, "{{not a template}}")
	})

	t.Run("rewrite count", func(t *testing.T) {
		out, err := Render(RewriteWithoutContext, RewriteData{Query: "bmi", Count: 3})
		require.NoError(t, err)
		assert.Contains(t, out, "Write exactly 3 queries")
	})

	t.Run("generator feedback only when rejected", func(t *testing.T) {
		out, err := Render(Code, CodeData{Rule: "Anion Gap", Analysis: "AG = Na - (Cl + HCO3)"})
		require.NoError(t, err)
		assert.Contains(t, out, "Rule: Anion Gap")
		assert.Contains(t, out, "AG = Na - (Cl + HCO3)")
		assert.NotContains(t, out, "was rejected")

		out, err = Render(Analyse, AnalyseData{Rule: "Anion Gap", Feedback: "use the corrected formula"})
		require.NoError(t, err)
		assert.Contains(t, out, "A reviewer rejected the previous analysis:\nuse the corrected formula")
	})

	t.Run("check shows the draft", func(t *testing.T) {
		out, err := Render(Check, CheckData{Rule: "MAP", Code: "def calc_map(sbp, dbp):", Properties: `{"sbp": {}}`})
		require.NoError(t, err)
		assert.Contains(t, out, "Function:\ndef calc_map(sbp, dbp):")
		assert.Contains(t, out, "Properties:\n{\"sbp\": {}}")
	})
}
