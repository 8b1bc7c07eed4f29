// Package prompts holds the instruction templates sent to the completion
// backend. Every template that expects a structured answer asks for exactly
// one ```json fenced block.
package prompts

import (
	"strings"
	"text/template"
)

// ClassifyData fills Classify.
type ClassifyData struct {
	Query string
}

// RewriteData fills RewriteWithContext and RewriteWithoutContext.
type RewriteData struct {
	Query    string
	Scenario string
	Count    int
}

// DispatchData fills Dispatch.
type DispatchData struct {
	Query      string
	Scenario   string
	Candidates []string
	Details    string
}

// ExtractData fills Extract.
type ExtractData struct {
	Docstring string
	Case      string
}

// ReflectData fills Reflect.
type ReflectData struct {
	Docstring  string
	Parameters string
}

// DiagnoseData fills Diagnose.
type DiagnoseData struct {
	Case string
}

// AnalyseData fills Analyse.
type AnalyseData struct {
	Rule        string
	Description string
	Feedback    string
}

// CodeData fills Code.
type CodeData struct {
	Rule        string
	Description string
	Analysis    string
	Feedback    string
}

// CheckData fills Check.
type CheckData struct {
	Rule       string
	Analysis   string
	Code       string
	Properties string
}

// ConsultData fills Consult.
type ConsultData struct {
	Query  string
	Case   string
	Tool   string
	Result string
}

var (
	Classify = template.Must(template.New("classify").Parse(`You select a toolkit for a user query.

Toolkits:
"unit": medical unit conversion tools. Choose it when a value must be converted between units.
"scale": medical calculators and scoring scales for assessing a patient's condition.

Answer with exactly one JSON object wrapped in ` + "```json" + ` and ` + "```" + `:
` + "```json" + `
{"chosen_toolkit_name": "unit" or "scale"}
` + "```" + `

User query: {{.Query}}
`))

	RewriteWithContext = template.Must(template.New("rewrite_context").Parse(`You expand a clinician's search query for tool retrieval.
Use the case analysis to make each query more specific, without changing the clinician's intent
or burying the original query under extra detail. The queries must be close in meaning and
differ slightly from one another.

Write exactly {{.Count}} queries in English as a JSON array of strings wrapped in ` + "```json" + ` and ` + "```" + `.

Query: {{.Query}}

Case analysis:
{{.Scenario}}
`))

	RewriteWithoutContext = template.Must(template.New("rewrite").Parse(`You expand a search query for tool retrieval.
Write queries closely related to the input that keep its intent.

Write exactly {{.Count}} queries as a JSON array of strings wrapped in ` + "```json" + ` and ` + "```" + `.

Query: {{.Query}}
`))

	Dispatch = template.Must(template.New("dispatch").Parse(`You choose the single most suitable tool for a demand.

Candidates: [{{range $i, $c := .Candidates}}{{if $i}}, {{end}}"{{$c}}"{{end}}]

Tool details:
{{.Details}}
Analyse the demand step by step, then answer with a JSON object wrapped in ` + "```json" + ` and ` + "```" + `.
The chosen name must be copied exactly from the candidates:
` + "```json" + `
{"chosen_tool_name": "<candidate>"}
` + "```" + `

Demand: {{.Query}}
Scenario: {{.Scenario}}
`))

	Extract = template.Must(template.New("extract").Parse(`You extract function parameters from a reference text.

Rules:
1. Report every parameter named in the docstring.
2. Copy each Value and Unit exactly as the reference text states them. Never convert units.
3. When the text's unit differs from the docstring's, keep the text's unit.
4. Use null as the Unit of dimensionless parameters. A Value is never null; infer it from the text when it is not stated.
5. Analyse each parameter step by step, then give the parameter list as one JSON object wrapped in ` + "```json" + ` and ` + "```" + `.

Example:
` + "```json" + `
{"weight": {"Value": 65, "Unit": "kg"}, "height": {"Value": 175, "Unit": "cm"}}
` + "```" + `

Function docstring:
{{.Docstring}}

Reference text:
{{.Case}}
`))

	Reflect = template.Must(template.New("reflect").Parse(`You check a parameter list against a function docstring.

Compare every parameter's Unit with the unit the docstring requires.
If all units match, choose "calculate".
If any unit differs, choose "toolcall" and list one self-contained conversion task per parameter,
each stating the value, its current unit and the target unit. Never convert values yourself.

Answer with a JSON object wrapped in ` + "```json" + ` and ` + "```" + `:
` + "```json" + `
{"chosen_decision_name": "calculate" or "toolcall", "supplementary_information": ["The height is 1.75 m. Convert it from m to cm."]}
` + "```" + `

Function docstring:
{{.Docstring}}

Parameter list:
{{.Parameters}}
`))

	Diagnose = template.Must(template.New("diagnose").Parse(`You are a medical diagnostic model. Briefly analyse the abnormal findings of the patient case
and which bodily functions may be impaired. Support every inference with evidence from the case.

{{.Case}}
`))

	Analyse = template.Must(template.New("analyse").Parse(`You analyse a clinical calculation rule before it is implemented.
Break the calculation into steps, give the latest version of every formula it needs, and list each
variable with its description and unit (judgements such as "history of stroke" have no unit).

Rule: {{.Rule}}
{{.Description}}
{{if .Feedback}}
A reviewer rejected the previous analysis:
{{.Feedback}}
{{end}}`))

	Code = template.Must(template.New("code").Parse(`You write a Python function for a clinical calculation rule from an analysis.

Requirements:
1. Parameters are facts read from a patient note: numbers or true/false judgements. Prefer numeric
   parameters with comparisons in the code (if sbp > 140) over boolean parameters. No lists; split
   them into separate parameters.
2. Handle parameters that may be None without inventing values.
3. Describe every parameter in a properties object. "type" is "number", "boolean" or "string".
   A number's description ends with " in <unit>", for example "systolic blood pressure in mmHg".
4. The properties keys must be exactly the function's parameters.

Answer with the function in a ` + "```python" + ` block followed by the properties in a ` + "```json" + ` block.

Rule: {{.Rule}}
{{.Description}}

Analysis:
{{.Analysis}}
{{if .Feedback}}
The previous attempt was rejected:
{{.Feedback}}
{{end}}`))

	Check = template.Must(template.New("check").Parse(`You review a generated clinical function against its rule and analysis.
a. Check the logic: the formula, the units in the parameter descriptions and their agreement with the code.
b. Check the code: syntax, parameter names, types.
Logic errors go back to the analysis ("stage": "analysis"); code errors go back to the coder ("stage": "code").

Answer with a JSON object wrapped in ` + "```json" + ` and ` + "```" + `:
` + "```json" + `
{"approved": true or false, "stage": "analysis" or "code", "reason": "<what is wrong>"}
` + "```" + `

Rule: {{.Rule}}

Analysis:
{{.Analysis}}

Function:
{{.Code}}

Properties:
{{.Properties}}
`))

	Consult = template.Must(template.New("consult").Parse(`A user asked a question about a patient. A scale was selected and calculated for them.
Explain in plain language why this scale fits, what it measures, what the result means for the
patient, and what should happen next. Answer the user's question directly.

Question: {{.Query}}
Patient case: {{.Case}}
Scale: {{.Tool}}
Result: {{.Result}}
`))
)

// Render executes tmpl with data.
func Render(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
