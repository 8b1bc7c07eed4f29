package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/scottdavis/metatool/pkg/core"
)

// MedCalcVocab is the KeywordEmbedder vocabulary for the MedCalc fixtures.
var MedCalcVocab = []string{
	"bmi", "mass", "weight", "height", "stroke", "atrial",
	"creatinine", "clearance", "age", "convert", "cm", "kg", "lb",
}

// MedCalcCatalogs returns a small scale and unit catalog.
func MedCalcCatalogs() map[core.Toolkit][]core.Tool {
	return map[core.Toolkit][]core.Tool{
		core.ToolkitScale: {
			{
				Name:         "Body Mass Index",
				FunctionName: "calc_bmi",
				Docstring:    "weight (float): body weight in kg. height (float): body height in cm.",
				Description:  "Body mass index (BMI) from weight and height.",
			},
			{
				Name:         "CHA2DS2-VASc Score",
				FunctionName: "calc_cha2ds2_vasc",
				Docstring:    "age (int): years. sex (str). chf (bool). stroke (bool).",
				Description:  "Stroke risk in atrial fibrillation.",
			},
			{
				Name:         "Creatinine Clearance",
				FunctionName: "calc_crcl",
				Docstring:    "age (int): years. weight (float): kg. creatinine (float): mg/dL.",
				Description:  "Cockcroft-Gault creatinine clearance.",
			},
		},
		core.ToolkitUnit: {
			{
				Name:         "Height Conversion",
				FunctionName: "convert_height",
				Docstring:    "value (float). from_unit (str): m, cm, in or ft. to_unit (str): m, cm, in or ft.",
				Description:  "Convert a height between m, cm, in and ft.",
			},
			{
				Name:         "Weight Conversion",
				FunctionName: "convert_weight",
				Docstring:    "value (float). from_unit (str): kg or lb. to_unit (str): kg or lb.",
				Description:  "Convert a weight between kg and lb.",
			},
		},
	}
}

// HeightSubtask is the conversion the MedCalc LLM delegates.
const HeightSubtask = "The height is 1.75 m. Convert it from m to cm."

// WeightSubtask converts a weight given in pounds.
const WeightSubtask = "The weight is 143.3 lb. Convert it from lb to kg."

// Route answers prompts containing Match.
type Route struct {
	Match string
	Reply func(prompt string) string
}

// Router returns an LLM answering each prompt with the first matching route.
func Router(routes ...Route) *LLMFunc {
	return &LLMFunc{Fn: func(ctx context.Context, prompt string) (string, error) {
		for _, r := range routes {
			if strings.Contains(prompt, r.Match) {
				return r.Reply(prompt), nil
			}
		}
		return "", fmt.Errorf("no route for prompt %.60q", prompt)
	}}
}

// Stage markers: distinctive lines of each prompt template.
const (
	ClassifyMarker = "You select a toolkit"
	RewriteMarker  = "You expand"
	DispatchMarker = "You choose the single most suitable tool"
	ExtractMarker  = "You extract function parameters"
	ReflectMarker  = "You check a parameter list"
	DiagnoseMarker = "You are a medical diagnostic model"
	ConsultMarker  = "A user asked a question about a patient"
)

// MedCalcRoutes script a BMI calculation whose height is given in metres:
// the height is delegated to Height Conversion, then BMI is recomputed from
// the converted value.
func MedCalcRoutes() []Route {
	return []Route{
		{Match: ClassifyMarker, Reply: func(p string) string {
			if strings.Contains(strings.ToLower(lineAfter(p, "User query: ")), "convert") {
				return Fenced(`{"chosen_toolkit_name": "unit"}`)
			}
			return Fenced(`{"chosen_toolkit_name": "scale"}`)
		}},
		{Match: RewriteMarker, Reply: func(p string) string {
			if strings.Contains(strings.ToLower(lineAfter(p, "Query: ")), "convert") {
				return Fenced(`["convert height from m to cm", "height conversion", "convert the height"]`)
			}
			return Fenced(`["bmi of the patient", "body mass index bmi", "bmi from weight and height"]`)
		}},
		{Match: DispatchMarker, Reply: func(p string) string {
			demand := strings.ToLower(lineAfter(p, "Demand: "))
			if strings.Contains(p, `"Weight Conversion"`) && strings.Contains(demand, "weight") {
				return Fenced(`{"chosen_tool_name": "Weight Conversion"}`)
			}
			if strings.Contains(p, `"Height Conversion"`) {
				return "Height is the quantity to convert.\n" + Fenced(`{"chosen_tool_name": "Height Conversion"}`)
			}
			return Fenced(`{"chosen_tool_name": "Body Mass Index"}`)
		}},
		{Match: ExtractMarker, Reply: func(p string) string {
			if strings.Contains(p, "from_unit") {
				if strings.Contains(p, WeightSubtask) {
					return Fenced(`{"value": {"Value": 143.3, "Unit": "lb"}, "from_unit": {"Value": "lb", "Unit": null}, "to_unit": {"Value": "kg", "Unit": null}}`)
				}
				return Fenced(`{"value": {"Value": 1.75, "Unit": "m"}, "from_unit": {"Value": "m", "Unit": null}, "to_unit": {"Value": "cm", "Unit": null}}`)
			}
			if strings.Contains(p, "\n\n175\n") {
				return Fenced(`{"weight": {"Value": 65, "Unit": "kg"}, "height": {"Value": 175, "Unit": "cm"}}`)
			}
			return Fenced(`{"weight": {"Value": 65, "Unit": "kg"}, "height": {"Value": 1.75, "Unit": "m"}}`)
		}},
		{Match: ReflectMarker, Reply: func(p string) string {
			if strings.Contains(p, "height=1.75 (m)") {
				return Fenced(`{"chosen_decision_name": "toolcall", "supplementary_information": ["` + HeightSubtask + `"]}`)
			}
			return Fenced(`{"chosen_decision_name": "calculate", "supplementary_information": []}`)
		}},
		{Match: DiagnoseMarker, Reply: func(p string) string {
			return "Adult patient with normal body habitus; no acute findings."
		}},
		{Match: ConsultMarker, Reply: func(p string) string {
			return "The BMI of " + lineAfter(p, "Result: ") + " is in the normal range."
		}},
	}
}

// MedCalcLLM is Router over MedCalcRoutes.
func MedCalcLLM() *LLMFunc {
	return Router(MedCalcRoutes()...)
}

// MedCalcCase is a patient case with the height in metres.
const MedCalcCase = "A 40-year-old man weighs 65 kg and is 1.75 m tall."

func lineAfter(text, prefix string) string {
	i := strings.Index(text, prefix)
	if i < 0 {
		return ""
	}
	rest := text[i+len(prefix):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// PromptsMatching counts prompts containing marker.
func PromptsMatching(prompts []string, marker string) int {
	n := 0
	for _, p := range prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}
