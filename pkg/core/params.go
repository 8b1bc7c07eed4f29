package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ParameterEntry is an extracted parameter value with the unit found in
// the source text. Unit is nil for dimensionless parameters.
type ParameterEntry struct {
	Value any     `json:"Value"`
	Unit  *string `json:"Unit"`
}

// Parameters maps parameter names to extracted entries.
type Parameters map[string]ParameterEntry

// Values strips units, leaving the raw call arguments.
func (p Parameters) Values() map[string]any {
	out := make(map[string]any, len(p))
	for name, entry := range p {
		out[name] = entry.Value
	}
	return out
}

// String renders the parameters in name order for prompts and logs.
func (p Parameters) String() string {
	var b strings.Builder
	for i, name := range slices.Sorted(maps.Keys(p)) {
		if i > 0 {
			b.WriteString("; ")
		}
		entry := p[name]
		unit := "null"
		if entry.Unit != nil {
			unit = *entry.Unit
		}
		fmt.Fprintf(&b, "%s=%v (%s)", name, entry.Value, unit)
	}
	return b.String()
}

// DecisionKind is the outcome of reflecting on extracted parameters.
type DecisionKind string

const (
	DecisionCalculate DecisionKind = "calculate"
	DecisionToolCall  DecisionKind = "toolcall"
)

// Decision is either terminal (calculate) or carries self-contained
// conversion subtasks (toolcall).
type Decision struct {
	Kind     DecisionKind
	Subtasks []string
}
