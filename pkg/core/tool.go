package core

import (
	"context"
	"strings"

	"github.com/scottdavis/metatool/pkg/errors"
)

// Toolkit is a top-level category of tools.
type Toolkit string

const (
	// ToolkitScale holds clinical scoring tools.
	ToolkitScale Toolkit = "scale"
	// ToolkitUnit holds unit-conversion tools. They are leaves: configuring
	// one never delegates further.
	ToolkitUnit Toolkit = "unit"
)

// Toolkits lists every valid toolkit.
var Toolkits = []Toolkit{ToolkitUnit, ToolkitScale}

// ParseToolkit normalizes s and rejects values outside Toolkits.
func ParseToolkit(s string) (Toolkit, error) {
	t := Toolkit(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Toolkits {
		if t == valid {
			return t, nil
		}
	}
	return "", errors.WithFields(
		errors.New(errors.InvalidInput, "unknown toolkit"),
		errors.Fields{"toolkit": s})
}

// Tool is an immutable catalog entry.
type Tool struct {
	Name         string `json:"tool_name"`
	FunctionName string `json:"function_name"`
	Docstring    string `json:"docstring"`
	Description  string `json:"description"`
	Code         string `json:"code"`
}

// Resolution identifies the tool chosen for a demand.
type Resolution struct {
	Toolkit Toolkit
	Index   int
	Name    string
}

// Sandbox executes catalog-provided tool bodies.
type Sandbox interface {
	// Run invokes entry from code with named arguments.
	Run(ctx context.Context, code, entry string, args map[string]any) (any, error)
}

// SandboxFunc adapts a function to Sandbox.
type SandboxFunc func(ctx context.Context, code, entry string, args map[string]any) (any, error)

func (f SandboxFunc) Run(ctx context.Context, code, entry string, args map[string]any) (any, error) {
	return f(ctx, code, entry, args)
}
