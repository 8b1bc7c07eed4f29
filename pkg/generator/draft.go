package generator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/utils"
)

// Property describes one function parameter to the extractor.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Draft is a coder answer that passed the structural checks.
type Draft struct {
	Code         string
	FunctionName string
	// Params are the function's parameters in signature order.
	Params     []string
	Properties map[string]Property
	// NeedUnit maps number parameters to the unit their description requires.
	NeedUnit map[string]string
}

var (
	fencedPython = regexp.MustCompile("(?s)```python(.*?)```")
	signature    = regexp.MustCompile(`(?m)^def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
	unitSuffix   = regexp.MustCompile(`^(.+?) in ([^,]+)`)
)

var pythonTypes = map[string]string{"number": "float", "boolean": "bool", "string": "str"}

// parseDraft reads the ```python and ```json blocks of a coder answer. Any
// contract violation is an InvalidResponse whose message is fed back to the
// coder.
func parseDraft(content string) (*Draft, error) {
	match := fencedPython.FindStringSubmatch(content)
	if match == nil || strings.TrimSpace(match[1]) == "" {
		return nil, errors.New(errors.InvalidResponse, "no ```python block with the function")
	}
	code := strings.TrimSpace(match[1])

	sig := signature.FindStringSubmatch(code)
	if sig == nil {
		return nil, errors.New(errors.InvalidResponse, "the python block defines no top-level function")
	}
	params, err := parseParams(sig[2])
	if err != nil {
		return nil, err
	}

	properties, err := utils.ParseFenced[map[string]Property](content)
	if err != nil {
		return nil, err
	}

	d := &Draft{
		Code:         code,
		FunctionName: sig[1],
		Params:       params,
		Properties:   properties,
		NeedUnit:     make(map[string]string),
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func parseParams(list string) ([]string, error) {
	var params []string
	for _, raw := range strings.Split(list, ",") {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "*") {
			return nil, errors.WithFields(
				errors.New(errors.InvalidResponse, "variadic parameters are not allowed"),
				errors.Fields{"param": p})
		}
		if i := strings.IndexAny(p, ":="); i >= 0 {
			p = strings.TrimSpace(p[:i])
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return nil, errors.New(errors.InvalidResponse, "the function takes no parameters")
	}
	return params, nil
}

func (d *Draft) validate() error {
	for _, p := range d.Params {
		if _, ok := d.Properties[p]; !ok {
			return errors.WithFields(
				errors.New(errors.InvalidResponse, "parameter missing from properties"),
				errors.Fields{"param": p})
		}
	}
	for name, prop := range d.Properties {
		if !slices.Contains(d.Params, name) {
			return errors.WithFields(
				errors.New(errors.InvalidResponse, "property is not a function parameter"),
				errors.Fields{"property": name})
		}
		if _, ok := pythonTypes[prop.Type]; !ok {
			return errors.WithFields(
				errors.New(errors.InvalidResponse, `property type must be "number", "boolean" or "string"`),
				errors.Fields{"property": name, "type": prop.Type})
		}
		if prop.Type == "number" {
			if m := unitSuffix.FindStringSubmatch(prop.Description); m != nil {
				d.NeedUnit[name] = strings.TrimSpace(m[2])
			}
		}
	}
	return nil
}

// Docstring renders the parameter contract the extractor and reflector read.
func (d *Draft) Docstring(rule Rule) string {
	var b strings.Builder
	b.WriteString(rule.Name)
	b.WriteString(".\n\nParameters:\n")
	for _, p := range d.Params {
		prop := d.Properties[p]
		fmt.Fprintf(&b, "  %s (%s): %s.\n", p, pythonTypes[prop.Type], strings.TrimSuffix(prop.Description, "."))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Tool turns the draft into a catalog entry whose code runs in the process
// sandbox.
func (d *Draft) Tool(rule Rule) core.Tool {
	return core.Tool{
		Name:         rule.Name,
		FunctionName: d.FunctionName,
		Docstring:    d.Docstring(rule),
		Description:  rule.Description,
		Code:         d.Code,
	}
}
