// Package generator turns clinical calculation rules into catalog tools.
// Three roles share one completion backend: an analyst derives the formulas
// and variables, a coder writes a Python function with a parameter contract,
// and a checker approves the result or sends it back to either role.
package generator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/scottdavis/metatool/pkg/catalog"
	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/prompts"
	"github.com/scottdavis/metatool/pkg/utils"
	"github.com/sourcegraph/conc/pool"
)

// Rule is a calculation to implement.
type Rule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Checker stages a rejection can return to.
const (
	StageAnalysis = "analysis"
	StageCode     = "code"
)

type verdict struct {
	Approved bool   `json:"approved"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

// Generator runs the analyst, coder and checker rounds for a rule.
type Generator struct {
	llm    core.LLM
	config *core.Config
	rounds int
}

// NewGenerator creates a Generator. Each rule gets config.RetryBudget
// rounds; a nil config uses the defaults.
func NewGenerator(llm core.LLM, config *core.Config) *Generator {
	if config == nil {
		config = core.NewConfig()
	}
	return &Generator{llm: llm, config: config, rounds: config.RetryBudget}
}

// WithRounds sets the number of coder/checker rounds per rule.
func (g *Generator) WithRounds(n int) *Generator {
	if n > 0 {
		g.rounds = n
	}
	return g
}

// Generate returns the approved tool for rule.
func (g *Generator) Generate(ctx context.Context, rule Rule) (core.Tool, error) {
	if strings.TrimSpace(rule.Name) == "" {
		return core.Tool{}, errors.New(errors.InvalidInput, "rule has no name")
	}
	logger := g.config.GetLogger().With("generation_id", uuid.NewString(), "rule", rule.Name)

	var (
		analysis, feedback string
		lastErr            error
	)
	for round := 1; round <= g.rounds; round++ {
		if err := ctx.Err(); err != nil {
			return core.Tool{}, err
		}

		if analysis == "" {
			text, err := g.complete(ctx, prompts.Analyse, prompts.AnalyseData{
				Rule: rule.Name, Description: rule.Description, Feedback: feedback,
			})
			if err != nil {
				return core.Tool{}, err
			}
			if analysis = strings.TrimSpace(text); analysis == "" {
				lastErr = errors.New(errors.InvalidResponse, "empty analysis")
				logger.Warn("analyst returned nothing", "round", round)
				continue
			}
			feedback = ""
		}

		answer, err := g.complete(ctx, prompts.Code, prompts.CodeData{
			Rule: rule.Name, Description: rule.Description, Analysis: analysis, Feedback: feedback,
		})
		if err != nil {
			return core.Tool{}, err
		}
		draft, err := parseDraft(answer)
		if err != nil {
			lastErr = err
			feedback = err.Error()
			logger.Warn("coder answer rejected", "round", round, "error", err)
			continue
		}

		properties, _ := json.MarshalIndent(draft.Properties, "", "  ")
		review, err := g.complete(ctx, prompts.Check, prompts.CheckData{
			Rule: rule.Name, Analysis: analysis, Code: draft.Code, Properties: string(properties),
		})
		if err != nil {
			return core.Tool{}, err
		}
		v, err := utils.ParseFenced[verdict](review)
		if err != nil {
			lastErr = err
			logger.Warn("unparseable review", "round", round, "error", err)
			continue
		}
		if v.Approved {
			logger.Info("tool approved", "round", round, "function", draft.FunctionName, "need_unit", draft.NeedUnit)
			return draft.Tool(rule), nil
		}

		lastErr = errors.WithFields(
			errors.New(errors.InvalidResponse, "checker rejected the function"),
			errors.Fields{"stage": v.Stage, "reason": v.Reason})
		feedback = v.Reason
		if v.Stage == StageAnalysis {
			analysis = ""
		}
		logger.Warn("checker rejected", "round", round, "stage", v.Stage, "reason", v.Reason)
	}

	return core.Tool{}, errors.WithFields(
		errors.Wrap(lastErr, errors.GenerateFailed, "tool generation was not approved"),
		errors.Fields{"rule": rule.Name, "rounds": g.rounds})
}

func (g *Generator) complete(ctx context.Context, tmpl *template.Template, data any) (string, error) {
	prompt, err := prompts.Render(tmpl, data)
	if err != nil {
		return "", errors.Wrap(err, errors.InvalidInput, "failed to render generator prompt")
	}
	resp, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Outcome is the result of one rule in a batch.
type Outcome struct {
	Rule Rule
	Tool core.Tool
	Err  error
}

// GenerateAll generates every rule with up to workers rules in flight.
// Outcomes keep the order of rules; one failing rule does not stop the rest.
func (g *Generator) GenerateAll(ctx context.Context, rules []Rule, workers int) []Outcome {
	if workers <= 0 {
		workers = 1
	}
	outcomes := make([]Outcome, len(rules))
	p := pool.New().WithMaxGoroutines(workers)
	for i, rule := range rules {
		p.Go(func() {
			tool, err := g.Generate(ctx, rule)
			outcomes[i] = Outcome{Rule: rule, Tool: tool, Err: err}
		})
	}
	p.Wait()
	return outcomes
}

// WriteCatalog writes the tools of successful outcomes as a catalog that
// catalog.Load accepts, and returns how many were written.
func WriteCatalog(w io.Writer, outcomes []Outcome) (int, error) {
	var tools []core.Tool
	for _, o := range outcomes {
		if o.Err == nil {
			tools = append(tools, o.Tool)
		}
	}
	data, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, errors.InvalidInput, "failed to encode catalog")
	}
	if _, err := catalog.Load(bytes.NewReader(data)); err != nil {
		return 0, err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return 0, errors.Wrap(err, errors.Unknown, "failed to write catalog")
	}
	return len(tools), nil
}

// LoadRules reads rules from a JSON lines file of {"name", "description"}.
func LoadRules(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to open rules"),
			errors.Fields{"path": path})
	}
	defer f.Close()

	var rules []Rule
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var r Rule
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "failed to decode rule"),
				errors.Fields{"path": path, "line": line})
		}
		rules = append(rules, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read rules")
	}
	return rules, nil
}
