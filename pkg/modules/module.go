// Package modules implements the LLM-backed pipeline stages: toolkit
// classification, query rewriting, tool dispatch, parameter extraction and
// reflection. Every stage retries unparseable responses up to the configured
// budget; backend failures are returned at once.
package modules

import (
	"context"
	"log/slog"

	"github.com/scottdavis/metatool/pkg/core"
	"github.com/scottdavis/metatool/pkg/errors"
)

// Stage names, used in logs and error fields.
const (
	StageClassify = "classify"
	StageRewrite  = "rewrite"
	StageDispatch = "dispatch"
	StageExtract  = "extract"
	StageReflect  = "reflect"
)

// stage holds what every LLM-backed stage shares.
type stage struct {
	name   string
	code   errors.ErrorCode
	llm    core.LLM
	config *core.Config
}

func newStage(name string, code errors.ErrorCode, llm core.LLM, config *core.Config) stage {
	if config == nil {
		config = core.NewConfig()
	}
	return stage{name: name, code: code, llm: llm, config: config}
}

func (s stage) logger() *slog.Logger {
	return s.config.GetLogger().With("stage", s.name)
}

// generate sends prompt and hands the completion to parse, retrying while
// parse reports InvalidResponse.
func generate[T any](ctx context.Context, s stage, prompt string, parse func(content string) (T, error)) (T, error) {
	var zero T
	logger := s.logger()
	budget := s.config.RetryBudget

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		resp, err := s.llm.Generate(ctx, prompt)
		if err != nil {
			return zero, errors.WithFields(err, errors.Fields{"stage": s.name, "attempt": attempt})
		}

		result, err := parse(resp.Content)
		if err == nil {
			logger.Debug("stage succeeded", "attempt", attempt)
			return result, nil
		}
		if errors.CodeOf(err) != errors.InvalidResponse {
			return zero, errors.WithFields(err, errors.Fields{"stage": s.name, "attempt": attempt})
		}

		lastErr = err
		logger.Warn("unparseable response, retrying",
			"attempt", attempt, "budget", budget, "error", err)
	}

	return zero, errors.WithFields(
		errors.Wrap(lastErr, s.code, "retry budget exhausted for stage "+s.name),
		errors.Fields{"attempts": budget})
}

// parseFailure builds an InvalidResponse error for a structurally valid
// response whose content is unusable.
func parseFailure(message string, fields errors.Fields) error {
	return errors.WithFields(errors.New(errors.InvalidResponse, message), fields)
}
