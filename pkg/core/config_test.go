package core

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("NewConfig", func(t *testing.T) {
		config := NewConfig()
		assert.NotNil(t, config)
		assert.Equal(t, 5, config.RetryBudget)
		assert.True(t, config.Parallel)
		assert.Equal(t, 2, config.QueryConcurrency)
		assert.Equal(t, 2, config.SignalConcurrency)
		assert.Equal(t, 10, config.DispatchCutoff)
		assert.Equal(t, 60, config.RRFK)
		assert.Equal(t, 3, config.MaxDepth)
		assert.Equal(t, "memory", config.Cache.Backend)
	})

	t.Run("WithRetryBudget", func(t *testing.T) {
		config := NewConfig().WithRetryBudget(2)
		assert.Equal(t, 2, config.RetryBudget)

		// Invalid budget should reset to the default
		config = config.WithRetryBudget(0)
		assert.Equal(t, DefaultRetryBudget, config.RetryBudget)
		config = config.WithRetryBudget(-3)
		assert.Equal(t, DefaultRetryBudget, config.RetryBudget)
	})

	t.Run("WithConcurrency", func(t *testing.T) {
		config := NewConfig().WithConcurrency(4, 3)
		assert.Equal(t, 4, config.QueryConcurrency)
		assert.Equal(t, 3, config.SignalConcurrency)

		config = config.WithConcurrency(0, -1)
		assert.Equal(t, 2, config.QueryConcurrency)
		assert.Equal(t, 2, config.SignalConcurrency)
	})

	t.Run("WithMaxDepth", func(t *testing.T) {
		config := NewConfig().WithMaxDepth(0)
		assert.Equal(t, 0, config.MaxDepth)
		config = config.WithMaxDepth(-1)
		assert.Equal(t, DefaultMaxDepth, config.MaxDepth)
	})

	t.Run("Logger", func(t *testing.T) {
		config := NewConfig()
		assert.Equal(t, slog.Default(), config.GetLogger())

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		assert.Equal(t, logger, config.WithLogger(logger).GetLogger())

		var nilConfig *Config
		assert.NotNil(t, nilConfig.GetLogger())
	})
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metatool.yaml")
	content := `
retry_budget: 3
parallel: false
dispatch_cutoff: 5
rrf_k: 0
catalogs:
  scale: /data/tool_scale.json
models:
  llm: ollama:llama3
  embedding: ollama:nomic-embed-text
cache:
  backend: sqlite
  sqlite_path: /tmp/embeddings.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, config.RetryBudget)
	assert.False(t, config.Parallel)
	assert.Equal(t, 5, config.DispatchCutoff)
	assert.Equal(t, DefaultRRFK, config.RRFK)
	assert.Equal(t, "/data/tool_scale.json", config.Catalogs.Scale)
	assert.Equal(t, "./CalcQA/tool_unit.json", config.Catalogs.Unit)
	assert.Equal(t, "ollama:llama3", config.Models.LLM)
	assert.Equal(t, "sqlite", config.Cache.Backend)
	assert.Equal(t, 2, config.QueryConcurrency)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, errors.ResourceNotFound, errors.CodeOf(err))

	require.NoError(t, os.WriteFile(path, []byte("retry_budget: [oops"), 0o600))
	_, err = LoadConfig(path)
	assert.Equal(t, errors.InvalidInput, errors.CodeOf(err))
	assert.Contains(t, err.Error(), path)
}
