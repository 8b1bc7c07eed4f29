package core

import (
	"io/fs"
	"log/slog"
	"os"

	"github.com/scottdavis/metatool/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRetryBudget       = 5
	DefaultQueryConcurrency  = 2
	DefaultSignalConcurrency = 2
	DefaultDispatchCutoff    = 10
	DefaultRRFK              = 60
	DefaultMaxDepth          = 3
	DefaultMaxRestarts       = 3
)

// Config holds the tunables threaded through every pipeline component.
type Config struct {
	// RetryBudget is the number of attempts a stage makes before failing.
	RetryBudget int `yaml:"retry_budget"`
	// Parallel enables the per-query and per-signal worker pools.
	Parallel          bool `yaml:"parallel"`
	QueryConcurrency  int  `yaml:"query_concurrency"`
	SignalConcurrency int  `yaml:"signal_concurrency"`
	// DispatchCutoff is the number of top-ranked candidates shown to the dispatcher.
	DispatchCutoff int `yaml:"dispatch_cutoff"`
	RRFK           int `yaml:"rrf_k"`
	// MaxDepth bounds nested tool-call delegation.
	MaxDepth int `yaml:"max_depth"`
	// MaxRestarts bounds extract restarts within one configuration frame.
	MaxRestarts int `yaml:"max_restarts"`

	Catalogs CatalogPaths `yaml:"catalogs"`
	Models   ModelConfig  `yaml:"models"`
	Cache    CacheConfig  `yaml:"cache"`

	Logger *slog.Logger `yaml:"-"`
}

// CatalogPaths locates the tool catalog file of each toolkit.
type CatalogPaths struct {
	Scale string `yaml:"scale"`
	Unit  string `yaml:"unit"`
}

// ModelConfig names the completion and embedding models.
type ModelConfig struct {
	LLM       string `yaml:"llm"`
	Embedding string `yaml:"embedding"`
	APIKey    string `yaml:"api_key"`
}

// CacheConfig selects the embedding cache backend: "memory", "sqlite" or "redis".
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// NewConfig creates a new configuration with default values.
func NewConfig() *Config {
	return &Config{
		RetryBudget:       DefaultRetryBudget,
		Parallel:          true,
		QueryConcurrency:  DefaultQueryConcurrency,
		SignalConcurrency: DefaultSignalConcurrency,
		DispatchCutoff:    DefaultDispatchCutoff,
		RRFK:              DefaultRRFK,
		MaxDepth:          DefaultMaxDepth,
		MaxRestarts:       DefaultMaxRestarts,
		Catalogs: CatalogPaths{
			Scale: "./CalcQA/tool_scale.json",
			Unit:  "./CalcQA/tool_unit.json",
		},
		Cache: CacheConfig{Backend: "memory"},
	}
}

// LoadConfig reads a YAML file over the defaults. Fields absent from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := errors.InvalidInput
		if errors.Is(err, fs.ErrNotExist) {
			code = errors.ResourceNotFound
		}
		return nil, errors.WithFields(
			errors.Wrap(err, code, "failed to read config"),
			errors.Fields{"path": path})
	}
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse config"),
			errors.Fields{"path": path})
	}
	return cfg.normalize(), nil
}

// WithRetryBudget sets the per-stage attempt budget.
func (c *Config) WithRetryBudget(n int) *Config {
	c.RetryBudget = n
	return c.normalize()
}

// WithParallel toggles parallel retrieval.
func (c *Config) WithParallel(parallel bool) *Config {
	c.Parallel = parallel
	return c
}

// WithConcurrency sets the per-query and per-signal pool widths.
func (c *Config) WithConcurrency(queries, signals int) *Config {
	c.QueryConcurrency = queries
	c.SignalConcurrency = signals
	return c.normalize()
}

// WithDispatchCutoff sets how many candidates the dispatcher sees.
func (c *Config) WithDispatchCutoff(d int) *Config {
	c.DispatchCutoff = d
	return c.normalize()
}

// WithMaxDepth sets the delegation depth bound.
func (c *Config) WithMaxDepth(depth int) *Config {
	c.MaxDepth = depth
	return c.normalize()
}

// WithMaxRestarts sets the per-frame restart bound.
func (c *Config) WithMaxRestarts(n int) *Config {
	c.MaxRestarts = n
	return c.normalize()
}

// WithLogger sets the logger.
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}

// GetLogger returns the configured logger or slog.Default.
func (c *Config) GetLogger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// normalize resets invalid values to their defaults.
func (c *Config) normalize() *Config {
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	if c.QueryConcurrency <= 0 {
		c.QueryConcurrency = DefaultQueryConcurrency
	}
	if c.SignalConcurrency <= 0 {
		c.SignalConcurrency = DefaultSignalConcurrency
	}
	if c.DispatchCutoff <= 0 {
		c.DispatchCutoff = DefaultDispatchCutoff
	}
	if c.RRFK <= 0 {
		c.RRFK = DefaultRRFK
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
	return c
}
