// Package config loads and validates the pipeline configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/ranktune/internal/dataset"
)

// Config is the main configuration structure for ranktune.
type Config struct {
	Version int            `yaml:"version"`
	Dataset DatasetConfig  `yaml:"dataset"`
	Split   dataset.Counts `yaml:"split"`
	Output  OutputConfig   `yaml:"output"`
	Rerank  RerankConfig   `yaml:"rerank"`
	Eval    EvalConfig     `yaml:"eval"`
	Logging LoggingConfig  `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// DatasetConfig selects the corpus rows to prepare.
type DatasetConfig struct {
	// BaseURL of the dataset hub rows API.
	BaseURL string `yaml:"base_url"`
	// Name is the hub dataset id.
	Name string `yaml:"name"`
	// Config is the dataset configuration name.
	Config string `yaml:"config"`
	// Split is the hub split rows are read from.
	Split string `yaml:"split"`
	// Limit is the number of rows fetched from the head of the split.
	Limit int `yaml:"limit"`
	// PageSize per rows API request, capped at 100 by the server.
	PageSize int `yaml:"page_size"`
	// Token is an optional hub access token.
	Token string `yaml:"token"`
	// File reads rows from a local JSONL file instead of the hub.
	File string `yaml:"file"`
}

// OutputConfig controls where prepared splits are written.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	Overwrite bool   `yaml:"overwrite"`
}

// RerankConfig configures the hosted rerank API client.
type RerankConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	// RequestsPerMinute throttles rerank calls client-side. Zero
	// disables throttling.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
}

// EvalConfig configures accuracy evaluation runs.
type EvalConfig struct {
	// BaselineModel is the stock rerank model to compare against.
	BaselineModel string `yaml:"baseline_model"`
	// FineTunedModel is the tuned model id, assigned when the tuning
	// job finishes.
	FineTunedModel string `yaml:"fine_tuned_model"`
	// Concurrency is the number of in-flight rerank calls.
	Concurrency int `yaml:"concurrency"`
	// TestFile overrides the default test split path under output.dir.
	TestFile string `yaml:"test_file"`
	// ReportDir stores evaluation reports as JSON when set.
	ReportDir string `yaml:"report_dir"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration used when no config file is
// present.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration file, resolves includes, expands
// environment variables, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dataset.BaseURL == "" {
		cfg.Dataset.BaseURL = "https://datasets-server.huggingface.co"
	}
	if cfg.Dataset.Name == "" {
		cfg.Dataset.Name = "casehold/casehold"
	}
	if cfg.Dataset.Config == "" {
		cfg.Dataset.Config = "casehold"
	}
	if cfg.Dataset.Split == "" {
		cfg.Dataset.Split = "train"
	}
	if cfg.Dataset.Limit == 0 {
		cfg.Dataset.Limit = 420
	}
	if cfg.Dataset.PageSize == 0 {
		cfg.Dataset.PageSize = 100
	}
	if cfg.Split.Total() == 0 {
		cfg.Split = dataset.Counts{Train: 256, Valid: 154, Test: 10}
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "data"
	}
	if cfg.Rerank.BaseURL == "" {
		cfg.Rerank.BaseURL = "https://api.cohere.com"
	}
	if cfg.Rerank.Timeout == 0 {
		cfg.Rerank.Timeout = 30 * time.Second
	}
	if cfg.Rerank.MaxAttempts == 0 {
		cfg.Rerank.MaxAttempts = 3
	}
	if cfg.Eval.BaselineModel == "" {
		cfg.Eval.BaselineModel = "rerank-english-v2.0"
	}
	if cfg.Eval.Concurrency == 0 {
		cfg.Eval.Concurrency = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if c.Dataset.Limit < 0 {
		return fmt.Errorf("dataset.limit must be non-negative, got %d", c.Dataset.Limit)
	}
	if c.Dataset.PageSize < 1 || c.Dataset.PageSize > 100 {
		return fmt.Errorf("dataset.page_size must be in [1,100], got %d", c.Dataset.PageSize)
	}
	if c.Split.Train < 0 || c.Split.Valid < 0 || c.Split.Test < 0 {
		return fmt.Errorf("split counts must be non-negative: train %d, valid %d, test %d",
			c.Split.Train, c.Split.Valid, c.Split.Test)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Rerank.MaxAttempts < 1 {
		return fmt.Errorf("rerank.max_attempts must be at least 1, got %d", c.Rerank.MaxAttempts)
	}
	if c.Rerank.RequestsPerMinute < 0 {
		return fmt.Errorf("rerank.requests_per_minute must be non-negative, got %v", c.Rerank.RequestsPerMinute)
	}
	if c.Eval.Concurrency < 1 {
		return fmt.Errorf("eval.concurrency must be at least 1, got %d", c.Eval.Concurrency)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
