package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/ranktune/internal/casehold"
	"github.com/haasonsaas/ranktune/internal/config"
	"github.com/haasonsaas/ranktune/internal/dataset"
	"github.com/haasonsaas/ranktune/internal/eval"
	"github.com/haasonsaas/ranktune/internal/jsonl"
	"github.com/haasonsaas/ranktune/internal/observability"
	"github.com/haasonsaas/ranktune/internal/rerank"
)

// loadConfig reads the config file. The default path is allowed to be
// absent; an explicit --config path is not.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigFile {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func buildLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

// startMetricsServer serves /metrics while a long run is in flight.
func startMetricsServer(logger *observability.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "metrics server failed", "error", err)
		}
	}()
	return server
}

func runPrepare(cmd *cobra.Command, configPath, fromFile, outputDir string, limit int, overwrite bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if fromFile != "" {
		cfg.Dataset.File = fromFile
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if limit > 0 {
		cfg.Dataset.Limit = limit
	}
	if overwrite {
		cfg.Output.Overwrite = true
	}

	logger := buildLogger(cfg)
	metrics := observability.NewMetrics()
	if cfg.Metrics.Enabled {
		server := startMetricsServer(logger, cfg.Metrics.Addr)
		defer server.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.AddRunID(ctx, uuid.NewString())

	out := cmd.OutOrStdout()

	var rows []casehold.Row
	if cfg.Dataset.File != "" {
		rows, err = casehold.ReadRows(cfg.Dataset.File)
		if err != nil {
			return err
		}
		metrics.RecordRowsFetched("file", len(rows))
		logger.Info(ctx, "read rows from file", "file", cfg.Dataset.File, "rows", len(rows))
		fmt.Fprintf(out, "Read %d rows from %s\n", len(rows), cfg.Dataset.File)
	} else {
		client := casehold.NewClient(&casehold.Config{
			BaseURL:  cfg.Dataset.BaseURL,
			Token:    cfg.Dataset.Token,
			PageSize: cfg.Dataset.PageSize,
		})
		rows, err = client.Fetch(ctx, casehold.FetchOptions{
			Dataset: cfg.Dataset.Name,
			Config:  cfg.Dataset.Config,
			Split:   cfg.Dataset.Split,
			Limit:   cfg.Dataset.Limit,
		})
		if err != nil {
			return err
		}
		metrics.RecordRowsFetched("api", len(rows))
		logger.Info(ctx, "fetched rows", "dataset", cfg.Dataset.Name, "split", cfg.Dataset.Split, "rows", len(rows))
		fmt.Fprintf(out, "Fetched %d rows from %s\n", len(rows), cfg.Dataset.Name)
	}

	examples, err := dataset.NormalizeAll(rows)
	if err != nil {
		return err
	}

	splits, err := dataset.Split(examples, cfg.Split)
	if err != nil {
		return err
	}

	results, err := dataset.WriteSplits(cfg.Output.Dir, splits, cfg.Output.Overwrite)
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Skipped {
			fmt.Fprintf(out, "%s exists, skipping (use --overwrite)\n", result.Path)
			continue
		}
		split := strings.TrimSuffix(filepath.Base(result.Path), ".jsonl")
		metrics.RecordExamplesWritten(split, result.Records)
		fmt.Fprintf(out, "Wrote %d records to %s\n", result.Records, result.Path)
	}

	logger.Info(ctx, "prepare complete",
		"examples", len(examples),
		"train", len(splits.Train), "valid", len(splits.Valid), "test", len(splits.Test))
	fmt.Fprintf(out, "Prepared %d examples (train %d, valid %d, test %d)\n",
		cfg.Split.Total(), len(splits.Train), len(splits.Valid), len(splits.Test))
	return nil
}

// resolveAPIKey falls back to the environment when the config carries no
// rerank key.
func resolveAPIKey(cfg *config.Config) error {
	if cfg.Rerank.APIKey == "" {
		cfg.Rerank.APIKey = os.Getenv("COHERE_API_KEY")
	}
	if cfg.Rerank.APIKey == "" {
		return fmt.Errorf("rerank api key is required: set rerank.api_key or COHERE_API_KEY")
	}
	return nil
}

func resolveTestFile(cfg *config.Config, testFile string) string {
	if testFile != "" {
		return testFile
	}
	if cfg.Eval.TestFile != "" {
		return cfg.Eval.TestFile
	}
	return filepath.Join(cfg.Output.Dir, dataset.TestFile)
}

func buildRerankClient(cfg *config.Config, metrics *observability.Metrics) *rerank.Client {
	return rerank.NewClient(&rerank.Config{
		BaseURL:           cfg.Rerank.BaseURL,
		APIKey:            cfg.Rerank.APIKey,
		Timeout:           cfg.Rerank.Timeout,
		MaxAttempts:       cfg.Rerank.MaxAttempts,
		RequestsPerMinute: cfg.Rerank.RequestsPerMinute,
	}, metrics)
}

func scoreModel(ctx context.Context, cfg *config.Config, client *rerank.Client, metrics *observability.Metrics, model string, examples []dataset.Example) (*eval.Report, error) {
	evaluator, err := eval.NewEvaluator(client, eval.Options{
		Model:       model,
		Concurrency: cfg.Eval.Concurrency,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}
	return evaluator.Evaluate(ctx, examples)
}

// writeReport serializes any report value to the explicit output path, or
// into the configured report directory under name when no path is given.
func writeReport(cfg *config.Config, output, name string, report any) (string, error) {
	if output == "" {
		if cfg.Eval.ReportDir == "" {
			return "", nil
		}
		output = filepath.Join(cfg.Eval.ReportDir, name)
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(output, payload, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return output, nil
}

func runEval(cmd *cobra.Command, configPath, model, testFile, output, metricsAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if model == "" {
		model = cfg.Eval.BaselineModel
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	if err := resolveAPIKey(cfg); err != nil {
		return err
	}

	logger := buildLogger(cfg)
	metrics := observability.NewMetrics()
	if cfg.Metrics.Enabled {
		server := startMetricsServer(logger, cfg.Metrics.Addr)
		defer server.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.AddRunID(ctx, uuid.NewString())

	testPath := resolveTestFile(cfg, testFile)
	examples, err := dataset.ReadExamples(testPath)
	if err != nil {
		return err
	}
	logger.Info(ctx, "evaluating model", "model", model, "examples", len(examples))

	client := buildRerankClient(cfg, metrics)
	report, err := scoreModel(ctx, cfg, client, metrics, model, examples)
	if err != nil {
		return err
	}

	written, err := writeReport(cfg, output, fmt.Sprintf("eval-%s.json", report.RunID), report)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rerank Evaluation\n")
	fmt.Fprintf(out, "Model: %s\n", report.Model)
	fmt.Fprintf(out, "Examples: %d\n", report.Examples)
	fmt.Fprintf(out, "Correct: %d\n", report.Correct)
	fmt.Fprintf(out, "Accuracy: %.3f\n", report.Accuracy)
	if written != "" {
		fmt.Fprintf(out, "Report written to %s\n", written)
	}
	return nil
}

func runCompare(cmd *cobra.Command, configPath, baseline, fineTuned, testFile, output, metricsAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if baseline == "" {
		baseline = cfg.Eval.BaselineModel
	}
	if fineTuned == "" {
		fineTuned = cfg.Eval.FineTunedModel
	}
	if fineTuned == "" {
		return fmt.Errorf("fine-tuned model id is required: set eval.fine_tuned_model or --fine-tuned")
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	if err := resolveAPIKey(cfg); err != nil {
		return err
	}

	logger := buildLogger(cfg)
	metrics := observability.NewMetrics()
	if cfg.Metrics.Enabled {
		server := startMetricsServer(logger, cfg.Metrics.Addr)
		defer server.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.AddRunID(ctx, uuid.NewString())

	testPath := resolveTestFile(cfg, testFile)
	examples, err := dataset.ReadExamples(testPath)
	if err != nil {
		return err
	}

	client := buildRerankClient(cfg, metrics)

	logger.Info(ctx, "evaluating baseline", "model", baseline, "examples", len(examples))
	baselineReport, err := scoreModel(ctx, cfg, client, metrics, baseline, examples)
	if err != nil {
		return fmt.Errorf("baseline eval: %w", err)
	}

	logger.Info(ctx, "evaluating fine-tuned", "model", fineTuned, "examples", len(examples))
	fineTunedReport, err := scoreModel(ctx, cfg, client, metrics, fineTuned, examples)
	if err != nil {
		return fmt.Errorf("fine-tuned eval: %w", err)
	}

	comparison := eval.Compare(baselineReport, fineTunedReport)

	written, err := writeReport(cfg, output, fmt.Sprintf("compare-%s.json", baselineReport.RunID), comparison)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rerank Comparison\n")
	fmt.Fprintf(out, "Baseline (%s): accuracy %.3f (%d/%d)\n",
		baselineReport.Model, baselineReport.Accuracy, baselineReport.Correct, baselineReport.Examples)
	fmt.Fprintf(out, "Fine-tuned (%s): accuracy %.3f (%d/%d)\n",
		fineTunedReport.Model, fineTunedReport.Accuracy, fineTunedReport.Correct, fineTunedReport.Examples)
	fmt.Fprintf(out, "Delta: %+.3f\n", comparison.Delta)
	if written != "" {
		fmt.Fprintf(out, "Comparison written to %s\n", written)
	}
	return nil
}

func runValidate(cmd *cobra.Command, paths []string) error {
	schemaDoc, err := dataset.RecordSchema()
	if err != nil {
		return fmt.Errorf("build record schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", bytes.NewReader(schemaDoc)); err != nil {
		return fmt.Errorf("load record schema: %w", err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return fmt.Errorf("compile record schema: %w", err)
	}

	out := cmd.OutOrStdout()
	problems := 0
	for _, path := range paths {
		records, err := jsonl.ReadFile[map[string]any](path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			problems++
			continue
		}

		fileProblems := 0
		for i, record := range records {
			if err := validateRecord(schema, record); err != nil {
				fmt.Fprintf(out, "%s: record %d: %v\n", path, i+1, err)
				fileProblems++
			}
		}
		if fileProblems == 0 {
			fmt.Fprintf(out, "%s: %d records OK\n", path, len(records))
		}
		problems += fileProblems
	}

	if problems > 0 {
		return fmt.Errorf("validation failed with %d problem(s)", problems)
	}
	return nil
}

// validateRecord checks one decoded JSONL record. The label, present in
// the test split only, is checked separately and removed before schema
// validation since the upload schema has no label field.
func validateRecord(schema *jsonschema.Schema, record map[string]any) error {
	if label, ok := record["label"]; ok {
		value, isNumber := label.(float64)
		if !isNumber || value != math.Trunc(value) {
			return fmt.Errorf("label %v is not an integer", label)
		}
		if value < 0 || value >= casehold.NumHoldings {
			return fmt.Errorf("label %d out of range [0,%d)", int(value), casehold.NumHoldings)
		}
		delete(record, "label")
	}
	return schema.Validate(record)
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return nil
}

func runConfigShow(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Never print credentials.
	redacted := *cfg
	if redacted.Rerank.APIKey != "" {
		redacted.Rerank.APIKey = "[REDACTED]"
	}
	if redacted.Dataset.Token != "" {
		redacted.Dataset.Token = "[REDACTED]"
	}

	payload, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(payload))
	return nil
}
