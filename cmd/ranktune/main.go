// Package main provides the CLI entry point for ranktune, a pipeline that
// prepares rerank fine-tuning data from the CaseHOLD corpus and measures
// how much a fine-tuned rerank model improves over the stock one.
//
// # Basic Usage
//
// Fetch rows, shape them into examples, and write the train/valid/test
// splits:
//
//	ranktune prepare --config ranktune.yaml
//
// Check prepared files against the fine-tune record schema:
//
//	ranktune validate data/train.jsonl data/valid.jsonl
//
// Score a model's choose-one-of-five accuracy on the held-out test split:
//
//	ranktune eval --model rerank-english-v2.0
//
// Compare the fine-tuned model against the baseline:
//
//	ranktune compare --fine-tuned 992ecf9f-...-ft
//
// # Environment Variables
//
//   - COHERE_API_KEY: rerank API key, used when rerank.api_key is unset
//   - HF_TOKEN: dataset hub token for gated datasets, referenced from the
//     config file as ${HF_TOKEN}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	// Structured logging with JSON output; handlers swap this for the
	// configured logger once the config file is loaded.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ranktune",
		Short: "Ranktune - rerank fine-tuning data pipeline",
		Long: `Ranktune prepares rerank fine-tuning data and evaluates the result.

The pipeline shapes CaseHOLD rows (a citing passage plus five candidate
holdings, one correct) into rerank training examples: the labeled holding
becomes the relevant passage, the other four become hard negatives. It
splits the examples into train/valid/test JSONL files and scores rerank
models on the held-out test split by asking each one to pick the single
most relevant candidate.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildPrepareCmd(),
		buildEvalCmd(),
		buildCompareCmd(),
		buildValidateCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
