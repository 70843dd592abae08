package main

import (
	"github.com/spf13/cobra"
)

// defaultConfigFile is used when --config is not given. Commands fall back
// to built-in defaults when this file does not exist.
const defaultConfigFile = "ranktune.yaml"

func buildPrepareCmd() *cobra.Command {
	var (
		configPath string
		fromFile   string
		outputDir  string
		limit      int
		overwrite  bool
	)
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Fetch corpus rows and write train/valid/test splits",
		Long: `Prepare fetches rows from the dataset hub (or reads them from a local
JSONL file), shapes each row into a rerank fine-tuning example, and writes
contiguous train/valid/test splits under the output directory.

Existing split files are skipped unless --overwrite is set, so a rerun
after a partial failure completes the missing files without clobbering
the rest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(cmd, configPath, fromFile, outputDir, limit, overwrite)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigFile, "Path to YAML configuration file")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "Read rows from a local JSONL file instead of the dataset hub")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for split files (overrides output.dir)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of rows to fetch from the head of the split (overrides dataset.limit)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing split files instead of skipping them")
	return cmd
}

func buildEvalCmd() *cobra.Command {
	var (
		configPath  string
		model       string
		testFile    string
		output      string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score a rerank model on the held-out test split",
		Long: `Eval asks the rerank model to pick the most relevant of each example's
five candidate passages and reports accuracy: the fraction of examples
where the model's top pick is the labeled holding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, configPath, model, testFile, output, metricsAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigFile, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Rerank model id to score (defaults to eval.baseline_model)")
	cmd.Flags().StringVar(&testFile, "test-file", "", "Test split path (defaults to <output.dir>/test.jsonl)")
	cmd.Flags().StringVar(&output, "output", "", "Write JSON report to file (optional)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the run is in flight")
	return cmd
}

func buildCompareCmd() *cobra.Command {
	var (
		configPath  string
		baseline    string
		fineTuned   string
		testFile    string
		output      string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a fine-tuned rerank model against the baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, configPath, baseline, fineTuned, testFile, output, metricsAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigFile, "Path to YAML configuration file")
	cmd.Flags().StringVar(&baseline, "baseline", "", "Baseline model id (defaults to eval.baseline_model)")
	cmd.Flags().StringVar(&fineTuned, "fine-tuned", "", "Fine-tuned model id (defaults to eval.fine_tuned_model)")
	cmd.Flags().StringVar(&testFile, "test-file", "", "Test split path (defaults to <output.dir>/test.jsonl)")
	cmd.Flags().StringVar(&output, "output", "", "Write JSON comparison to file (optional)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the run is in flight")
	return cmd
}

func buildValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check prepared JSONL files against the record schema",
		Long: `Validate checks every record in the given JSONL files against the
fine-tune record schema: a non-empty query, at least one relevant
passage, at least one hard negative, and no unknown fields. A label
field, as written to the test split, must be an integer candidate index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args)
		},
	}
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigShowCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}
}

func buildConfigShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigFile, "Path to YAML configuration file")
	return cmd
}
