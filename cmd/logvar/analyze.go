package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/logflow/logvar/pkg/batch"
	"github.com/logflow/logvar/pkg/config"
	"github.com/logflow/logvar/pkg/output"
	"github.com/logflow/logvar/pkg/tui"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [name=path ...]",
	Short: "Compute variability metrics for one or more logs",
	Long: `Analyze event logs and write one "Results for <name>:" block per log.

Logs are taken from the arguments, in order, or from the logs section of the
config file. A bare path is named after its file name. A log that fails is
reported and the others are still analyzed; the exit code is non-zero if any
log failed.

Examples:
  logvar analyze BPIC15_1=data/BPIC15_1.xes.gz road=data/road_fines.csv
  logvar analyze s3://event-logs/sepsis.xes -o results.json --format json
  logvar analyze --strategy shared --workers 8 --max-pairs 50000000 big.xes`,
	RunE: runAnalyze,
}

func init() {
	addAnalysisFlags(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	specs, err := logSpecs(cfg, args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	summary := a.runner.Run(ctx, specs)
	if a.progress != nil {
		a.progress.Done()
	}

	if err := writeResults(cfg, summary.Results); err != nil {
		return err
	}
	if cfg.Output.Terminal {
		tui.PrintSummary(os.Stdout, summary)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d logs failed", summary.Failed, len(summary.Results))
	}
	return nil
}

// writeResults writes the results file, or stdout for "-".
func writeResults(cfg *config.Config, results []batch.Result) error {
	switch cfg.Output.Path {
	case "":
		return nil
	case "-":
		return output.Write(os.Stdout, cfg.Output.Format, results)
	}
	return output.WriteFile(cfg.Output.Path, cfg.Output.Format, results)
}
