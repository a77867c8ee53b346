package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/logvar/pkg/config"
	"github.com/logflow/logvar/pkg/tui"
	"github.com/logflow/logvar/pkg/variability"
)

var limitFlag int

var variantsCmd = &cobra.Command{
	Use:   "variants <path>",
	Short: "List the variants of a log with their frequencies",
	Long: `Parse a log and list its distinct variants, most frequent first.

Examples:
  logvar variants data/sepsis.xes
  logvar variants --limit 0 --activity Activity data/orders.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runVariants,
}

var distanceCmd = &cobra.Command{
	Use:   "distance <a> <b>",
	Short: "Edit distance between two comma-separated activity sequences",
	Long: `Compute the word-level edit distance used between variants.

Examples:
  logvar distance A,B,C A,C,B`,
	Args: cobra.ExactArgs(2),
	RunE: runDistance,
}

func init() {
	variantsCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Number of variants to show (0 = all)")
	variantsCmd.Flags().StringVar(&activityKeyFlag, "activity", "", "Activity attribute or column")
	variantsCmd.Flags().StringVar(&caseKeyFlag, "case-id", "", "Case ID column")
	variantsCmd.Flags().StringVar(&timestampKeyFlag, "timestamp", "", "Timestamp attribute or column")
	variantsCmd.Flags().StringVar(&delimiterFlag, "delimiter", "", "CSV field delimiter")
	variantsCmd.Flags().StringVar(&engineFlag, "engine", "", "Loader for local tabular files (native, duckdb)")
}

func runVariants(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	spec, err := config.ParseLogSpec(args[0])
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	loader := newLoader(cfg, logger)
	defer loader.Close()

	obj, err := loader.Fetch(ctx, spec.Source)
	if err != nil {
		return err
	}
	log, err := loader.Parse(ctx, obj, spec.Name)
	if err != nil {
		return err
	}
	if err := variability.ValidateLog(log); err != nil {
		return err
	}

	tui.PrintVariants(os.Stdout, spec.Name, variability.ExtractVariants(log), limitFlag)
	return nil
}

func runDistance(cmd *cobra.Command, args []string) error {
	a, b := splitLabels(args[0]), splitLabels(args[1])
	tui.PrintDistance(os.Stdout, a, b, variability.EditDistance(a, b))
	return nil
}

// splitLabels splits a comma-separated sequence; the empty string is the
// empty sequence.
func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	labels := strings.Split(s, ",")
	for i := range labels {
		labels[i] = strings.TrimSpace(labels[i])
	}
	return labels
}
