package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/proclat/internal/config"
	"firestige.xyz/proclat/internal/report"
	"firestige.xyz/proclat/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats <pairs.csv>...",
	Short: "Re-aggregate latency statistics from pair tables",
	Long: `Re-aggregate latency statistics from one or more pair tables written by
analyze, possibly with different grouping dimensions or percentiles.

Examples:
  proclat stats output/pairs.csv --group-by variant,procedure
  proclat stats a/pairs.csv b/pairs.csv --percentiles 50,95 -o stats.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupBy := globalConfig.Output.GroupBy
		if cmd.Flags().Changed("group-by") {
			groupBy = statsGroupBy
		}
		percentiles := globalConfig.Output.Percentiles
		if cmd.Flags().Changed("percentiles") {
			percentiles = statsPercentiles
		}

		out := cmd.OutOrStdout()
		if statsOutput != "" {
			f, err := os.Create(statsOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return runStats(args, groupBy, percentiles, out)
	},
}

var (
	statsGroupBy     []string
	statsPercentiles []float64
	statsOutput      string
)

func init() {
	statsCmd.Flags().StringSliceVar(&statsGroupBy, "group-by", nil,
		"statistics dimensions (overrides output.group_by)")
	statsCmd.Flags().Float64SliceVar(&statsPercentiles, "percentiles", nil,
		"percentile columns (overrides output.percentiles)")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "",
		"output file (default: stdout)")
}

func runStats(paths []string, groupBy []string, percentiles []float64, out io.Writer) error {
	dims, err := config.NormalizeDimensions(groupBy)
	if err != nil {
		return fmt.Errorf("group-by: %w", err)
	}
	for _, p := range percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("percentile %v out of range [0,100]", p)
		}
	}

	grouper := stats.NewGrouper(dims, percentiles)
	for _, path := range paths {
		rows, err := report.ReadPairsFile(path)
		if err != nil {
			return err
		}
		for _, row := range rows {
			grouper.Add(row.Labels, row.LatencyMs)
		}
	}
	return report.WriteStats(out, grouper.Summaries(), percentiles)
}
