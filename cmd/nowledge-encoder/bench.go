package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-nowledge-encoder/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		text       string
		runs       int
		format     string
		maxMeanMS  float64
		cpuprofile string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark cold and warm encode latency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text must not be empty")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			stop, err := bench.StartCPUProfile(cpuprofile)
			if err != nil {
				return err
			}

			// A fresh encoder so the first run pays for the load.
			results, err := bench.Run(newEncoder(cfg).Encode, text, runs)
			if stopErr := stop(); stopErr != nil && err == nil {
				err = stopErr
			}
			if err != nil {
				return err
			}

			stats := bench.WarmStats(results)
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				bench.FormatJSON(results, stats, out)
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckMeanThreshold(stats.Mean, maxMeanMS)
		},
	}

	cmd.Flags().StringVar(&text, "text", "The quick brown fox jumps over the lazy dog.", "Text to encode for each run")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of encode runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&maxMeanMS, "max-mean-ms", 0, "Exit non-zero if the warm mean exceeds this many milliseconds (0 = disabled)")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile of the runs to this file")

	return cmd
}
