package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/chart-consensus/internal/adapter/file"
	"github.com/couchcryptid/chart-consensus/internal/config"
	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/observability"
	"github.com/couchcryptid/chart-consensus/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type options struct {
	outCSV             string
	reportPath         string
	defaultTolerance   float64
	toleranceOverrides []string
	toleranceFile      string
	rereadFile         string
	textMatch          string
	workers            int
	logLevel           string
	logFormat          string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "reconcile [flags] RUN_CSV...",
		Short: "Recompute the consensus dataset and disagreement report from run CSVs",
		Long: `Reconcile loads the CSV written by each extraction run, votes a consensus
value for every data point and writes the final dataset and a report of where
the runs disagreed.

When --reread-file is given, charts the runs disagreed on are patched from the
re-read series in that file.`,
		Example: `  reconcile out/run1.csv out/run2.csv out/run3.csv
  reconcile --tolerance-override Wind:Speed=2.5 --reread-file out/rereads.jsonl out/run*.csv`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var def *float64
			if cmd.Flags().Changed("default-tolerance") {
				def = &opts.defaultTolerance
			}
			return run(cmd, opts, def, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.outCSV, "out-csv", "out/batch_results_recomputed.csv", "path for the recomputed dataset CSV")
	f.StringVar(&opts.reportPath, "report", "out/disagreement_report_recomputed.json", "path for the recomputed report JSON")
	f.Float64Var(&opts.defaultTolerance, "default-tolerance", domain.DefaultTolerance, "tolerance for fields without a table entry")
	f.StringArrayVar(&opts.toleranceOverrides, "tolerance-override", nil, "Section:MeasurementType=value tolerance override (repeatable)")
	f.StringVar(&opts.toleranceFile, "tolerance-file", "", "YAML tolerance table merged over the built-in tolerances")
	f.StringVar(&opts.rereadFile, "reread-file", "", "JSONL file of re-read series used to repair flagged charts")
	f.StringVar(&opts.textMatch, "text-match", string(domain.TextMatchExact), "text comparison: exact or fold")
	f.IntVar(&opts.workers, "workers", 1, "number of reconciliation workers")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format: json or text")

	return cmd
}

func run(cmd *cobra.Command, opts *options, def *float64, paths []string) error {
	logger := sharedobs.NewLogger(opts.logLevel, opts.logFormat)

	if opts.workers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", opts.workers)
	}
	textMatch, err := domain.ParseTextMatch(opts.textMatch)
	if err != nil {
		return fmt.Errorf("--text-match: %w", err)
	}
	tolerances, err := config.BuildTolerances(def, opts.toleranceFile, strings.Join(opts.toleranceOverrides, ","))
	if err != nil {
		return err
	}

	set := pipeline.RunSet{}
	for _, path := range paths {
		m, err := file.LoadRunFile(path)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		set.Maps = append(set.Maps, m)
		set.SourceRuns = append(set.SourceRuns, abs)
		logger.Debug("run loaded", "path", path, "keys", len(m))
	}

	var rr domain.Rereader
	if opts.rereadFile != "" {
		static, err := file.LoadRereadFile(opts.rereadFile)
		if err != nil {
			return err
		}
		logger.Info("re-read series loaded", "path", opts.rereadFile, "charts", static.Len())
		rr = static
	}

	reconciler := domain.NewReconciler(
		domain.WithTolerances(tolerances),
		domain.WithTextMatch(textMatch),
		domain.WithWorkers(opts.workers),
	)
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	engine := pipeline.NewEngine(reconciler, logger, metrics)

	dataset, report := engine.Consolidate(cmd.Context(), set, rr)

	if err := file.WriteDatasetFile(opts.outCSV, dataset); err != nil {
		return err
	}
	if err := file.WriteReportFile(opts.reportPath, report); err != nil {
		return err
	}

	logger.Info("reconcile complete",
		"runs", report.RunCount,
		"rows", len(dataset),
		"disagreements", len(report.Disagreements),
		"flagged_charts", len(report.FlaggedCharts),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Recomputed CSV written to %s\n", opts.outCSV)
	fmt.Fprintf(cmd.OutOrStdout(), "Recomputed disagreement report written to %s\n", opts.reportPath)
	return nil
}
