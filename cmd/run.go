package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/biomed-sul/leadscout/internal/monitoring"
	"github.com/biomed-sul/leadscout/internal/pipeline"
)

var (
	runSkipDirectory    bool
	runSkipSearch       bool
	runSkipEnrich       bool
	runRefreshLocations bool
	runMetricsAddr      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full acquisition pipeline",
	Long:  "Ensures the schema, loads locations, scrapes the directory, searches every location and keyword, deduplicates, enriches contacts and deduplicates again. Safe to re-run: completed searches and enriched establishments are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m := monitoring.NewMetrics()
		var stages pipeline.Stages

		// Built first: a missing API key must fail before any network call.
		if !runSkipSearch {
			sc, err := newSearchCollector(st, m)
			if err != nil {
				return err
			}
			stages.Search = sc
		}

		loader, err := newLocationLoader(ctx, st)
		if err != nil {
			return err
		}
		stages.Locations = loader

		if cfg.Directory.Enabled {
			stages.Directory = newDirectoryCollector(st, m)
		}

		dd, err := newDeduplicator(st, m)
		if err != nil {
			return err
		}
		stages.Dedupe = dd

		if !runSkipEnrich {
			en, err := newEnricher(ctx, st, m)
			if err != nil {
				return err
			}
			stages.Enrich = en
		}

		if runMetricsAddr != "" {
			stopMetrics := serveMetrics(ctx, runMetricsAddr, m, st)
			defer stopMetrics()
		}

		rep, err := pipeline.New(st, stages).Run(ctx, pipeline.Options{
			RefreshLocations: runRefreshLocations,
			SkipDirectory:    runSkipDirectory,
			SkipSearch:       runSkipSearch,
			SkipEnrich:       runSkipEnrich,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", rep.RunID),
			zap.Duration("elapsed", rep.Duration),
		)
		return printJSON(os.Stdout, rep)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runSkipDirectory, "skip-directory", false, "skip the specialist directory scrape")
	runCmd.Flags().BoolVar(&runSkipSearch, "skip-search", false, "skip web search collection")
	runCmd.Flags().BoolVar(&runSkipEnrich, "skip-enrich", false, "skip contact enrichment")
	runCmd.Flags().BoolVar(&runRefreshLocations, "refresh-locations", false, "reload locations even if some are stored")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address during the run (e.g. :9090)")
	rootCmd.AddCommand(runCmd)
}
