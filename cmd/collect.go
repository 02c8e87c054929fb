package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/biomed-sul/leadscout/internal/geo"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single acquisition stage",
}

var collectLocationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Load municipalities above the population threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loader, err := newLocationLoader(ctx, st)
		if err != nil {
			return err
		}
		res, err := loader.Load(ctx)
		if err != nil {
			return eris.Wrap(err, "collect locations")
		}
		return printJSON(os.Stdout, res)
	},
}

var collectDirectoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Scrape the REDLARA center listing once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newDirectoryCollector(st, nil).Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "collect directory")
		}
		return printJSON(os.Stdout, res)
	},
}

var collectSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search every location and keyword not yet in the search log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sc, err := newSearchCollector(st, nil)
		if err != nil {
			return err
		}
		res, err := sc.Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "collect search")
		}
		return printJSON(os.Stdout, res)
	},
}

var collectCoordinatesCmd = &cobra.Command{
	Use:   "coordinates",
	Short: "Import municipality coordinates for radius filtering",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := geo.ImportCoordinates(ctx, newFetcher(), st, cfg.Geo.CoordinatesURL)
		if err != nil {
			return eris.Wrap(err, "collect coordinates")
		}
		return printJSON(os.Stdout, res)
	},
}

func init() {
	collectCmd.AddCommand(collectLocationsCmd, collectDirectoryCmd, collectSearchCmd, collectCoordinatesCmd)
	rootCmd.AddCommand(collectCmd)
}
